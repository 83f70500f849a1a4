package processors

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/username/cartera/backend/src/fx"
	"github.com/username/cartera/backend/src/models"
)

// NormalizerConfig carries the lookback windows the normalizer needs. Zero
// values fall back to the historical defaults.
type NormalizerConfig struct {
	FXLookbackDays         int
	RedemptionLookbackDays int
}

// Normalizer maps the three raw broker record shapes into canonical
// Operations, converting ARS figures to USD with date-matched historical
// rates and the current MEP rate as the recorded fallback.
type Normalizer struct {
	fxLookbackDays         int
	redemptionLookbackDays int
}

func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	if cfg.FXLookbackDays <= 0 {
		cfg.FXLookbackDays = 7
	}
	if cfg.RedemptionLookbackDays <= 0 {
		cfg.RedemptionLookbackDays = 21
	}
	return &Normalizer{
		fxLookbackDays:         cfg.FXLookbackDays,
		redemptionLookbackDays: cfg.RedemptionLookbackDays,
	}
}

// NormalizeOrder maps a broker order record to a canonical Operation.
// Returns nil (never an error) when the record is unusable: cancelled,
// unclassifiable, or without a resolvable quantity or price. Drops are
// logged, not fatal.
func (n *Normalizer) NormalizeOrder(order models.RawOrder, quotes []models.FXQuote, fallbackRate float64) *models.Operation {
	status := normalizeText(order.Status)
	if strings.Contains(status, "cancelada") && !strings.Contains(status, "parcialmente") {
		return nil
	}

	kind := ClassifyOperationText(order.Operation)
	if kind == models.KindUnclassified {
		logDroppedRecord("order", "unclassified operation text",
			"ticker", order.Ticker, "operation", order.Operation, "date", order.Date)
		return nil
	}

	// Executed figures win over requested ones whenever the broker reported
	// them (the -1 sentinels were already mapped to nil at decode time).
	quantity := valueOrNil(order.ExecutedQuantity, order.RequestedQuantity)
	if quantity == nil || *quantity <= 0 {
		logDroppedRecord("order", "no usable quantity", "ticker", order.Ticker, "date", order.Date)
		return nil
	}

	price := valueOrNil(order.ExecutedPrice, order.RequestedPrice)
	if price == nil && order.Amount > 0 {
		derived := order.Amount / *quantity
		price = &derived
	}
	if price == nil {
		logDroppedRecord("order", "no resolvable price", "ticker", order.Ticker, "date", order.Date)
		return nil
	}

	amount := order.Amount
	if amount <= 0 {
		amount = *price * *quantity
	}

	op := models.Operation{
		Kind:             kind,
		Ticker:           order.Ticker,
		Date:             order.Date,
		Quantity:         *quantity,
		PriceUSD:         *price,
		AmountUSD:        amount,
		FeeUSD:           order.Fees,
		Description:      order.Operation,
		OriginalCurrency: order.Currency,
		FXRateUsed:       1,
		Source:           models.SourceOrders,
	}

	if strings.EqualFold(order.Currency, "ARS") {
		if !n.convertToUSD(&op, quotes, fallbackRate) {
			logDroppedRecord("order", "no FX rate resolvable and no fallback",
				"ticker", order.Ticker, "date", order.Date)
			return nil
		}
	}

	if kind == models.KindRescateParcial {
		op.PriceUSD = op.AmountUSD / op.Quantity
	}
	return &op
}

// NormalizeMovements maps instrument-trade ledger postings to canonical
// Operations. Pure cash postings (quantity zero) are excluded before
// clustering, except redemption premiums, which are folded into their
// originating redemption (see foldRedemptionPremiums).
func (n *Normalizer) NormalizeMovements(movements []models.RawMovement, quotes []models.FXQuote, fallbackRate float64) []models.Operation {
	var trades, cash []models.RawMovement
	for _, m := range movements {
		if m.Quantity == 0 {
			cash = append(cash, m)
		} else {
			trades = append(trades, m)
		}
	}

	// One logical trade may arrive as two rows: USD principal plus an
	// ARS-denominated fee row sharing description and concertation date.
	type clusterKey struct {
		description string
		date        string
	}
	clusters := make(map[clusterKey][]models.RawMovement)
	var order []clusterKey
	for _, m := range trades {
		k := clusterKey{description: m.Description, date: m.ConcertationDate}
		if _, seen := clusters[k]; !seen {
			order = append(order, k)
		}
		clusters[k] = append(clusters[k], m)
	}

	var ops []models.Operation
	for _, k := range order {
		if op := n.normalizeMovementCluster(clusters[k], quotes, fallbackRate); op != nil {
			ops = append(ops, *op)
		}
	}

	ops = sumSameDayRedemptions(ops)
	ops = n.foldRedemptionPremiums(ops, cash, quotes, fallbackRate)

	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Date < ops[j].Date })
	return ops
}

// normalizeMovementCluster maps one (description, concertation date) cluster
// to a single Operation, or nil when the cluster is unusable.
func (n *Normalizer) normalizeMovementCluster(cluster []models.RawMovement, quotes []models.FXQuote, fallbackRate float64) *models.Operation {
	first := cluster[0]
	kind := ClassifyOperationText(first.Description)
	if kind == models.KindUnclassified {
		logDroppedRecord("movement cluster", "unclassified description",
			"description", first.Description, "date", first.ConcertationDate)
		return nil
	}

	rate, fallback, ok := n.resolveRate(first.ConcertationDate, quotes, fallbackRate)
	if !ok {
		logDroppedRecord("movement cluster", "no FX rate resolvable and no fallback",
			"description", first.Description, "date", first.ConcertationDate)
		return nil
	}

	if kind == models.KindRescateParcial {
		return n.redemptionFromCluster(cluster, rate, fallback)
	}

	switch len(cluster) {
	case 1:
		return n.tradeFromSingleRow(first, kind, rate, fallback)
	case 2:
		return n.tradeFromPair(cluster, kind, rate, fallback)
	default:
		logDroppedRecord("movement cluster", "unexpected cluster size",
			"description", first.Description, "size", len(cluster))
		return nil
	}
}

// tradeFromSingleRow handles the one-row case: the row carries quantity,
// price and the signed settled amount in a single currency.
func (n *Normalizer) tradeFromSingleRow(m models.RawMovement, kind models.OperationKind, rate float64, fallback bool) *models.Operation {
	if m.Price == nil {
		logDroppedRecord("movement", "trade row without price", "description", m.Description, "date", m.ConcertationDate)
		return nil
	}
	quantity := math.Abs(m.Quantity)
	grossOriginal := math.Abs(m.Amount)

	op := models.Operation{
		Kind:             kind,
		Ticker:           m.Ticker,
		Date:             m.ConcertationDate,
		Quantity:         quantity,
		Description:      m.Description,
		OriginalCurrency: m.Currency,
		FXRateUsed:       1,
		Source:           models.SourceMovements,
	}

	if strings.EqualFold(m.Currency, "ARS") {
		op.PriceUSD = *m.Price / rate
		op.AmountUSD = op.PriceUSD * quantity
		// The settled amount includes costs; the residual over the gross
		// trade value is the fee.
		op.FeeUSD = math.Abs(grossOriginal/rate - op.AmountUSD)
		op.PriceOriginal = m.Price
		amt := grossOriginal
		op.AmountOriginal = &amt
		op.FXRateUsed = rate
		op.FXFallback = fallback
	} else {
		op.PriceUSD = *m.Price
		op.AmountUSD = op.PriceUSD * quantity
		op.FeeUSD = math.Abs(grossOriginal - op.AmountUSD)
	}
	return &op
}

// tradeFromPair handles the two-row case: one row is the USD-denominated
// trade (the one with a valid price), the companion carries the ARS fee.
func (n *Normalizer) tradeFromPair(cluster []models.RawMovement, kind models.OperationKind, rate float64, fallback bool) *models.Operation {
	var trade, fee *models.RawMovement
	for i := range cluster {
		if cluster[i].Price != nil && trade == nil {
			trade = &cluster[i]
		} else {
			fee = &cluster[i]
		}
	}
	if trade == nil {
		logDroppedRecord("movement cluster", "pair without a priced row",
			"description", cluster[0].Description, "date", cluster[0].ConcertationDate)
		return nil
	}

	quantity := math.Abs(trade.Quantity)
	op := models.Operation{
		Kind:             kind,
		Ticker:           trade.Ticker,
		Date:             trade.ConcertationDate,
		Quantity:         quantity,
		PriceUSD:         *trade.Price,
		AmountUSD:        *trade.Price * quantity,
		Description:      trade.Description,
		OriginalCurrency: trade.Currency,
		FXRateUsed:       1,
		Source:           models.SourceMovements,
	}
	if fee != nil {
		feeOriginal := math.Abs(fee.Amount)
		if strings.EqualFold(fee.Currency, "ARS") {
			op.FeeUSD = feeOriginal / rate
			op.FeeOriginal = &feeOriginal
			op.FXRateUsed = rate
			op.FXFallback = fallback
		} else {
			op.FeeUSD = feeOriginal
		}
	}
	return &op
}

// redemptionFromCluster sums every row of a redemption cluster: the broker
// may split one redemption into multiple ledger lines.
func (n *Normalizer) redemptionFromCluster(cluster []models.RawMovement, rate float64, fallback bool) *models.Operation {
	var quantity, amountUSD float64
	converted := false
	for _, m := range cluster {
		quantity += math.Abs(m.Quantity)
		rowAmount := math.Abs(m.Amount)
		if strings.EqualFold(m.Currency, "ARS") {
			rowAmount /= rate
			converted = true
		}
		amountUSD += rowAmount
	}
	if quantity <= 0 {
		logDroppedRecord("movement cluster", "redemption without quantity",
			"description", cluster[0].Description, "date", cluster[0].ConcertationDate)
		return nil
	}
	op := models.Operation{
		Kind:             models.KindRescateParcial,
		Ticker:           cluster[0].Ticker,
		Date:             cluster[0].ConcertationDate,
		Quantity:         quantity,
		PriceUSD:         amountUSD / quantity,
		AmountUSD:        amountUSD,
		Description:      cluster[0].Description,
		OriginalCurrency: cluster[0].Currency,
		FXRateUsed:       1,
		Source:           models.SourceMovements,
	}
	if converted {
		op.FXRateUsed = rate
		op.FXFallback = fallback
	}
	return &op
}

// sumSameDayRedemptions collapses multiple redemption operations for the same
// ticker and date into one, re-deriving price as amount/quantity.
func sumSameDayRedemptions(ops []models.Operation) []models.Operation {
	type key struct{ ticker, date string }
	index := make(map[key]int)
	out := ops[:0]
	for _, op := range ops {
		if op.Kind != models.KindRescateParcial {
			out = append(out, op)
			continue
		}
		k := key{op.Ticker, op.Date}
		if i, seen := index[k]; seen {
			out[i].Quantity += op.Quantity
			out[i].AmountUSD += op.AmountUSD
			out[i].FeeUSD += op.FeeUSD
			out[i].PriceUSD = out[i].AmountUSD / out[i].Quantity
			continue
		}
		index[k] = len(out)
		out = append(out, op)
	}
	return out
}

// foldRedemptionPremiums attaches quantity-zero redemption postings (the
// premium the fund pays out after a partial redemption) to the most recent
// redemption operation for the same ticker within the lookback window. The
// window length is an empirically chosen constant; see configuration.
func (n *Normalizer) foldRedemptionPremiums(ops []models.Operation, cash []models.RawMovement, quotes []models.FXQuote, fallbackRate float64) []models.Operation {
	for _, m := range cash {
		if ClassifyOperationText(m.Description) != models.KindRescateParcial {
			continue
		}
		premiumDate, err := time.Parse("2006-01-02", m.ConcertationDate)
		if err != nil {
			continue
		}

		amount := math.Abs(m.Amount)
		if strings.EqualFold(m.Currency, "ARS") {
			rate, _, ok := n.resolveRate(m.ConcertationDate, quotes, fallbackRate)
			if !ok {
				continue
			}
			amount /= rate
		}

		best := -1
		for i := range ops {
			if ops[i].Kind != models.KindRescateParcial || ops[i].Ticker != m.Ticker {
				continue
			}
			opDate, err := time.Parse("2006-01-02", ops[i].Date)
			if err != nil || opDate.After(premiumDate) {
				continue
			}
			if premiumDate.Sub(opDate) > time.Duration(n.redemptionLookbackDays)*24*time.Hour {
				continue
			}
			if best == -1 || ops[i].Date > ops[best].Date {
				best = i
			}
		}
		if best >= 0 {
			ops[best].AmountUSD += amount
			ops[best].PriceUSD = ops[best].AmountUSD / ops[best].Quantity
		}
	}
	return ops
}

// convertToUSD divides the operation's monetary fields by the rate resolved
// for its date, recording provenance. Returns false when no rate at all is
// available.
func (n *Normalizer) convertToUSD(op *models.Operation, quotes []models.FXQuote, fallbackRate float64) bool {
	rate, fallback, ok := n.resolveRate(op.Date, quotes, fallbackRate)
	if !ok {
		return false
	}
	price, amount, fee := op.PriceUSD, op.AmountUSD, op.FeeUSD
	op.PriceOriginal = &price
	op.AmountOriginal = &amount
	if fee != 0 {
		op.FeeOriginal = &fee
	}
	op.PriceUSD = price / rate
	op.AmountUSD = amount / rate
	op.FeeUSD = fee / rate
	op.FXRateUsed = rate
	op.FXFallback = fallback
	return true
}

func (n *Normalizer) resolveRate(date string, quotes []models.FXQuote, fallbackRate float64) (rate float64, usedFallback, ok bool) {
	if r, found := fx.ResolveRate(date, quotes, n.fxLookbackDays); found {
		return r, false, true
	}
	if fallbackRate > 0 {
		return fallbackRate, true, true
	}
	return 0, false, false
}

// valueOrNil returns the first non-nil pointer, or nil.
func valueOrNil(preferred, alternate *float64) *float64 {
	if preferred != nil {
		return preferred
	}
	return alternate
}
