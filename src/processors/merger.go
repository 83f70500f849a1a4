package processors

import (
	"math"
	"sort"

	"github.com/username/cartera/backend/src/models"
)

// MergeConfig carries the near-duplicate price tolerances. Two prices match
// when they differ by less than PriceTolAbs dollars OR by less than
// PriceTolRel relative to the first. Zero values fall back to the historical
// defaults ($0.10, 0.5%).
type MergeConfig struct {
	PriceTolAbs float64
	PriceTolRel float64
}

func (c MergeConfig) withDefaults() MergeConfig {
	if c.PriceTolAbs <= 0 {
		c.PriceTolAbs = 0.10
	}
	if c.PriceTolRel <= 0 {
		c.PriceTolRel = 0.005
	}
	return c
}

const quantityEpsilon = 1e-9

// MergeOperations merges the order-derived and movement-derived operation
// lists for one instrument into a single non-duplicated timeline.
//
// Orders are the primary source of truth for ordinary buy/sell activity.
// When an order-derived set exists, movement-derived COMPRA/VENTA/LIC
// operations are discarded outright (they describe the same economic events)
// and only RESCATE_PARCIAL operations are merged in: partial fund redemptions
// never appear as orders, so the ledger is their only source. Same-date
// redemptions from different sources are additively merged, never
// deduplicated, since a redemption can legitimately recur same-day across
// postings.
func MergeOperations(fromOrders, fromMovements []models.Operation, cfg MergeConfig) []models.Operation {
	cfg = cfg.withDefaults()

	var merged []models.Operation
	if len(fromOrders) > 0 {
		merged = dedupNearDuplicates(fromOrders, cfg)
	} else {
		// No order history at all (e.g. a fund position built purely through
		// subscriptions recorded as movements): the ledger is all we have.
		var nonRedemptions []models.Operation
		for _, op := range fromMovements {
			if op.Kind != models.KindRescateParcial {
				nonRedemptions = append(nonRedemptions, op)
			}
		}
		merged = dedupNearDuplicates(nonRedemptions, cfg)
	}

	for _, op := range fromMovements {
		if op.Kind != models.KindRescateParcial {
			continue
		}
		merged = mergeRedemption(merged, op)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Date < merged[j].Date })
	return merged
}

// dedupNearDuplicates collapses near-duplicate pairs within one source list:
// same date and quantity, price within tolerance. COMPRA and LIC are
// interchangeable for matching, with LIC winning the classification (a
// licitación that also matches a compra pattern is definitionally the more
// specific kind). VENTA duplicates merge with no preference tie-break.
func dedupNearDuplicates(ops []models.Operation, cfg MergeConfig) []models.Operation {
	var kept []models.Operation
	for _, op := range ops {
		matched := false
		for i := range kept {
			if !isNearDuplicate(kept[i], op, cfg) {
				continue
			}
			if op.Kind == models.KindLicitacion {
				kept[i].Kind = models.KindLicitacion
			}
			matched = true
			break
		}
		if !matched {
			kept = append(kept, op)
		}
	}
	return kept
}

func isNearDuplicate(a, b models.Operation, cfg MergeConfig) bool {
	if a.Ticker != b.Ticker || a.Date != b.Date {
		return false
	}
	if math.Abs(a.Quantity-b.Quantity) > quantityEpsilon {
		return false
	}
	sameFamily := (isBuyKind(a.Kind) && isBuyKind(b.Kind)) ||
		(a.Kind == models.KindVenta && b.Kind == models.KindVenta)
	if !sameFamily {
		return false
	}
	diff := math.Abs(a.PriceUSD - b.PriceUSD)
	if diff < cfg.PriceTolAbs {
		return true
	}
	if a.PriceUSD != 0 && diff/math.Abs(a.PriceUSD) < cfg.PriceTolRel {
		return true
	}
	return false
}

func isBuyKind(k models.OperationKind) bool {
	return k == models.KindCompra || k == models.KindLicitacion
}

// mergeRedemption adds a redemption to the timeline, summing it into an
// existing same-ticker same-date redemption when one exists and re-deriving
// the price from the combined proceeds.
func mergeRedemption(ops []models.Operation, redemption models.Operation) []models.Operation {
	for i := range ops {
		if ops[i].Kind == models.KindRescateParcial &&
			ops[i].Ticker == redemption.Ticker &&
			ops[i].Date == redemption.Date {
			ops[i].Quantity += redemption.Quantity
			ops[i].AmountUSD += redemption.AmountUSD
			ops[i].FeeUSD += redemption.FeeUSD
			ops[i].PriceUSD = ops[i].AmountUSD / ops[i].Quantity
			return ops
		}
	}
	return append(ops, redemption)
}
