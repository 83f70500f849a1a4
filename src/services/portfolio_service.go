package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/username/cartera/backend/src/broker"
	"github.com/username/cartera/backend/src/fx"
	"github.com/username/cartera/backend/src/logger"
	"github.com/username/cartera/backend/src/models"
	"github.com/username/cartera/backend/src/processors"
	"github.com/username/cartera/backend/src/store"
	"github.com/username/cartera/backend/src/utils"
)

const (
	ckDerived = "res_derived_portfolio"

	kkHoldings  = "raw_holdings"
	kkOrders    = "raw_orders_%s_%s"
	kkMovements = "raw_movements_%s_%s"
	kkBondFlows = "raw_bond_flows"

	CacheCleanupInterval = 30 * time.Minute
)

const dateLayout = "2006-01-02"

// Config for the portfolio service.
type Config struct {
	HistoryStartDate string
	CacheTTL         time.Duration
	Merge            processors.MergeConfig
}

type portfolioServiceImpl struct {
	broker      *broker.Client
	fxClient    *fx.Client
	normalizer  *processors.Normalizer
	incomeProc  *processors.IncomeProcessor
	kv          *store.KV
	reportCache *gocache.Cache
	cfg         Config
}

func NewPortfolioService(
	brokerClient *broker.Client,
	fxClient *fx.Client,
	normalizer *processors.Normalizer,
	incomeProc *processors.IncomeProcessor,
	kv *store.KV,
	reportCache *gocache.Cache,
	cfg Config,
) PortfolioService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.HistoryStartDate == "" {
		cfg.HistoryStartDate = "2015-01-01"
	}
	return &portfolioServiceImpl{
		broker:      brokerClient,
		fxClient:    fxClient,
		normalizer:  normalizer,
		incomeProc:  incomeProc,
		kv:          kv,
		reportCache: reportCache,
		cfg:         cfg,
	}
}

// derivedState is the full result of one reconciliation pass. It is built
// completely before being committed to the report cache, so a failed
// derivation never leaves a half-updated view behind.
type derivedState struct {
	summary   models.PortfolioSummary
	opsByTkr  map[string][]models.Operation
	costByTkr map[string]models.CostBasisState
	income    models.IncomeSummary
	fees      []models.FeeEntry
	cashFlows []models.CashFlowPoint
}

func (s *portfolioServiceImpl) GetPortfolio(ctx context.Context) (*models.PortfolioSummary, error) {
	d, err := s.derived(ctx)
	if err != nil {
		return nil, err
	}
	return &d.summary, nil
}

func (s *portfolioServiceImpl) GetOperations(ctx context.Context, ticker string) ([]models.Operation, error) {
	d, err := s.derived(ctx)
	if err != nil {
		return nil, err
	}
	ops, ok := d.opsByTkr[strings.ToUpper(ticker)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	return ops, nil
}

func (s *portfolioServiceImpl) GetCostBasis(ctx context.Context, ticker string) (*models.CostBasisState, error) {
	d, err := s.derived(ctx)
	if err != nil {
		return nil, err
	}
	state, ok := d.costByTkr[strings.ToUpper(ticker)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	return &state, nil
}

func (s *portfolioServiceImpl) GetIncome(ctx context.Context) (*models.IncomeSummary, error) {
	d, err := s.derived(ctx)
	if err != nil {
		return nil, err
	}
	return &d.income, nil
}

func (s *portfolioServiceImpl) GetFees(ctx context.Context) ([]models.FeeEntry, error) {
	d, err := s.derived(ctx)
	if err != nil {
		return nil, err
	}
	return d.fees, nil
}

func (s *portfolioServiceImpl) GetProjectedCashFlows(ctx context.Context) ([]models.CashFlowPoint, error) {
	d, err := s.derived(ctx)
	if err != nil {
		return nil, err
	}
	return d.cashFlows, nil
}

func (s *portfolioServiceImpl) InvalidateCache() {
	s.reportCache.Delete(ckDerived)
}

// derived runs (or returns the cached result of) the full reconciliation
// pass: fetch raw data, normalize, merge, replay cost basis, aggregate.
func (s *portfolioServiceImpl) derived(ctx context.Context) (*derivedState, error) {
	if cached, found := s.reportCache.Get(ckDerived); found {
		return cached.(*derivedState), nil
	}
	startTime := time.Now()

	quotes, err := s.fxClient.HistoricalQuotes(ctx)
	if err != nil {
		logger.L.Warn("Historical quote table unavailable, relying on MEP fallback", "error", err)
	}
	mepRate, mepErr := s.fxClient.CurrentMEP(ctx)
	if mepErr != nil {
		logger.L.Warn("Current MEP rate unavailable", "error", mepErr)
	}
	if len(quotes) == 0 && mepRate <= 0 {
		return nil, ErrNoFXSource
	}

	today := time.Now().Format(dateLayout)
	from := s.cfg.HistoryStartDate

	holdings, err := cachedFetch(s.kv, kkHoldings, s.cfg.CacheTTL, func() ([]models.RawHolding, error) {
		return s.broker.Holdings(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("loading holdings: %w", err)
	}
	orders, err := cachedFetch(s.kv, fmt.Sprintf(kkOrders, from, today), s.cfg.CacheTTL, func() ([]models.RawOrder, error) {
		return s.broker.Orders(ctx, from, today)
	})
	if err != nil {
		return nil, fmt.Errorf("loading orders: %w", err)
	}
	movements, err := cachedFetch(s.kv, fmt.Sprintf(kkMovements, from, today), s.cfg.CacheTTL, func() ([]models.RawMovement, error) {
		return s.broker.Movements(ctx, from, today)
	})
	if err != nil {
		return nil, fmt.Errorf("loading movements: %w", err)
	}
	bondFlows, err := cachedFetch(s.kv, kkBondFlows, s.cfg.CacheTTL, func() ([]models.RawBondFlow, error) {
		return s.broker.BondFlows(ctx)
	})
	if err != nil {
		// The projection view degrades to empty; the portfolio itself does
		// not depend on it.
		logger.L.Warn("Bond flow schedule unavailable", "error", err)
		bondFlows = nil
	}

	ordersByTicker := make(map[string][]models.RawOrder)
	for _, o := range orders {
		t := strings.ToUpper(o.Ticker)
		ordersByTicker[t] = append(ordersByTicker[t], o)
	}
	movementsByTicker := make(map[string][]models.RawMovement)
	for _, m := range movements {
		if m.Ticker == "" {
			continue
		}
		t := strings.ToUpper(m.Ticker)
		movementsByTicker[t] = append(movementsByTicker[t], m)
	}
	holdingByTicker := make(map[string]models.RawHolding)
	for _, h := range holdings {
		holdingByTicker[strings.ToUpper(h.Ticker)] = h
	}

	tickerSet := make(map[string]bool)
	for t := range ordersByTicker {
		tickerSet[t] = true
	}
	for t := range movementsByTicker {
		tickerSet[t] = true
	}
	for t := range holdingByTicker {
		tickerSet[t] = true
	}

	// Per-instrument pipelines are independent and read-only over the raw
	// slices, so they fan out concurrently; no ordering is needed between
	// them.
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		opsByTkr  = make(map[string][]models.Operation)
		costByTkr = make(map[string]models.CostBasisState)
		positions []models.InstrumentPosition
	)
	for ticker := range tickerSet {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()

			var fromOrders []models.Operation
			for _, o := range ordersByTicker[ticker] {
				if op := s.normalizer.NormalizeOrder(o, quotes, mepRate); op != nil {
					fromOrders = append(fromOrders, *op)
				}
			}
			fromMovements := s.normalizer.NormalizeMovements(movementsByTicker[ticker], quotes, mepRate)

			ops := processors.MergeOperations(fromOrders, fromMovements, s.cfg.Merge)
			state := processors.ComputeCostBasis(ops)
			holding, hasSnapshot := holdingByTicker[ticker]
			position := buildPosition(ticker, ops, state, holding, hasSnapshot, mepRate)

			mu.Lock()
			opsByTkr[ticker] = ops
			costByTkr[ticker] = state
			positions = append(positions, position)
			mu.Unlock()
		}(ticker)
	}
	wg.Wait()

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].MarketValueUSD > positions[j].MarketValueUSD
	})

	summary := models.PortfolioSummary{
		GeneratedAt:     time.Now().Format(time.RFC3339),
		Positions:       positions,
		ValueByType:     make(map[string]float64),
		ValueByCurrency: make(map[string]float64),
	}
	for _, p := range positions {
		summary.TotalValueUSD += p.MarketValueUSD
		summary.TotalCostUSD += p.CostBasisUSD
		summary.UnrealizedGainUSD += p.UnrealizedGainUSD
		summary.RealizedGainUSD += p.RealizedGainUSD
		if p.MarketValueUSD != 0 {
			summary.ValueByType[nonEmpty(p.Type, "OTRO")] += p.MarketValueUSD
			summary.ValueByCurrency[nonEmpty(p.Currency, "USD")] += p.MarketValueUSD
		}
	}

	var allFees []models.FeeEntry
	for _, p := range positions {
		allFees = append(allFees, processors.FeeEntries(p.Operations)...)
	}
	sort.Slice(allFees, func(i, j int) bool { return allFees[i].Date < allFees[j].Date })

	d := &derivedState{
		summary:   summary,
		opsByTkr:  opsByTkr,
		costByTkr: costByTkr,
		income:    s.incomeProc.Process(movements, quotes, mepRate),
		fees:      allFees,
		cashFlows: processors.ProjectCashFlows(bondFlows, mepRate),
	}

	// Commit only after the whole derivation succeeded.
	s.reportCache.Set(ckDerived, d, gocache.DefaultExpiration)
	logger.L.Info("Portfolio derivation complete",
		"tickers", len(tickerSet), "operations", len(orders)+len(movements), "duration", time.Since(startTime))
	return d, nil
}

// buildPosition assembles the per-instrument view. The broker snapshot is
// authoritative for as-of-now figures when present; otherwise everything is
// computed from the reconciled timeline (the snapshot is absent for fully
// divested instruments).
func buildPosition(ticker string, ops []models.Operation, state models.CostBasisState, holding models.RawHolding, hasSnapshot bool, mepRate float64) models.InstrumentPosition {
	p := models.InstrumentPosition{
		Ticker:               ticker,
		Quantity:             state.OpenQuantity,
		CostBasisUSD:         state.AccumulatedCost,
		PPC:                  state.WeightedAvgCost,
		RealizedGainUSD:      state.RealizedGain,
		WeightedAvgSalePrice: state.WeightedAvgSalePrice,
		Operations:           ops,
	}

	if hasSnapshot {
		p.Description = holding.Description
		p.Type = holding.Type
		p.Currency = holding.Currency
		p.FromSnapshot = true
		p.Quantity = holding.Quantity

		price, value := holding.CurrentPrice, holding.CurrentValue
		if strings.EqualFold(holding.Currency, "ARS") && mepRate > 0 {
			price /= mepRate
			value /= mepRate
		}
		p.CurrentPriceUSD = price
		p.MarketValueUSD = value
		if p.PPC == nil && holding.Quantity > 0 && holding.AveragePrice > 0 {
			avg := holding.AveragePrice
			if strings.EqualFold(holding.Currency, "ARS") && mepRate > 0 {
				avg /= mepRate
			}
			p.PPC = utils.Float64Ptr(avg)
		}
	}

	if p.CostBasisUSD > 0 && p.MarketValueUSD != 0 {
		p.UnrealizedGainUSD = p.MarketValueUSD - p.CostBasisUSD
		p.UnrealizedGainPct = utils.RoundFloat(p.UnrealizedGainUSD/p.CostBasisUSD*100, 2)
	}
	return p
}

// cachedFetch reads key from the kv store when fresh, otherwise fetches and
// persists. A failed fetch falls back to an expired entry when one exists:
// stale data beats no data for a display tool.
func cachedFetch[T any](kv *store.KV, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	var cached T
	fresh, err := kv.GetJSON(key, ttl, &cached)
	if err == nil && fresh {
		return cached, nil
	}
	hasStale := err == nil

	result, fetchErr := fetch()
	if fetchErr != nil {
		if hasStale {
			logger.L.Warn("Fetch failed, serving expired cache entry", "key", key, "error", fetchErr)
			return cached, nil
		}
		var zero T
		return zero, fetchErr
	}

	if setErr := kv.Set(key, result); setErr != nil {
		logger.L.Warn("Failed to persist cache entry", "key", key, "error", setErr)
	}
	return result, nil
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
