package models

// InstrumentPosition is the per-instrument view model: the reconciled
// operation timeline plus the derived (or broker-authoritative) figures.
type InstrumentPosition struct {
	Ticker      string `json:"ticker"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Currency    string `json:"currency"`

	Quantity     float64  `json:"quantity"`
	CostBasisUSD float64  `json:"cost_basis_usd"`
	PPC          *float64 `json:"ppc,omitempty"` // weighted-average purchase price

	CurrentPriceUSD   float64 `json:"current_price_usd"`
	MarketValueUSD    float64 `json:"market_value_usd"`
	UnrealizedGainUSD float64 `json:"unrealized_gain_usd"`
	UnrealizedGainPct float64 `json:"unrealized_gain_pct"`

	RealizedGainUSD      float64  `json:"realized_gain_usd"`
	WeightedAvgSalePrice *float64 `json:"weighted_avg_sale_price,omitempty"`

	// FromSnapshot marks positions whose as-of-now figures come from the
	// broker's holdings snapshot rather than from the derived timeline.
	FromSnapshot bool `json:"from_snapshot"`

	Operations []Operation `json:"operations"`
}

// PortfolioSummary is the aggregated top-level view.
type PortfolioSummary struct {
	GeneratedAt       string               `json:"generated_at"`
	TotalValueUSD     float64              `json:"total_value_usd"`
	TotalCostUSD      float64              `json:"total_cost_usd"`
	UnrealizedGainUSD float64              `json:"unrealized_gain_usd"`
	RealizedGainUSD   float64              `json:"realized_gain_usd"`
	Positions         []InstrumentPosition `json:"positions"`
	ValueByType       map[string]float64   `json:"value_by_type"`
	ValueByCurrency   map[string]float64   `json:"value_by_currency"`
}

// IncomeEntry is a classified non-trade cash posting (dividend, interest,
// amortization, deposit, withdrawal, fee).
type IncomeEntry struct {
	Date           string  `json:"date"`
	Category       string  `json:"category"`
	Ticker         string  `json:"ticker,omitempty"`
	Description    string  `json:"description"`
	AmountUSD      float64 `json:"amount_usd"`
	AmountOriginal float64 `json:"amount_original"`
	Currency       string  `json:"currency"`
	FXRateUsed     float64 `json:"fx_rate_used"`
	FXFallback     bool    `json:"fx_fallback,omitempty"`
}

// IncomeSummary groups income entries with per-category USD totals.
type IncomeSummary struct {
	Entries          []IncomeEntry      `json:"entries"`
	TotalsByCategory map[string]float64 `json:"totals_by_category"`
}

// CashFlowPoint is one month of projected bond cash flows, in USD.
type CashFlowPoint struct {
	Month           string  `json:"month"` // YYYY-MM
	AmortizationUSD float64 `json:"amortization_usd"`
	InterestUSD     float64 `json:"interest_usd"`
	TotalUSD        float64 `json:"total_usd"`
}

// FeeEntry is a single explicit trading cost attributed to an operation.
type FeeEntry struct {
	Date        string  `json:"date"`
	Ticker      string  `json:"ticker"`
	Description string  `json:"description"`
	FeeUSD      float64 `json:"fee_usd"`
}
