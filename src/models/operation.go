package models

// OperationKind is the canonical classification of an operation. It is an
// explicit tagged value: normalization never defaults to a kind it could not
// positively classify.
type OperationKind string

const (
	KindCompra         OperationKind = "COMPRA"
	KindVenta          OperationKind = "VENTA"
	KindLicitacion     OperationKind = "LIC"
	KindRescateParcial OperationKind = "RESCATE_PARCIAL"
	KindUnclassified   OperationKind = "UNCLASSIFIED"
)

// Operation source markers, recorded for auditability of the merge step.
const (
	SourceOrders    = "orders"
	SourceMovements = "movements"
)

// Operation is the canonical, USD-denominated shape every raw record stream
// is normalized into. Quantity is always the magnitude; the sign of the
// economic event is carried by Kind.
//
// Invariant: AmountUSD ≈ PriceUSD * Quantity for COMPRA/VENTA/LIC. For
// RESCATE_PARCIAL, AmountUSD is the actual redemption proceeds and PriceUSD
// is back-derived as AmountUSD/Quantity.
type Operation struct {
	Kind        OperationKind `json:"kind"`
	Ticker      string        `json:"ticker"`
	Date        string        `json:"date"` // YYYY-MM-DD
	Quantity    float64       `json:"quantity"`
	PriceUSD    float64       `json:"price_usd"`
	AmountUSD   float64       `json:"amount_usd"`
	FeeUSD      float64       `json:"fee_usd"`
	Description string        `json:"description"`

	// Original-currency figures, kept when a conversion took place.
	PriceOriginal  *float64 `json:"price_original,omitempty"`
	AmountOriginal *float64 `json:"amount_original,omitempty"`
	FeeOriginal    *float64 `json:"fee_original,omitempty"`

	// Conversion provenance. FXFallback is set when no historical rate was
	// resolvable and the current MEP rate was substituted.
	OriginalCurrency string  `json:"original_currency"`
	FXRateUsed       float64 `json:"fx_rate_used"`
	FXFallback       bool    `json:"fx_fallback,omitempty"`

	Source string `json:"source"`
}

// CostBasisState is the per-instrument result of replaying an operation
// timeline. It is ephemeral: recomputed from scratch on every invocation,
// never persisted.
type CostBasisState struct {
	OpenQuantity    float64 `json:"open_quantity"`
	AccumulatedCost float64 `json:"accumulated_cost"`

	// WeightedAvgCost (the PPC) is nil when OpenQuantity <= 0.
	WeightedAvgCost *float64 `json:"weighted_avg_cost,omitempty"`

	// WeightedAvgSalePrice is nil when there were no sales.
	WeightedAvgSalePrice *float64 `json:"weighted_avg_sale_price,omitempty"`

	RealizedGain float64 `json:"realized_gain"`

	TotalSoldQuantity float64 `json:"total_sold_quantity"`
	TotalSaleProceeds float64 `json:"total_sale_proceeds"`
}
