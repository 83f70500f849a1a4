package models

// RawOrder is the broker's record of a submitted or executed trade
// instruction, as returned by the historical-orders endpoint. The broker uses
// -1 as a "not applicable" sentinel for the executed fields; the client maps
// those to nil pointers at decode time so downstream code never has to reason
// about magic values.
type RawOrder struct {
	Ticker            string   `json:"ticker"`
	Operation         string   `json:"operation"` // free text: "Compra", "Venta", "Licitación", ...
	Status            string   `json:"status"`    // free text: "Ejecutada", "Cancelada", ...
	Currency          string   `json:"currency"`  // "ARS" or "USD"
	RequestedQuantity *float64 `json:"requested_quantity,omitempty"`
	RequestedPrice    *float64 `json:"requested_price,omitempty"`
	ExecutedQuantity  *float64 `json:"executed_quantity,omitempty"`
	ExecutedPrice     *float64 `json:"executed_price,omitempty"`
	Amount            float64  `json:"amount"`
	Fees              float64  `json:"fees"`
	Date              string   `json:"date"` // YYYY-MM-DD
	Time              string   `json:"time"`
}

// RawMovement is a single ledger posting from the historical-movements
// endpoint: trade settlements, dividends, interest, deposits, withdrawals and
// fees all share this shape. The free-text description is the only reliable
// discriminator of the sub-type.
type RawMovement struct {
	Description      string   `json:"description"`
	Ticker           string   `json:"ticker"` // empty for pure cash postings
	Quantity         float64  `json:"quantity"`
	Price            *float64 `json:"price,omitempty"` // nil when the broker reports -1
	SettlementDate   string   `json:"settlement_date"`   // YYYY-MM-DD
	ConcertationDate string   `json:"concertation_date"` // YYYY-MM-DD
	Currency         string   `json:"currency"`
	Amount           float64  `json:"amount"` // signed
}

// RawHolding is the broker's current-state snapshot for one instrument.
// Authoritative for as-of-now figures; absent for fully divested instruments.
type RawHolding struct {
	Ticker            string  `json:"ticker"`
	Description       string  `json:"description"`
	Type              string  `json:"type"` // "CEDEAR", "BONO", "FCI", ...
	Currency          string  `json:"currency"`
	Quantity          float64 `json:"quantity"`
	AveragePrice      float64 `json:"average_price"` // broker-computed PPC
	InitialCost       float64 `json:"initial_cost"`
	CurrentPrice      float64 `json:"current_price"`
	CurrentValue      float64 `json:"current_value"`
	UnrealizedPnL     float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct  float64 `json:"unrealized_pnl_pct"`
}

// RawBondFlow is one row of a projected bond cash-flow schedule for a held
// position.
type RawBondFlow struct {
	Ticker       string  `json:"ticker"`
	Date         string  `json:"date"` // YYYY-MM-DD
	Amortization float64 `json:"amortization"`
	Interest     float64 `json:"interest"`
	Currency     string  `json:"currency"`
}

// InstrumentInfo is the broker's static per-instrument record.
type InstrumentInfo struct {
	Ticker      string `json:"ticker"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Currency    string `json:"currency"`
}

// PricePoint is one day of an instrument's historical price series.
type PricePoint struct {
	Date     string  `json:"date"` // YYYY-MM-DD
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}
