package models

// FXQuote is a single historical daily USD/ARS quote from the external rate
// provider. The provider publishes several rows per day, one per "casa"
// (bolsa, contadoconliqui, blue, oficial).
type FXQuote struct {
	Source string  `json:"casa"`
	Date   string  `json:"fecha"` // YYYY-MM-DD
	Bid    float64 `json:"compra"`
	Ask    float64 `json:"venta"`
}

// Mid returns the midpoint between bid and ask.
func (q FXQuote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}
