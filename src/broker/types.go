package broker

import (
	"github.com/username/cartera/backend/src/models"
)

// The broker marks "not applicable" numeric fields with a -1 sentinel. The
// DTOs below keep the wire shape; toOptional maps sentinels to nil before
// anything downstream sees them.

type orderDTO struct {
	Ticker            string  `json:"ticker"`
	Operation         string  `json:"tipoOperacion"`
	Status            string  `json:"estado"`
	Currency          string  `json:"moneda"`
	RequestedQuantity float64 `json:"cantidadPedida"`
	RequestedPrice    float64 `json:"precioPedido"`
	ExecutedQuantity  float64 `json:"cantidadEjecutada"`
	ExecutedPrice     float64 `json:"precioEjecutado"`
	Amount            float64 `json:"importe"`
	Fees              float64 `json:"gastos"`
	Date              string  `json:"fecha"`
	Time              string  `json:"hora"`
}

type movementDTO struct {
	Description      string  `json:"descripcion"`
	Ticker           string  `json:"ticker"`
	Quantity         float64 `json:"cantidad"`
	Price            float64 `json:"precio"`
	SettlementDate   string  `json:"fechaLiquidacion"`
	ConcertationDate string  `json:"fechaConcertacion"`
	Currency         string  `json:"moneda"`
	Amount           float64 `json:"importe"`
}

type holdingDTO struct {
	Ticker           string  `json:"ticker"`
	Description      string  `json:"descripcion"`
	Type             string  `json:"tipo"`
	Currency         string  `json:"moneda"`
	Quantity         float64 `json:"cantidad"`
	AveragePrice     float64 `json:"precioPromedio"`
	InitialCost      float64 `json:"costoInicial"`
	CurrentPrice     float64 `json:"precioActual"`
	CurrentValue     float64 `json:"valorActual"`
	UnrealizedPnL    float64 `json:"resultado"`
	UnrealizedPnLPct float64 `json:"resultadoPorcentual"`
}

type bondFlowDTO struct {
	Ticker       string  `json:"ticker"`
	Date         string  `json:"fecha"`
	Amortization float64 `json:"amortizacion"`
	Interest     float64 `json:"renta"`
	Currency     string  `json:"moneda"`
}

type instrumentInfoDTO struct {
	Ticker      string `json:"ticker"`
	Description string `json:"descripcion"`
	Type        string `json:"tipo"`
	Currency    string `json:"moneda"`
}

type pricePointDTO struct {
	Date     string  `json:"fecha"`
	Price    float64 `json:"precio"`
	Currency string  `json:"moneda"`
}

// toOptional maps the broker's -1 sentinel to nil.
func toOptional(v float64) *float64 {
	if v < 0 {
		return nil
	}
	return &v
}

func (d orderDTO) toModel() models.RawOrder {
	return models.RawOrder{
		Ticker:            d.Ticker,
		Operation:         d.Operation,
		Status:            d.Status,
		Currency:          d.Currency,
		RequestedQuantity: toOptional(d.RequestedQuantity),
		RequestedPrice:    toOptional(d.RequestedPrice),
		ExecutedQuantity:  toOptional(d.ExecutedQuantity),
		ExecutedPrice:     toOptional(d.ExecutedPrice),
		Amount:            d.Amount,
		Fees:              d.Fees,
		Date:              d.Date,
		Time:              d.Time,
	}
}

func (d movementDTO) toModel() models.RawMovement {
	return models.RawMovement{
		Description:      d.Description,
		Ticker:           d.Ticker,
		Quantity:         d.Quantity,
		Price:            toOptional(d.Price),
		SettlementDate:   d.SettlementDate,
		ConcertationDate: d.ConcertationDate,
		Currency:         d.Currency,
		Amount:           d.Amount,
	}
}

func (d holdingDTO) toModel() models.RawHolding {
	return models.RawHolding{
		Ticker:           d.Ticker,
		Description:      d.Description,
		Type:             d.Type,
		Currency:         d.Currency,
		Quantity:         d.Quantity,
		AveragePrice:     d.AveragePrice,
		InitialCost:      d.InitialCost,
		CurrentPrice:     d.CurrentPrice,
		CurrentValue:     d.CurrentValue,
		UnrealizedPnL:    d.UnrealizedPnL,
		UnrealizedPnLPct: d.UnrealizedPnLPct,
	}
}

func (d bondFlowDTO) toModel() models.RawBondFlow {
	return models.RawBondFlow{
		Ticker:       d.Ticker,
		Date:         d.Date,
		Amortization: d.Amortization,
		Interest:     d.Interest,
		Currency:     d.Currency,
	}
}

func (d pricePointDTO) toModel() models.PricePoint {
	return models.PricePoint{
		Date:     d.Date,
		Price:    d.Price,
		Currency: d.Currency,
	}
}

func (d instrumentInfoDTO) toModel() models.InstrumentInfo {
	return models.InstrumentInfo{
		Ticker:      d.Ticker,
		Description: d.Description,
		Type:        d.Type,
		Currency:    d.Currency,
	}
}
