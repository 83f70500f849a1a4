package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/cartera/backend/src/models"
)

func fptr(v float64) *float64 { return &v }

func testQuotes() []models.FXQuote {
	return []models.FXQuote{
		{Source: "bolsa", Date: "2024-03-15", Bid: 950, Ask: 1050},
	}
}

func newTestNormalizer() *Normalizer {
	return NewNormalizer(NormalizerConfig{})
}

func TestNormalizeOrderARSConversion(t *testing.T) {
	n := newTestNormalizer()
	order := models.RawOrder{
		Ticker:           "GGAL",
		Operation:        "Compra",
		Status:           "Ejecutada",
		Currency:         "ARS",
		ExecutedQuantity: fptr(10),
		ExecutedPrice:    fptr(1000),
		Amount:           10000,
		Fees:             50,
		Date:             "2024-03-18",
	}

	// The 18th has no quote; the backward walk lands on the 15th, mid 1000.
	op := n.NormalizeOrder(order, testQuotes(), 0)
	require.NotNil(t, op)
	assert.Equal(t, models.KindCompra, op.Kind)
	assert.InDelta(t, 1.0, op.PriceUSD, 1e-9)
	assert.InDelta(t, 10.0, op.AmountUSD, 1e-9)
	assert.InDelta(t, 0.05, op.FeeUSD, 1e-9)
	assert.Equal(t, 1000.0, op.FXRateUsed)
	assert.False(t, op.FXFallback)
	require.NotNil(t, op.PriceOriginal)
	assert.Equal(t, 1000.0, *op.PriceOriginal)
	require.NotNil(t, op.AmountOriginal)
	assert.Equal(t, 10000.0, *op.AmountOriginal)
	assert.Equal(t, models.SourceOrders, op.Source)
}

func TestNormalizeOrderUSDUntouched(t *testing.T) {
	n := newTestNormalizer()
	op := n.NormalizeOrder(models.RawOrder{
		Ticker:           "AAPL",
		Operation:        "Venta",
		Status:           "Ejecutada",
		Currency:         "USD",
		ExecutedQuantity: fptr(4),
		ExecutedPrice:    fptr(150),
		Amount:           600,
		Date:             "2024-03-18",
	}, testQuotes(), 0)
	require.NotNil(t, op)
	assert.Equal(t, models.KindVenta, op.Kind)
	assert.Equal(t, 150.0, op.PriceUSD)
	assert.Equal(t, 600.0, op.AmountUSD)
	assert.Equal(t, 1.0, op.FXRateUsed)
	assert.Nil(t, op.PriceOriginal)
}

func TestNormalizeOrderCancelled(t *testing.T) {
	n := newTestNormalizer()
	base := models.RawOrder{
		Ticker:            "GGAL",
		Operation:         "Compra",
		Currency:          "USD",
		RequestedQuantity: fptr(10),
		RequestedPrice:    fptr(5),
		Date:              "2024-03-18",
	}

	cancelled := base
	cancelled.Status = "Cancelada"
	assert.Nil(t, n.NormalizeOrder(cancelled, nil, 0))

	partial := base
	partial.Status = "Parcialmente Cancelada"
	partial.ExecutedQuantity = fptr(6)
	partial.ExecutedPrice = fptr(5)
	op := n.NormalizeOrder(partial, nil, 0)
	require.NotNil(t, op)
	assert.Equal(t, 6.0, op.Quantity)
}

func TestNormalizeOrderExecutedWinsOverRequested(t *testing.T) {
	n := newTestNormalizer()
	op := n.NormalizeOrder(models.RawOrder{
		Ticker:            "GGAL",
		Operation:         "Compra",
		Status:            "Ejecutada",
		Currency:          "USD",
		RequestedQuantity: fptr(100),
		RequestedPrice:    fptr(5.50),
		ExecutedQuantity:  fptr(80),
		ExecutedPrice:     fptr(5.40),
		Date:              "2024-03-18",
	}, nil, 0)
	require.NotNil(t, op)
	assert.Equal(t, 80.0, op.Quantity)
	assert.Equal(t, 5.40, op.PriceUSD)
}

func TestNormalizeOrderPriceDerivedFromAmount(t *testing.T) {
	n := newTestNormalizer()
	op := n.NormalizeOrder(models.RawOrder{
		Ticker:           "AL30",
		Operation:        "Licitación",
		Status:           "Ejecutada",
		Currency:         "USD",
		ExecutedQuantity: fptr(200),
		Amount:           104,
		Date:             "2024-03-18",
	}, nil, 0)
	require.NotNil(t, op)
	assert.Equal(t, models.KindLicitacion, op.Kind)
	assert.InDelta(t, 0.52, op.PriceUSD, 1e-9)
}

func TestNormalizeOrderDrops(t *testing.T) {
	n := newTestNormalizer()

	// No quantity at all.
	assert.Nil(t, n.NormalizeOrder(models.RawOrder{
		Ticker: "GGAL", Operation: "Compra", Status: "Ejecutada",
		Currency: "USD", RequestedPrice: fptr(5), Date: "2024-03-18",
	}, nil, 0))

	// No price and no amount to derive it from.
	assert.Nil(t, n.NormalizeOrder(models.RawOrder{
		Ticker: "GGAL", Operation: "Compra", Status: "Ejecutada",
		Currency: "USD", RequestedQuantity: fptr(10), Date: "2024-03-18",
	}, nil, 0))

	// Unclassifiable operation text.
	assert.Nil(t, n.NormalizeOrder(models.RawOrder{
		Ticker: "GGAL", Operation: "Transferencia de títulos", Status: "Ejecutada",
		Currency: "USD", RequestedQuantity: fptr(10), RequestedPrice: fptr(5), Date: "2024-03-18",
	}, nil, 0))

	// ARS with no resolvable rate and no fallback.
	assert.Nil(t, n.NormalizeOrder(models.RawOrder{
		Ticker: "GGAL", Operation: "Compra", Status: "Ejecutada",
		Currency: "ARS", RequestedQuantity: fptr(10), RequestedPrice: fptr(1000), Date: "2024-06-01",
	}, testQuotes(), 0))
}

func TestNormalizeOrderMEPFallbackRecorded(t *testing.T) {
	n := newTestNormalizer()
	op := n.NormalizeOrder(models.RawOrder{
		Ticker: "GGAL", Operation: "Compra", Status: "Ejecutada",
		Currency: "ARS", ExecutedQuantity: fptr(10), ExecutedPrice: fptr(1200), Date: "2024-06-01",
	}, testQuotes(), 1200)
	require.NotNil(t, op)
	assert.True(t, op.FXFallback)
	assert.Equal(t, 1200.0, op.FXRateUsed)
	assert.InDelta(t, 1.0, op.PriceUSD, 1e-9)
}

func TestNormalizeMovementsSingleARSRow(t *testing.T) {
	n := newTestNormalizer()
	ops := n.NormalizeMovements([]models.RawMovement{
		{
			Description:      "Compra GGAL",
			Ticker:           "GGAL",
			Quantity:         10,
			Price:            fptr(1000),
			ConcertationDate: "2024-03-15",
			Currency:         "ARS",
			Amount:           -10500,
		},
	}, testQuotes(), 0)
	require.Len(t, ops, 1)
	op := ops[0]
	assert.Equal(t, models.KindCompra, op.Kind)
	assert.InDelta(t, 1.0, op.PriceUSD, 1e-9)
	assert.InDelta(t, 10.0, op.AmountUSD, 1e-9)
	// The settled 10500 ARS includes costs; the residual over the gross trade
	// value is the fee.
	assert.InDelta(t, 0.5, op.FeeUSD, 1e-9)
	assert.Equal(t, models.SourceMovements, op.Source)
}

func TestNormalizeMovementsSaleRowFeeIsPositive(t *testing.T) {
	// On a sale the settled proceeds land below the gross trade value; the
	// residual is still reported as a positive cost.
	n := newTestNormalizer()
	ops := n.NormalizeMovements([]models.RawMovement{
		{
			Description:      "Venta GGAL",
			Ticker:           "GGAL",
			Quantity:         -10,
			Price:            fptr(1000),
			ConcertationDate: "2024-03-15",
			Currency:         "ARS",
			Amount:           9800,
		},
	}, testQuotes(), 0)
	require.Len(t, ops, 1)
	op := ops[0]
	assert.Equal(t, models.KindVenta, op.Kind)
	assert.InDelta(t, 10.0, op.AmountUSD, 1e-9)
	assert.InDelta(t, 0.2, op.FeeUSD, 1e-9)
	assert.GreaterOrEqual(t, op.FeeUSD, 0.0)
}

func TestNormalizeMovementsUSDTradeWithARSFeeRow(t *testing.T) {
	n := newTestNormalizer()
	ops := n.NormalizeMovements([]models.RawMovement{
		{
			Description:      "Venta AL30",
			Ticker:           "AL30",
			Quantity:         -100,
			Price:            fptr(5.2),
			ConcertationDate: "2024-03-15",
			Currency:         "USD",
			Amount:           520,
		},
		{
			Description:      "Venta AL30",
			Ticker:           "AL30",
			Quantity:         -100,
			ConcertationDate: "2024-03-15",
			Currency:         "ARS",
			Amount:           -50,
		},
	}, testQuotes(), 0)
	require.Len(t, ops, 1)
	op := ops[0]
	assert.Equal(t, models.KindVenta, op.Kind)
	assert.Equal(t, 100.0, op.Quantity)
	assert.Equal(t, 5.2, op.PriceUSD)
	assert.InDelta(t, 520.0, op.AmountUSD, 1e-9)
	assert.InDelta(t, 0.05, op.FeeUSD, 1e-9)
	require.NotNil(t, op.FeeOriginal)
	assert.Equal(t, 50.0, *op.FeeOriginal)
}

func TestNormalizeMovementsCashRowsExcluded(t *testing.T) {
	n := newTestNormalizer()
	ops := n.NormalizeMovements([]models.RawMovement{
		{Description: "Dividendos AAPL", Quantity: 0, ConcertationDate: "2024-03-15", Currency: "USD", Amount: 12.5},
		{Description: "Transferencia recibida", Quantity: 0, ConcertationDate: "2024-03-15", Currency: "ARS", Amount: 100000},
	}, testQuotes(), 0)
	assert.Empty(t, ops)
}

func TestNormalizeMovementsSameDayRedemptionsSummed(t *testing.T) {
	n := newTestNormalizer()
	ops := n.NormalizeMovements([]models.RawMovement{
		{
			Description:      "Rescate Parcial tramo A",
			Ticker:           "FCIUSD",
			Quantity:         -100,
			ConcertationDate: "2024-03-15",
			Currency:         "USD",
			Amount:           110,
		},
		{
			Description:      "Rescate Parcial tramo B",
			Ticker:           "FCIUSD",
			Quantity:         -50,
			ConcertationDate: "2024-03-15",
			Currency:         "USD",
			Amount:           56,
		},
	}, testQuotes(), 0)
	require.Len(t, ops, 1)
	op := ops[0]
	assert.Equal(t, models.KindRescateParcial, op.Kind)
	assert.Equal(t, 150.0, op.Quantity)
	assert.InDelta(t, 166.0, op.AmountUSD, 1e-9)
	assert.InDelta(t, 166.0/150.0, op.PriceUSD, 1e-9)
}

func TestNormalizeMovementsRedemptionPremiumFolded(t *testing.T) {
	n := newTestNormalizer()
	ops := n.NormalizeMovements([]models.RawMovement{
		{
			Description:      "Rescate Parcial",
			Ticker:           "FCIUSD",
			Quantity:         -100,
			ConcertationDate: "2024-03-10",
			Currency:         "USD",
			Amount:           100,
		},
		// Premium paid out five days later, quantity zero.
		{
			Description:      "Rescate Parcial - prima",
			Ticker:           "FCIUSD",
			Quantity:         0,
			ConcertationDate: "2024-03-15",
			Currency:         "USD",
			Amount:           4,
		},
	}, testQuotes(), 0)
	require.Len(t, ops, 1)
	assert.Equal(t, 100.0, ops[0].Quantity)
	assert.InDelta(t, 104.0, ops[0].AmountUSD, 1e-9)
	assert.InDelta(t, 1.04, ops[0].PriceUSD, 1e-9)
}

func TestNormalizeMovementsPremiumOutsideWindowIgnored(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{RedemptionLookbackDays: 21})
	ops := n.NormalizeMovements([]models.RawMovement{
		{
			Description:      "Rescate Parcial",
			Ticker:           "FCIUSD",
			Quantity:         -100,
			ConcertationDate: "2024-02-01",
			Currency:         "USD",
			Amount:           100,
		},
		{
			Description:      "Rescate Parcial - prima",
			Ticker:           "FCIUSD",
			Quantity:         0,
			ConcertationDate: "2024-03-15",
			Currency:         "USD",
			Amount:           4,
		},
	}, testQuotes(), 0)
	require.Len(t, ops, 1)
	assert.InDelta(t, 100.0, ops[0].AmountUSD, 1e-9)
}

func TestNormalizeMovementsOversizedClusterDropped(t *testing.T) {
	n := newTestNormalizer()
	row := models.RawMovement{
		Description:      "Compra GGAL",
		Ticker:           "GGAL",
		Quantity:         10,
		Price:            fptr(5),
		ConcertationDate: "2024-03-15",
		Currency:         "USD",
		Amount:           -50,
	}
	ops := n.NormalizeMovements([]models.RawMovement{row, row, row}, testQuotes(), 0)
	assert.Empty(t, ops)
}

func TestNormalizeMovementsSortedByDate(t *testing.T) {
	n := newTestNormalizer()
	ops := n.NormalizeMovements([]models.RawMovement{
		{Description: "Venta GGAL", Ticker: "GGAL", Quantity: -5, Price: fptr(6), ConcertationDate: "2024-03-15", Currency: "USD", Amount: 30},
		{Description: "Compra GGAL", Ticker: "GGAL", Quantity: 10, Price: fptr(5), ConcertationDate: "2024-03-01", Currency: "USD", Amount: -50},
	}, testQuotes(), 0)
	require.Len(t, ops, 2)
	assert.Equal(t, "2024-03-01", ops[0].Date)
	assert.Equal(t, "2024-03-15", ops[1].Date)
}
