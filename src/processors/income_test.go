package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/cartera/backend/src/models"
)

func TestIncomeProcessorClassifiesAndConverts(t *testing.T) {
	p := NewIncomeProcessor(newTestNormalizer())
	summary := p.Process([]models.RawMovement{
		{Description: "Dividendos AAPL", Ticker: "AAPL", Quantity: 0, ConcertationDate: "2024-03-15", Currency: "USD", Amount: 12.5},
		{Description: "Renta AL30", Ticker: "AL30", Quantity: 0, ConcertationDate: "2024-03-15", Currency: "ARS", Amount: 5000},
		// Trade row: not income.
		{Description: "Compra GGAL", Ticker: "GGAL", Quantity: 10, ConcertationDate: "2024-03-15", Currency: "ARS", Amount: -10000},
	}, testQuotes(), 0)

	require.Len(t, summary.Entries, 2)
	assert.Equal(t, CategoryDividend, summary.Entries[0].Category)
	assert.Equal(t, 12.5, summary.Entries[0].AmountUSD)

	renta := summary.Entries[1]
	assert.Equal(t, CategoryInterest, renta.Category)
	assert.InDelta(t, 5.0, renta.AmountUSD, 1e-9)
	assert.Equal(t, 1000.0, renta.FXRateUsed)
	assert.Equal(t, 5000.0, renta.AmountOriginal)

	assert.InDelta(t, 12.5, summary.TotalsByCategory[CategoryDividend], 1e-9)
	assert.InDelta(t, 5.0, summary.TotalsByCategory[CategoryInterest], 1e-9)
}

func TestIncomeProcessorSkipsRedemptionPremiums(t *testing.T) {
	p := NewIncomeProcessor(newTestNormalizer())
	summary := p.Process([]models.RawMovement{
		{Description: "Rescate Parcial - prima", Ticker: "FCIUSD", Quantity: 0, ConcertationDate: "2024-03-15", Currency: "USD", Amount: 4},
	}, testQuotes(), 0)
	assert.Empty(t, summary.Entries)
}

func TestIncomeProcessorDropsUnconvertibleARS(t *testing.T) {
	p := NewIncomeProcessor(newTestNormalizer())
	summary := p.Process([]models.RawMovement{
		{Description: "Renta AL30", Ticker: "AL30", Quantity: 0, ConcertationDate: "2024-06-01", Currency: "ARS", Amount: 5000},
	}, testQuotes(), 0)
	assert.Empty(t, summary.Entries)
}

func TestFeeEntries(t *testing.T) {
	ops := []models.Operation{
		{Ticker: "GGAL", Date: "2024-03-01", Description: "Compra GGAL", FeeUSD: 0.5},
		{Ticker: "GGAL", Date: "2024-03-02", Description: "Venta GGAL", FeeUSD: 0},
		{Ticker: "AL30", Date: "2024-03-03", Description: "Venta AL30", FeeUSD: 0.05},
	}
	fees := FeeEntries(ops)
	require.Len(t, fees, 2)
	assert.Equal(t, "GGAL", fees[0].Ticker)
	assert.Equal(t, 0.05, fees[1].FeeUSD)
}

func TestProjectCashFlowsMonthlyBuckets(t *testing.T) {
	flows := []models.RawBondFlow{
		{Ticker: "AL30", Date: "2025-01-09", Amortization: 40, Interest: 2, Currency: "USD"},
		{Ticker: "GD30", Date: "2025-01-15", Amortization: 0, Interest: 3, Currency: "USD"},
		{Ticker: "TX26", Date: "2025-07-09", Amortization: 50000, Interest: 10000, Currency: "ARS"},
	}
	points := ProjectCashFlows(flows, 1000)

	require.Len(t, points, 2)
	jan := points[0]
	assert.Equal(t, "2025-01", jan.Month)
	assert.InDelta(t, 40.0, jan.AmortizationUSD, 1e-9)
	assert.InDelta(t, 5.0, jan.InterestUSD, 1e-9)
	assert.InDelta(t, 45.0, jan.TotalUSD, 1e-9)

	jul := points[1]
	assert.Equal(t, "2025-07", jul.Month)
	assert.InDelta(t, 50.0, jul.AmortizationUSD, 1e-9)
	assert.InDelta(t, 10.0, jul.InterestUSD, 1e-9)
}

func TestProjectCashFlowsARSWithoutMEPDropped(t *testing.T) {
	flows := []models.RawBondFlow{
		{Ticker: "TX26", Date: "2025-07-09", Amortization: 50000, Interest: 10000, Currency: "ARS"},
	}
	assert.Empty(t, ProjectCashFlows(flows, 0))
}
