package processors

import (
	"github.com/username/cartera/backend/src/models"
)

// ComputeCostBasis replays an operation timeline, pre-sorted ascending by
// date, and derives the running position state. Pure function: no hidden
// state, recomputed from scratch on every invocation.
//
// Sales remove cost at the weighted-average price in effect before the sale;
// redemptions remove their own proceeds directly, because a partial
// redemption returns the instrument's own cost rather than selling at a
// market price. Realized gain is tracked separately and never fed back into
// the cost basis.
//
// An oversold position (more sold than held) drives OpenQuantity negative and
// is passed through as-is: it is a visible symptom of missing upstream
// records, and clamping it would hide a genuine data gap.
func ComputeCostBasis(operations []models.Operation) models.CostBasisState {
	var state models.CostBasisState

	for _, op := range operations {
		switch op.Kind {
		case models.KindCompra, models.KindLicitacion:
			state.OpenQuantity += op.Quantity
			state.AccumulatedCost += op.AmountUSD + op.FeeUSD

		case models.KindVenta:
			var soldCost float64
			if state.OpenQuantity > 0 {
				avgCostBeforeSale := state.AccumulatedCost / state.OpenQuantity
				soldCost = avgCostBeforeSale * op.Quantity
				state.AccumulatedCost -= soldCost
			}
			state.OpenQuantity -= op.Quantity
			state.TotalSoldQuantity += op.Quantity
			state.TotalSaleProceeds += op.AmountUSD
			state.RealizedGain += op.AmountUSD - soldCost

		case models.KindRescateParcial:
			state.OpenQuantity -= op.Quantity
			state.AccumulatedCost -= op.AmountUSD
		}
	}

	if state.OpenQuantity > 0 {
		avg := state.AccumulatedCost / state.OpenQuantity
		state.WeightedAvgCost = &avg
	}
	if state.TotalSoldQuantity > 0 {
		avg := state.TotalSaleProceeds / state.TotalSoldQuantity
		state.WeightedAvgSalePrice = &avg
	}
	return state
}
