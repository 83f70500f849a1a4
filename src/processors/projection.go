package processors

import (
	"sort"
	"strings"

	"github.com/username/cartera/backend/src/models"
)

// ProjectCashFlows groups a projected bond cash-flow schedule into monthly
// USD buckets. Flow dates are in the future, so no historical rate can apply:
// ARS flows are converted at the current MEP rate, which is the best
// available estimate.
func ProjectCashFlows(flows []models.RawBondFlow, mepRate float64) []models.CashFlowPoint {
	byMonth := make(map[string]*models.CashFlowPoint)
	for _, f := range flows {
		if len(f.Date) < 7 {
			logDroppedRecord("bond flow", "malformed date", "ticker", f.Ticker, "date", f.Date)
			continue
		}
		amortization, interest := f.Amortization, f.Interest
		if strings.EqualFold(f.Currency, "ARS") {
			if mepRate <= 0 {
				logDroppedRecord("bond flow", "no MEP rate for ARS conversion", "ticker", f.Ticker, "date", f.Date)
				continue
			}
			amortization /= mepRate
			interest /= mepRate
		}

		month := f.Date[:7]
		point, ok := byMonth[month]
		if !ok {
			point = &models.CashFlowPoint{Month: month}
			byMonth[month] = point
		}
		point.AmortizationUSD += amortization
		point.InterestUSD += interest
		point.TotalUSD += amortization + interest
	}

	points := make([]models.CashFlowPoint, 0, len(byMonth))
	for _, p := range byMonth {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Month < points[j].Month })
	return points
}
