// Package fx resolves USD/ARS conversion rates from the external rate
// provider's historical daily table, with nearest-prior-business-day fallback
// and a current-day MEP rate as the caller-supplied last resort.
package fx

import (
	"time"

	"github.com/username/cartera/backend/src/models"
)

// Source priority is fixed, not data-driven: a bolsa quote wins over a
// contadoconliqui quote for the same day even if the latter has a tighter
// spread.
var sourcePriority = []string{"bolsa", "contadoconliqui", "blue", "oficial"}

const dateLayout = "2006-01-02"

// ResolveRate resolves the authoritative rate for the given YYYY-MM-DD date
// from the quote table. If the exact date has no quote (weekend, holiday) it
// steps backward one calendar day at a time, up to lookbackDays, and applies
// the same priority selection at the first day with any quote. Returns
// ok=false when nothing is resolvable; the caller must then apply an explicit
// fallback and record which rate was actually used.
//
// A malformed or empty date returns ok=false immediately, with no date
// arithmetic attempted.
func ResolveRate(date string, quotes []models.FXQuote, lookbackDays int) (float64, bool) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0, false
	}

	byDate := make(map[string][]models.FXQuote, len(quotes))
	for _, q := range quotes {
		byDate[q.Date] = append(byDate[q.Date], q)
	}

	for back := 0; back <= lookbackDays; back++ {
		key := day.AddDate(0, 0, -back).Format(dateLayout)
		dayQuotes, ok := byDate[key]
		if !ok {
			continue
		}
		if rate, found := selectByPriority(dayQuotes); found {
			return rate, true
		}
	}
	return 0, false
}

func selectByPriority(quotes []models.FXQuote) (float64, bool) {
	for _, source := range sourcePriority {
		for _, q := range quotes {
			if q.Source == source {
				return q.Mid(), true
			}
		}
	}
	// Quotes exist for the day but none from a known source; treat the day
	// as empty so the backward walk continues.
	return 0, false
}
