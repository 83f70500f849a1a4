package processors

import (
	"sort"
	"strings"

	"github.com/username/cartera/backend/src/models"
)

// IncomeProcessor derives the income/cash view from quantity-zero ledger
// postings: dividends, bond interest, amortizations, deposits, withdrawals
// and account fees.
type IncomeProcessor struct {
	normalizer *Normalizer
}

func NewIncomeProcessor(normalizer *Normalizer) *IncomeProcessor {
	return &IncomeProcessor{normalizer: normalizer}
}

// Process classifies and converts pure cash postings. Trade rows and
// redemption premiums are skipped: those belong to the operation timeline.
func (p *IncomeProcessor) Process(movements []models.RawMovement, quotes []models.FXQuote, fallbackRate float64) models.IncomeSummary {
	summary := models.IncomeSummary{
		Entries:          []models.IncomeEntry{},
		TotalsByCategory: make(map[string]float64),
	}

	for _, m := range movements {
		if m.Quantity != 0 {
			continue
		}
		if ClassifyOperationText(m.Description) == models.KindRescateParcial {
			continue
		}

		entry := models.IncomeEntry{
			Date:           m.ConcertationDate,
			Category:       ClassifyCashPosting(m.Description),
			Ticker:         m.Ticker,
			Description:    m.Description,
			AmountOriginal: m.Amount,
			Currency:       m.Currency,
			AmountUSD:      m.Amount,
			FXRateUsed:     1,
		}

		if strings.EqualFold(m.Currency, "ARS") {
			rate, fallback, ok := p.normalizer.resolveRate(m.ConcertationDate, quotes, fallbackRate)
			if !ok {
				logDroppedRecord("cash posting", "no FX rate resolvable and no fallback",
					"description", m.Description, "date", m.ConcertationDate)
				continue
			}
			entry.AmountUSD = m.Amount / rate
			entry.FXRateUsed = rate
			entry.FXFallback = fallback
		}

		summary.Entries = append(summary.Entries, entry)
		summary.TotalsByCategory[entry.Category] += entry.AmountUSD
	}

	sort.SliceStable(summary.Entries, func(i, j int) bool {
		return summary.Entries[i].Date < summary.Entries[j].Date
	})
	return summary
}

// FeeEntries extracts the explicit trading costs from a reconciled operation
// timeline.
func FeeEntries(operations []models.Operation) []models.FeeEntry {
	var fees []models.FeeEntry
	for _, op := range operations {
		if op.FeeUSD == 0 {
			continue
		}
		fees = append(fees, models.FeeEntry{
			Date:        op.Date,
			Ticker:      op.Ticker,
			Description: op.Description,
			FeeUSD:      op.FeeUSD,
		})
	}
	return fees
}
