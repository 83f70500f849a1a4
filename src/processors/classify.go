// Package processors contains the reconciliation pipeline: classification of
// free-text broker records, normalization into canonical operations, merging
// of overlapping sources, and the cost-basis replay. Stages never return
// errors to each other; unusable records are dropped and logged, and derived
// fields degrade to nil instead of aborting a computation.
package processors

import (
	"strings"

	"github.com/username/cartera/backend/src/logger"
	"github.com/username/cartera/backend/src/models"
)

// kindRule maps a lowercase, accent-stripped substring of the broker's
// free-text operation/description field to a canonical kind. Order matters:
// the first match wins, so more specific patterns come first ("Rescate
// Parcial" before anything else, "Licitación" before "Compra" because a
// licitación row often also mentions the purchase).
type kindRule struct {
	substr string
	kind   models.OperationKind
}

var kindRules = []kindRule{
	{"rescate", models.KindRescateParcial},
	{"licitaci", models.KindLicitacion},
	{"suscripci", models.KindCompra},
	{"compra", models.KindCompra},
	{"venta", models.KindVenta},
}

// ClassifyOperationText classifies a broker free-text operation or movement
// description. Unknown text yields KindUnclassified; callers drop and log
// such records rather than guessing.
func ClassifyOperationText(text string) models.OperationKind {
	needle := normalizeText(text)
	for _, rule := range kindRules {
		if strings.Contains(needle, rule.substr) {
			return rule.kind
		}
	}
	return models.KindUnclassified
}

// Cash-posting categories for quantity-zero ledger rows.
const (
	CategoryDividend     = "DIVIDEND"
	CategoryInterest     = "INTEREST"
	CategoryAmortization = "AMORTIZATION"
	CategoryDeposit      = "DEPOSIT"
	CategoryWithdrawal   = "WITHDRAWAL"
	CategoryFee          = "FEE"
	CategoryOther        = "OTHER"
)

var cashRules = []struct {
	substr   string
	category string
}{
	{"dividendo", CategoryDividend},
	{"renta", CategoryInterest},
	{"interes", CategoryInterest},
	{"cupon", CategoryInterest},
	{"amortizacion", CategoryAmortization},
	{"deposito", CategoryDeposit},
	{"transferencia recibida", CategoryDeposit},
	{"credito", CategoryDeposit},
	{"extraccion", CategoryWithdrawal},
	{"retiro", CategoryWithdrawal},
	{"transferencia enviada", CategoryWithdrawal},
	{"comision", CategoryFee},
	{"arancel", CategoryFee},
	{"derecho", CategoryFee},
	{"iva", CategoryFee},
}

// ClassifyCashPosting categorizes a quantity-zero movement by its
// description.
func ClassifyCashPosting(description string) string {
	needle := normalizeText(description)
	for _, rule := range cashRules {
		if strings.Contains(needle, rule.substr) {
			return rule.category
		}
	}
	return CategoryOther
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

// normalizeText lowercases and strips Spanish accents so substring rules
// match both "Licitación" and "LICITACION".
func normalizeText(s string) string {
	return accentReplacer.Replace(strings.ToLower(s))
}

func logDroppedRecord(what, reason string, attrs ...any) {
	args := append([]any{"reason", reason}, attrs...)
	logger.L.Warn("Dropping "+what, args...)
}
