package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/cartera/backend/src/config"
	"github.com/username/cartera/backend/src/fx"
	"github.com/username/cartera/backend/src/logger"
	"github.com/username/cartera/backend/src/utils"
)

type FXHandler struct {
	fxClient *fx.Client
}

func NewFXHandler(fxClient *fx.Client) *FXHandler {
	return &FXHandler{fxClient: fxClient}
}

// HandleGetRate resolves the rate for ?date=YYYY-MM-DD, falling back to the
// current MEP rate with explicit provenance in the response.
func (h *FXHandler) HandleGetRate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		utils.SendJSONError(w, "date is required", http.StatusBadRequest)
		return
	}

	quotes, err := h.fxClient.HistoricalQuotes(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Warn("Quote table unavailable for rate lookup", "error", err)
	}

	response := map[string]any{"date": date}
	if rate, ok := fx.ResolveRate(date, quotes, config.Cfg.FXLookbackDays); ok {
		response["rate"] = rate
		response["source"] = "historical"
	} else {
		mep, mepErr := h.fxClient.CurrentMEP(r.Context())
		if mepErr != nil {
			utils.SendJSONRetryableError(w, "no FX rate available for "+date, http.StatusBadGateway)
			return
		}
		response["rate"] = mep
		response["source"] = "mep_fallback"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
