package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/username/cartera/backend/src/broker"
	"github.com/username/cartera/backend/src/config"
	"github.com/username/cartera/backend/src/models"
)

// InstrumentHandler proxies the broker's static per-instrument record for
// the frontend's instrument detail panel.
type InstrumentHandler struct {
	brokerClient *broker.Client
}

func NewInstrumentHandler(brokerClient *broker.Client) *InstrumentHandler {
	return &InstrumentHandler{brokerClient: brokerClient}
}

func (h *InstrumentHandler) HandleGetInstrument(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	info, err := h.brokerClient.InstrumentInfo(r.Context(), ticker)
	if err != nil {
		writeServiceError(w, r, err, "instrument info")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// HandleGetPriceHistory returns an instrument's daily price series for the
// ?from=&to= range (defaults: configured history start through today).
func (h *InstrumentHandler) HandleGetPriceHistory(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	from := r.URL.Query().Get("from")
	if from == "" {
		from = config.Cfg.HistoryStartDate
	}
	to := r.URL.Query().Get("to")
	if to == "" {
		to = time.Now().Format("2006-01-02")
	}

	points, err := h.brokerClient.PriceHistory(r.Context(), ticker, from, to)
	if err != nil {
		writeServiceError(w, r, err, "price history")
		return
	}
	if points == nil {
		points = []models.PricePoint{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(points)
}
