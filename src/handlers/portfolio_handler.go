package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/username/cartera/backend/src/broker"
	"github.com/username/cartera/backend/src/logger"
	"github.com/username/cartera/backend/src/models"
	"github.com/username/cartera/backend/src/services"
	"github.com/username/cartera/backend/src/utils"
)

type PortfolioHandler struct {
	portfolioService services.PortfolioService
}

func NewPortfolioHandler(portfolioService services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{portfolioService: portfolioService}
}

// writeServiceError maps service errors to HTTP responses. Auth failures are
// retryable: the frontend shows a banner instead of discarding cached views.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, what string) {
	logger.FromContext(r.Context()).Error("Request failed", "what", what, "error", err)
	switch {
	case errors.Is(err, broker.ErrAuthCooldown):
		utils.SendJSONRetryableError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, broker.ErrNotAuthenticated), errors.Is(err, broker.ErrAuthRejected):
		utils.SendJSONRetryableError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, services.ErrUnknownTicker):
		utils.SendJSONError(w, err.Error(), http.StatusNotFound)
	default:
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving %s: %v", what, err), http.StatusInternalServerError)
	}
}

func (h *PortfolioHandler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	summary, err := h.portfolioService.GetPortfolio(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "portfolio")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

func (h *PortfolioHandler) HandleGetOperations(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	ops, err := h.portfolioService.GetOperations(r.Context(), ticker)
	if err != nil {
		writeServiceError(w, r, err, "operations")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ops)
}

func (h *PortfolioHandler) HandleGetCostBasis(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	state, err := h.portfolioService.GetCostBasis(r.Context(), ticker)
	if err != nil {
		writeServiceError(w, r, err, "cost basis")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

func (h *PortfolioHandler) HandleGetIncome(w http.ResponseWriter, r *http.Request) {
	income, err := h.portfolioService.GetIncome(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "income")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(income)
}

func (h *PortfolioHandler) HandleGetFees(w http.ResponseWriter, r *http.Request) {
	fees, err := h.portfolioService.GetFees(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "fees")
		return
	}
	if fees == nil {
		fees = []models.FeeEntry{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(fees)
}

func (h *PortfolioHandler) HandleGetProjectedCashFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := h.portfolioService.GetProjectedCashFlows(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "projected cash flows")
		return
	}
	if flows == nil {
		flows = []models.CashFlowPoint{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(flows)
}

func (h *PortfolioHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.portfolioService.InvalidateCache()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "message": "Derived cache invalidated"})
}
