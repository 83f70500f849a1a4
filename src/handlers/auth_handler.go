package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/cartera/backend/src/broker"
	"github.com/username/cartera/backend/src/logger"
	"github.com/username/cartera/backend/src/utils"
)

// AuthHandler exposes the broker session state: the frontend polls status to
// render the retryable auth banner and can force a login or discard the
// token.
type AuthHandler struct {
	brokerClient *broker.Client
}

func NewAuthHandler(brokerClient *broker.Client) *AuthHandler {
	return &AuthHandler{brokerClient: brokerClient}
}

func (h *AuthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.brokerClient.Status())
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := h.brokerClient.Authenticate(r.Context()); err != nil {
		logger.FromContext(r.Context()).Warn("Broker login failed", "error", err)
		if errors.Is(err, broker.ErrAuthCooldown) {
			utils.SendJSONRetryableError(w, err.Error(), http.StatusTooManyRequests)
			return
		}
		utils.SendJSONRetryableError(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.brokerClient.Status())
}

func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.brokerClient.Logout()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
