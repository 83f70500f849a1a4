// Package broker is the client for the brokerage's private web API: token
// authentication, holdings snapshot, historical orders and movements, bond
// cash-flow schedules, prices and instrument info. All JSON over HTTPS.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/username/cartera/backend/src/logger"
	"github.com/username/cartera/backend/src/models"
	"github.com/username/cartera/backend/src/store"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

var (
	ErrNotAuthenticated = errors.New("broker: not authenticated")
	ErrAuthCooldown     = errors.New("broker: authentication in cooldown after a recent failure")
	ErrAuthRejected     = errors.New("broker: authentication rejected")
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config for the broker client.
type Config struct {
	BaseURL      string
	User         string
	Password     string
	Timeout      time.Duration
	AuthCooldown time.Duration
	// SafetyMargin is subtracted from the token expiry so a request never
	// departs with a token about to lapse mid-flight.
	SafetyMargin time.Duration
}

// Client talks to the broker API. The bearer token (~30 minutes validity) is
// held in memory and mirrored to the kv store, so a restart inside the token's
// lifetime resumes the session instead of re-running the auth exchange; an
// auth failure arms a cooldown window before the next attempt.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        Config
	kv         *store.KV

	mu            sync.Mutex
	token         string
	tokenExpiry   time.Time
	cooldownUntil time.Time
}

func NewClient(cfg Config, kv *store.KV) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.AuthCooldown <= 0 {
		cfg.AuthCooldown = 5 * time.Minute
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = time.Minute
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	c := &Client{
		httpClient: &http.Client{Jar: jar, Timeout: cfg.Timeout},
		// The broker throttles aggressively; stay well under its limits.
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
		cfg:     cfg,
		kv:      kv,
	}
	c.restoreToken()
	return c
}

// AuthStatus reports the current auth state for the frontend banner.
type AuthStatus struct {
	Authenticated bool      `json:"authenticated"`
	TokenExpiry   time.Time `json:"token_expiry,omitempty"`
	InCooldown    bool      `json:"in_cooldown"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
}

func (c *Client) Status() AuthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	return AuthStatus{
		Authenticated: c.token != "" && now.Before(c.tokenExpiry),
		TokenExpiry:   c.tokenExpiry,
		InCooldown:    now.Before(c.cooldownUntil),
		CooldownUntil: c.cooldownUntil,
	}
}

// Logout discards the current token, in memory and in the store.
func (c *Client) Logout() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
	c.dropStoredToken()
}

// Holdings fetches the current per-instrument snapshot.
func (c *Client) Holdings(ctx context.Context) ([]models.RawHolding, error) {
	var dtos []holdingDTO
	if err := c.getJSON(ctx, "/tenencia", nil, &dtos); err != nil {
		return nil, err
	}
	holdings := make([]models.RawHolding, 0, len(dtos))
	for _, d := range dtos {
		holdings = append(holdings, d.toModel())
	}
	return holdings, nil
}

// Orders fetches historical orders in the inclusive [from, to] date range.
func (c *Client) Orders(ctx context.Context, from, to string) ([]models.RawOrder, error) {
	q := url.Values{"fechaDesde": {from}, "fechaHasta": {to}}
	var dtos []orderDTO
	if err := c.getJSON(ctx, "/ordenes/historicas", q, &dtos); err != nil {
		return nil, err
	}
	orders := make([]models.RawOrder, 0, len(dtos))
	for _, d := range dtos {
		orders = append(orders, d.toModel())
	}
	return orders, nil
}

// Movements fetches historical ledger postings in the inclusive [from, to]
// date range.
func (c *Client) Movements(ctx context.Context, from, to string) ([]models.RawMovement, error) {
	q := url.Values{"fechaDesde": {from}, "fechaHasta": {to}}
	var dtos []movementDTO
	if err := c.getJSON(ctx, "/movimientos/historicos", q, &dtos); err != nil {
		return nil, err
	}
	movements := make([]models.RawMovement, 0, len(dtos))
	for _, d := range dtos {
		movements = append(movements, d.toModel())
	}
	return movements, nil
}

// BondFlows fetches the projected cash-flow schedule for held bonds.
func (c *Client) BondFlows(ctx context.Context) ([]models.RawBondFlow, error) {
	var dtos []bondFlowDTO
	if err := c.getJSON(ctx, "/bonos/flujos", nil, &dtos); err != nil {
		return nil, err
	}
	flows := make([]models.RawBondFlow, 0, len(dtos))
	for _, d := range dtos {
		flows = append(flows, d.toModel())
	}
	return flows, nil
}

// PriceHistory fetches an instrument's daily price series in the inclusive
// [from, to] date range.
func (c *Client) PriceHistory(ctx context.Context, ticker, from, to string) ([]models.PricePoint, error) {
	q := url.Values{"fechaDesde": {from}, "fechaHasta": {to}}
	var dtos []pricePointDTO
	if err := c.getJSON(ctx, "/cotizaciones/"+url.PathEscape(ticker), q, &dtos); err != nil {
		return nil, err
	}
	points := make([]models.PricePoint, 0, len(dtos))
	for _, d := range dtos {
		points = append(points, d.toModel())
	}
	return points, nil
}

// InstrumentInfo fetches the static record for one ticker.
func (c *Client) InstrumentInfo(ctx context.Context, ticker string) (models.InstrumentInfo, error) {
	var dto instrumentInfoDTO
	if err := c.getJSON(ctx, "/instrumentos/"+url.PathEscape(ticker), nil, &dto); err != nil {
		return models.InstrumentInfo{}, err
	}
	return dto.toModel(), nil
}

// getJSON performs an authenticated GET and decodes the response. Auth
// failures (401/403/520) purge the token, arm the cooldown and come back as
// a wrapped ErrNotAuthenticated so callers surface a retryable banner.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("broker request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, 520:
		c.purgeToken()
		logger.L.Warn("Broker rejected token", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("%w: status %d on %s", ErrNotAuthenticated, resp.StatusCode, path)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("broker returned status %d on %s: %s", resp.StatusCode, path, bytes.TrimSpace(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// Malformed payload is treated as "no fresh data" upstream.
		return fmt.Errorf("decoding broker response for %s: %w", path, err)
	}
	return nil
}

func (c *Client) purgeToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.cooldownUntil = time.Now().Add(c.cfg.AuthCooldown)
	c.mu.Unlock()
	c.dropStoredToken()
}
