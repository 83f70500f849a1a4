package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/username/cartera/backend/src/logger"
)

// The broker authenticates in two steps: the client posts a nonce and gets a
// session challenge back, then exchanges challenge plus credentials for a
// bearer token valid for roughly 30 minutes.

type authInitRequest struct {
	User  string `json:"usuario"`
	Nonce string `json:"nonce"`
}

type authInitResponse struct {
	Challenge string `json:"challenge"`
}

type authLoginRequest struct {
	User      string `json:"usuario"`
	Password  string `json:"clave"`
	Nonce     string `json:"nonce"`
	Challenge string `json:"challenge"`
}

type authLoginResponse struct {
	AccessToken string `json:"access_token"`
}

const tokenCacheKey = "broker_token"

// storedToken is the kv-store mirror of the in-memory session, so a restart
// inside the token's lifetime skips the auth exchange.
type storedToken struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}

// restoreToken loads a previously persisted token. An expired or unreadable
// entry is simply ignored; ensureToken will authenticate when needed.
func (c *Client) restoreToken() {
	if c.kv == nil {
		return
	}
	var st storedToken
	if _, err := c.kv.GetJSON(tokenCacheKey, time.Hour, &st); err != nil {
		return
	}
	if st.Token == "" || !time.Now().Add(c.cfg.SafetyMargin).Before(st.Expiry) {
		return
	}
	c.mu.Lock()
	c.token = st.Token
	c.tokenExpiry = st.Expiry
	c.mu.Unlock()
	logger.L.Info("Restored broker session from store", "tokenExpiry", st.Expiry.Format(time.RFC3339))
}

func (c *Client) persistToken(token string, expiry time.Time) {
	if c.kv == nil {
		return
	}
	if err := c.kv.Set(tokenCacheKey, storedToken{Token: token, Expiry: expiry}); err != nil {
		logger.L.Warn("Failed to persist broker token", "error", err)
	}
}

func (c *Client) dropStoredToken() {
	if c.kv == nil {
		return
	}
	if err := c.kv.Delete(tokenCacheKey); err != nil {
		logger.L.Warn("Failed to remove stored broker token", "error", err)
	}
}

// Authenticate runs the two-step exchange and stores the resulting token.
// A failed attempt arms the cooldown window; calling again inside the window
// fails fast with ErrAuthCooldown instead of hammering the endpoint.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	if time.Now().Before(c.cooldownUntil) {
		until := c.cooldownUntil
		c.mu.Unlock()
		return fmt.Errorf("%w (until %s)", ErrAuthCooldown, until.Format(time.RFC3339))
	}
	c.mu.Unlock()

	nonce := uuid.NewString()

	var initResp authInitResponse
	if err := c.postJSON(ctx, "/auth/init", authInitRequest{User: c.cfg.User, Nonce: nonce}, &initResp); err != nil {
		c.armCooldown()
		return fmt.Errorf("auth init: %w", err)
	}

	var loginResp authLoginResponse
	loginReq := authLoginRequest{
		User:      c.cfg.User,
		Password:  c.cfg.Password,
		Nonce:     nonce,
		Challenge: initResp.Challenge,
	}
	if err := c.postJSON(ctx, "/auth/login", loginReq, &loginResp); err != nil {
		c.armCooldown()
		return fmt.Errorf("auth login: %w", err)
	}
	if loginResp.AccessToken == "" {
		c.armCooldown()
		return fmt.Errorf("%w: empty access token", ErrAuthRejected)
	}

	expiry := tokenExpiry(loginResp.AccessToken)

	c.mu.Lock()
	c.token = loginResp.AccessToken
	c.tokenExpiry = expiry
	c.cooldownUntil = time.Time{}
	c.mu.Unlock()
	c.persistToken(loginResp.AccessToken, expiry)

	logger.L.Info("Broker authentication succeeded", "tokenExpiry", expiry.Format(time.RFC3339))
	return nil
}

// ensureToken returns a valid token, re-authenticating when the held one is
// missing or about to expire.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	valid := token != "" && time.Now().Add(c.cfg.SafetyMargin).Before(c.tokenExpiry)
	c.mu.Unlock()
	if valid {
		return token, nil
	}

	if err := c.Authenticate(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	token = c.token
	c.mu.Unlock()
	return token, nil
}

func (c *Client) armCooldown() {
	c.mu.Lock()
	c.cooldownUntil = time.Now().Add(c.cfg.AuthCooldown)
	c.mu.Unlock()
}

// tokenExpiry reads the exp claim from the bearer token without verifying the
// signature (only the broker can verify it; we just need the lifetime).
// Falls back to a conservative 25 minutes when the token is not a parseable
// JWT.
func tokenExpiry(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(25 * time.Minute)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("broker request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden, 520:
		return fmt.Errorf("%w: status %d", ErrAuthRejected, resp.StatusCode)
	default:
		return fmt.Errorf("broker returned status %d on %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding broker response for %s: %w", path, err)
	}
	return nil
}
