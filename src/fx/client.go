package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/username/cartera/backend/src/logger"
	"github.com/username/cartera/backend/src/models"
	"github.com/username/cartera/backend/src/store"
)

const (
	ckHistoricalTable = "fx_historical_table"
	ckCurrentMEP      = "fx_current_mep"

	memTableTTL = 24 * time.Hour
	memMEPTTL   = 1 * time.Hour
)

// Client fetches the rate provider's full historical daily table and the
// current-day MEP quote. Results go through two cache tiers: an in-memory
// go-cache for the process lifetime and the persistent kv store, which also
// serves as the stale fallback when the provider is unreachable.
type Client struct {
	httpClient *http.Client
	baseURL    string
	memCache   *gocache.Cache
	kv         *store.KV
}

func NewClient(baseURL string, kv *store.KV) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    baseURL,
		memCache:   gocache.New(memTableTTL, 48*time.Hour),
		kv:         kv,
	}
}

// HistoricalQuotes returns the full historical quote table, one row per
// (date, casa). The table is fetched at most once per day; a provider outage
// degrades to whatever table was last persisted, however old.
func (c *Client) HistoricalQuotes(ctx context.Context) ([]models.FXQuote, error) {
	if cached, found := c.memCache.Get(ckHistoricalTable); found {
		return cached.([]models.FXQuote), nil
	}

	today := time.Now().Format(dateLayout)
	var persisted []models.FXQuote
	if c.kv.FreshForDate(ckHistoricalTable, today) {
		if _, err := c.kv.GetJSON(ckHistoricalTable, memTableTTL, &persisted); err == nil && len(persisted) > 0 {
			c.memCache.Set(ckHistoricalTable, persisted, gocache.DefaultExpiration)
			return persisted, nil
		}
	}

	quotes, err := c.fetchTable(ctx)
	if err != nil {
		// Stale fallback: an old table still resolves most historical dates.
		persisted = nil
		if _, kvErr := c.kv.GetJSON(ckHistoricalTable, 365*24*time.Hour, &persisted); kvErr == nil && len(persisted) > 0 {
			logger.L.Warn("Rate provider unavailable, using stale quote table", "error", err, "rows", len(persisted))
			c.memCache.Set(ckHistoricalTable, persisted, gocache.DefaultExpiration)
			return persisted, nil
		}
		return nil, fmt.Errorf("fetching historical quote table: %w", err)
	}

	c.memCache.Set(ckHistoricalTable, quotes, gocache.DefaultExpiration)
	if err := c.kv.SetForDate(ckHistoricalTable, quotes, today); err != nil {
		logger.L.Warn("Failed to persist quote table", "error", err)
	}
	return quotes, nil
}

// CurrentMEP returns the current-day MEP rate, the explicit fallback applied
// when no historical rate resolves for an operation's date.
func (c *Client) CurrentMEP(ctx context.Context) (float64, error) {
	if cached, found := c.memCache.Get(ckCurrentMEP); found {
		return cached.(float64), nil
	}

	url := fmt.Sprintf("%s/bolsa", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching current MEP rate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate provider returned status %d for current MEP", resp.StatusCode)
	}

	var quote models.FXQuote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return 0, fmt.Errorf("decoding current MEP response: %w", err)
	}
	rate := quote.Mid()
	if rate <= 0 {
		return 0, fmt.Errorf("rate provider returned non-positive MEP rate %g", rate)
	}

	c.memCache.Set(ckCurrentMEP, rate, memMEPTTL)
	return rate, nil
}

// Refresh drops the in-memory table so the next read refetches. Wired to the
// daily cron schedule.
func (c *Client) Refresh(ctx context.Context) {
	c.memCache.Delete(ckHistoricalTable)
	c.memCache.Delete(ckCurrentMEP)
	if _, err := c.HistoricalQuotes(ctx); err != nil {
		logger.L.Error("Scheduled quote table refresh failed", "error", err)
	}
}

func (c *Client) fetchTable(ctx context.Context) ([]models.FXQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate provider returned status %d", resp.StatusCode)
	}

	var quotes []models.FXQuote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, fmt.Errorf("decoding quote table: %w", err)
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("rate provider returned an empty quote table")
	}
	logger.L.Info("Historical quote table fetched", "rows", len(quotes))
	return quotes, nil
}
