package fx

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/cartera/backend/src/models"
	"github.com/username/cartera/backend/src/store"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *store.KV {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE cache_entries (
		key TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		fecha TEXT
	)`)
	require.NoError(t, err)
	return store.NewKV(db, true)
}

func TestHistoricalQuotesFetchedOncePerProcess(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode([]models.FXQuote{
			{Source: "bolsa", Date: "2024-03-15", Bid: 990, Ask: 1010},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, newTestStore(t))
	ctx := context.Background()

	first, err := c.HistoricalQuotes(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := c.HistoricalQuotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load(), "the second read must come from cache")
}

func TestHistoricalQuotesStaleFallbackOnOutage(t *testing.T) {
	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode([]models.FXQuote{
			{Source: "bolsa", Date: "2024-03-15", Bid: 990, Ask: 1010},
		})
	}))
	defer server.Close()

	kv := newTestStore(t)
	ctx := context.Background()

	// First client populates the persistent store.
	first := NewClient(server.URL, kv)
	_, err := first.HistoricalQuotes(ctx)
	require.NoError(t, err)

	// A fresh process during a provider outage still gets the old table. The
	// persisted entry is tagged with today's date, so force the refetch path
	// by restamping it.
	require.NoError(t, kv.SetForDate(ckHistoricalTable,
		[]models.FXQuote{{Source: "bolsa", Date: "2024-03-15", Bid: 990, Ask: 1010}}, "2020-01-01"))
	failing.Store(true)

	second := NewClient(server.URL, kv)
	quotes, err := second.HistoricalQuotes(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "bolsa", quotes[0].Source)
}

func TestHistoricalQuotesOutageWithEmptyStoreFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, newTestStore(t))
	_, err := c.HistoricalQuotes(context.Background())
	assert.Error(t, err)
}

func TestCurrentMEP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bolsa", r.URL.Path)
		json.NewEncoder(w).Encode(models.FXQuote{Source: "bolsa", Date: "2024-03-15", Bid: 1190, Ask: 1210})
	}))
	defer server.Close()

	c := NewClient(server.URL, newTestStore(t))
	rate, err := c.CurrentMEP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1200.0, rate)
}

func TestCurrentMEPRejectsNonPositiveRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.FXQuote{Source: "bolsa", Date: "2024-03-15"})
	}))
	defer server.Close()

	c := NewClient(server.URL, newTestStore(t))
	_, err := c.CurrentMEP(context.Background())
	assert.Error(t, err)
}
