package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestKV(t *testing.T, enabled bool) *KV {
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
	return NewKV(db, enabled)
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestKVSetGetRoundTrip(t *testing.T) {
	kv := newTestKV(t, true)

	require.NoError(t, kv.Set("k1", payload{Name: "holdings", Count: 3}))

	var out payload
	fresh, err := kv.GetJSON("k1", time.Hour, &out)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, payload{Name: "holdings", Count: 3}, out)
}

func TestKVMiss(t *testing.T) {
	kv := newTestKV(t, true)
	_, err := kv.Get("absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKVExpiredEntryStillReadable(t *testing.T) {
	kv := newTestKV(t, true)
	require.NoError(t, kv.Set("k1", payload{Name: "orders"}))

	var out payload
	fresh, err := kv.GetJSON("k1", 0, &out)
	require.NoError(t, err, "an expired entry is still returned as a stale fallback")
	assert.False(t, fresh)
	assert.Equal(t, "orders", out.Name)
}

func TestKVLastWriteWins(t *testing.T) {
	kv := newTestKV(t, true)
	require.NoError(t, kv.Set("k1", payload{Count: 1}))
	require.NoError(t, kv.Set("k1", payload{Count: 2}))

	var out payload
	_, err := kv.GetJSON("k1", time.Hour, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
}

func TestKVMalformedEntryTreatedAsAbsent(t *testing.T) {
	kv := newTestKV(t, true)
	_, err := kv.db.Exec(`INSERT INTO cache_entries (key, data, timestamp) VALUES (?, ?, ?)`,
		"bad", "{not json", time.Now().UnixMilli())
	require.NoError(t, err)

	var out payload
	_, err = kv.GetJSON("bad", time.Hour, &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKVFreshForDate(t *testing.T) {
	kv := newTestKV(t, true)
	require.NoError(t, kv.SetForDate("quotes", payload{}, "2024-03-15"))

	assert.True(t, kv.FreshForDate("quotes", "2024-03-15"))
	assert.False(t, kv.FreshForDate("quotes", "2024-03-16"))
	assert.False(t, kv.FreshForDate("absent", "2024-03-15"))
}

func TestKVDelete(t *testing.T) {
	kv := newTestKV(t, true)
	require.NoError(t, kv.Set("k1", payload{}))
	require.NoError(t, kv.Delete("k1"))
	_, err := kv.Get("k1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, kv.Delete("never-existed"))
}

func TestKVPurgeOlderThan(t *testing.T) {
	kv := newTestKV(t, true)
	old := time.Now().Add(-48 * time.Hour).UnixMilli()
	_, err := kv.db.Exec(`INSERT INTO cache_entries (key, data, timestamp) VALUES (?, ?, ?)`,
		"old", "{}", old)
	require.NoError(t, err)
	require.NoError(t, kv.Set("recent", payload{}))

	n, err := kv.PurgeOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = kv.Get("old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = kv.Get("recent")
	assert.NoError(t, err)
}

func TestKVDisabled(t *testing.T) {
	kv := newTestKV(t, false)

	require.NoError(t, kv.Set("k1", payload{Count: 1}))
	_, err := kv.Get("k1")
	assert.ErrorIs(t, err, ErrNotFound, "a disabled store never hits")

	n, err := kv.PurgeOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}
