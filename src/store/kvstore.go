// Package store implements the local key-value cache: string keys, JSON
// values, TTL semantics enforced entirely in application code. It is the
// single persistence surface of the program; there are no transactions beyond
// last-write-wins per key.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/username/cartera/backend/src/logger"
)

var ErrNotFound = errors.New("cache entry not found")

// Entry is a raw cache row. Data is the JSON-serialized payload, Timestamp
// the epoch-milliseconds write time, Fecha an optional YYYY-MM-DD the entry
// is valid for (used for date-keyed invalidation instead of age).
type Entry struct {
	Key       string
	Data      []byte
	Timestamp int64
	Fecha     string
}

// Age returns how long ago the entry was written.
func (e Entry) Age() time.Duration {
	return time.Since(time.UnixMilli(e.Timestamp))
}

// KV is the SQLite-backed cache store. Enabled is threaded in explicitly from
// configuration: when false, Get always misses and Set is a no-op, so a cold
// run can be forced without touching persisted data.
type KV struct {
	db      *sql.DB
	enabled bool
}

func NewKV(db *sql.DB, enabled bool) *KV {
	return &KV{db: db, enabled: enabled}
}

// Get returns the entry for key regardless of age. Callers decide freshness
// via Fresh/FreshForDate; an expired entry is still useful as a stale
// fallback after a failed fetch.
func (s *KV) Get(key string) (Entry, error) {
	if !s.enabled {
		return Entry{}, ErrNotFound
	}
	var e Entry
	var fecha sql.NullString
	row := s.db.QueryRow(`SELECT key, data, timestamp, fecha FROM cache_entries WHERE key = ?`, key)
	if err := row.Scan(&e.Key, &e.Data, &e.Timestamp, &fecha); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("reading cache entry %q: %w", key, err)
	}
	e.Fecha = fecha.String
	return e, nil
}

// GetJSON unmarshals the entry payload into out and reports whether the entry
// is younger than maxAge.
func (s *KV) GetJSON(key string, maxAge time.Duration, out any) (fresh bool, err error) {
	e, err := s.Get(key)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		// A corrupt entry is treated as absent; it will be overwritten on the
		// next successful fetch.
		logger.L.Warn("Discarding malformed cache entry", "key", key, "error", err)
		return false, ErrNotFound
	}
	return e.Age() <= maxAge, nil
}

// Set writes the JSON-serialized value under key, last write wins.
func (s *KV) Set(key string, value any) error {
	return s.SetForDate(key, value, "")
}

// SetForDate writes an entry tagged with the date it is valid for.
func (s *KV) SetForDate(key string, value any, fecha string) error {
	if !s.enabled {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("serializing cache entry %q: %w", key, err)
	}
	var f any
	if fecha != "" {
		f = fecha
	}
	_, err = s.db.Exec(`
		INSERT INTO cache_entries (key, data, timestamp, fecha) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			timestamp = excluded.timestamp,
			fecha = excluded.fecha`,
		key, string(data), time.Now().UnixMilli(), f,
	)
	if err != nil {
		return fmt.Errorf("writing cache entry %q: %w", key, err)
	}
	return nil
}

// Delete removes an entry. Missing keys are not an error.
func (s *KV) Delete(key string) error {
	if !s.enabled {
		return nil
	}
	if _, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting cache entry %q: %w", key, err)
	}
	return nil
}

// FreshForDate reports whether the entry exists and is tagged with fecha.
func (s *KV) FreshForDate(key, fecha string) bool {
	e, err := s.Get(key)
	if err != nil {
		return false
	}
	return e.Fecha == fecha
}

// PurgeOlderThan removes entries written before the cutoff. Run periodically
// so the store does not grow without bound.
func (s *KV) PurgeOlderThan(cutoff time.Duration) (int64, error) {
	if !s.enabled {
		return 0, nil
	}
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE timestamp < ?`,
		time.Now().Add(-cutoff).UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purging cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
