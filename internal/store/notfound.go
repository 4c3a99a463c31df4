package store

import (
	"database/sql"
	"errors"
	"time"
)

// MarkNotFound records a search query that yielded no usable album.
func (db *DB) MarkNotFound(query string) error {
	q := `INSERT INTO not_found (query, last_checked) VALUES (?, ?)
		ON CONFLICT(query) DO UPDATE SET last_checked = excluded.last_checked`
	_, err := db.Exec(q, query, time.Now())
	return err
}

// RecentlyNotFound reports whether query missed within the recheck window, so
// the poller does not hammer the search API with known misses.
func (db *DB) RecentlyNotFound(query string, within time.Duration) (bool, error) {
	var lastChecked time.Time
	err := db.Get(&lastChecked, `SELECT last_checked FROM not_found WHERE query = ?`, query)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return time.Since(lastChecked) < within, nil
}

// ClearNotFound forgets a recorded miss, typically after the album shows up.
func (db *DB) ClearNotFound(query string) error {
	_, err := db.Exec(`DELETE FROM not_found WHERE query = ?`, query)
	return err
}
