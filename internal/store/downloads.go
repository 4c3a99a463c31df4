package store

import (
	"database/sql"
	"errors"
	"time"
)

// Download records an album that was fully downloaded and where it went.
type Download struct {
	AlbumID     string    `json:"album_id" db:"album_id"`
	Folder      string    `json:"folder" db:"folder"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

func (db *DB) RecordDownload(d *Download) error {
	query := `INSERT INTO downloads (album_id, folder, completed_at) VALUES (?, ?, ?)
		ON CONFLICT(album_id) DO UPDATE SET folder = excluded.folder, completed_at = excluded.completed_at`
	_, err := db.Exec(query, d.AlbumID, d.Folder, d.CompletedAt)
	return err
}

func (db *DB) GetDownload(albumID string) (*Download, error) {
	var d Download
	err := db.Get(&d, `SELECT album_id, folder, completed_at FROM downloads WHERE album_id = ?`, albumID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (db *DB) ListDownloads(limit int) ([]Download, error) {
	var downloads []Download
	err := db.Select(&downloads, `SELECT album_id, folder, completed_at FROM downloads ORDER BY completed_at DESC LIMIT ?`, limit)
	return downloads, err
}
