package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndGetDownload(t *testing.T) {
	db := newTestDB(t)

	completed := time.Now().Truncate(time.Second)
	d := &Download{AlbumID: "100", Folder: "/d/Artist/Album", CompletedAt: completed}
	if err := db.RecordDownload(d); err != nil {
		t.Fatalf("RecordDownload() error = %v", err)
	}

	got, err := db.GetDownload("100")
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetDownload() = nil for recorded album")
	}
	if got.Folder != "/d/Artist/Album" {
		t.Errorf("Folder = %q, want /d/Artist/Album", got.Folder)
	}
}

func TestGetDownloadMissing(t *testing.T) {
	db := newTestDB(t)

	got, err := db.GetDownload("nope")
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetDownload() = %+v, want nil for unknown album", got)
	}
}

func TestRecordDownloadUpserts(t *testing.T) {
	db := newTestDB(t)

	if err := db.RecordDownload(&Download{AlbumID: "100", Folder: "/old", CompletedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordDownload(&Download{AlbumID: "100", Folder: "/new", CompletedAt: time.Now()}); err != nil {
		t.Fatalf("re-recording the same album: %v", err)
	}

	got, err := db.GetDownload("100")
	if err != nil {
		t.Fatal(err)
	}
	if got.Folder != "/new" {
		t.Errorf("Folder = %q, want /new after upsert", got.Folder)
	}
}

func TestListDownloads(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"100", "200", "300"} {
		d := &Download{AlbumID: id, Folder: "/d/" + id, CompletedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := db.RecordDownload(d); err != nil {
			t.Fatal(err)
		}
	}

	downloads, err := db.ListDownloads(2)
	if err != nil {
		t.Fatalf("ListDownloads() error = %v", err)
	}
	if len(downloads) != 2 {
		t.Fatalf("ListDownloads(2) returned %d rows", len(downloads))
	}
	// Most recent first.
	if downloads[0].AlbumID != "300" || downloads[1].AlbumID != "200" {
		t.Errorf("order = [%s %s], want [300 200]", downloads[0].AlbumID, downloads[1].AlbumID)
	}
}

func TestNotFoundCache(t *testing.T) {
	db := newTestDB(t)

	recent, err := db.RecentlyNotFound("artist album", time.Hour)
	if err != nil {
		t.Fatalf("RecentlyNotFound() error = %v", err)
	}
	if recent {
		t.Error("RecentlyNotFound() = true before any miss was recorded")
	}

	if err := db.MarkNotFound("artist album"); err != nil {
		t.Fatalf("MarkNotFound() error = %v", err)
	}

	recent, err = db.RecentlyNotFound("artist album", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !recent {
		t.Error("RecentlyNotFound() = false right after MarkNotFound")
	}

	// A zero recheck window means every miss is due again.
	recent, err = db.RecentlyNotFound("artist album", 0)
	if err != nil {
		t.Fatal(err)
	}
	if recent {
		t.Error("RecentlyNotFound() = true with an elapsed window")
	}

	if err := db.ClearNotFound("artist album"); err != nil {
		t.Fatalf("ClearNotFound() error = %v", err)
	}
	recent, err = db.RecentlyNotFound("artist album", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if recent {
		t.Error("RecentlyNotFound() = true after ClearNotFound")
	}
}

func TestMarkNotFoundUpserts(t *testing.T) {
	db := newTestDB(t)

	if err := db.MarkNotFound("q"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkNotFound("q"); err != nil {
		t.Errorf("second MarkNotFound() error = %v", err)
	}
}
