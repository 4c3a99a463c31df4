package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tidalarr/tidalarr/internal/domain"
	"github.com/tidalarr/tidalarr/internal/queue"
	"github.com/tidalarr/tidalarr/internal/store"
)

type fakeQueue struct {
	enqueued []string
	result   queue.EnqueueResult
	status   []domain.AlbumRequest
}

func (q *fakeQueue) Enqueue(albumID string) queue.EnqueueResult {
	q.enqueued = append(q.enqueued, albumID)
	return q.result
}

func (q *fakeQueue) Status() []domain.AlbumRequest {
	return q.status
}

func newTestRouter(q QueueService, history *store.DB) chi.Router {
	r := chi.NewRouter()
	NewHandler(q, history, nil).RegisterRoutes(r)
	return r
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(&fakeQueue{}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}
}

func TestEnqueueAlbum(t *testing.T) {
	q := &fakeQueue{result: queue.Enqueued}
	r := newTestRouter(q, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/album/451392811", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != "451392811" {
		t.Errorf("enqueued = %v, want [451392811]", q.enqueued)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["album_id"] != "451392811" {
		t.Errorf("album_id = %q", body["album_id"])
	}
	if body["result"] != "enqueued" {
		t.Errorf("result = %q, want enqueued", body["result"])
	}
}

func TestEnqueueAlbumRejectsNonNumericID(t *testing.T) {
	q := &fakeQueue{result: queue.Enqueued}
	r := newTestRouter(q, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/album/not-an-id", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(q.enqueued) != 0 {
		t.Errorf("enqueued = %v, invalid id reached the queue", q.enqueued)
	}
}

func TestQueueStatus(t *testing.T) {
	q := &fakeQueue{status: []domain.AlbumRequest{
		{ID: "r1", AlbumID: "100", State: domain.StateDownloading, Title: "Album"},
		{ID: "r2", AlbumID: "200", State: domain.StateQueued},
	}}
	r := newTestRouter(q, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Requests []domain.AlbumRequest `json:"requests"`
		Count    int                   `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || len(body.Requests) != 2 {
		t.Fatalf("count = %d, requests = %d, want 2", body.Count, len(body.Requests))
	}
	if body.Requests[0].State != domain.StateDownloading {
		t.Errorf("requests[0].State = %s, want downloading", body.Requests[0].State)
	}
}

func TestDownloadHistory(t *testing.T) {
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.RecordDownload(&store.Download{AlbumID: "100", Folder: "/d/a", CompletedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	r := newTestRouter(&fakeQueue{}, db)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Downloads []store.Download `json:"downloads"`
		Count     int              `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 || len(body.Downloads) != 1 {
		t.Fatalf("count = %d, want 1", body.Count)
	}
	if body.Downloads[0].AlbumID != "100" {
		t.Errorf("album = %s, want 100", body.Downloads[0].AlbumID)
	}
}

func TestDownloadHistoryWithoutStore(t *testing.T) {
	r := newTestRouter(&fakeQueue{}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with empty history", rec.Code)
	}
}
