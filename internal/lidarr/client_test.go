package lidarr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidalarr/tidalarr/internal/config"
	"github.com/tidalarr/tidalarr/internal/httpclient"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		LidarrURL:    srv.URL,
		LidarrAPIKey: "secret",
	}
	return NewClient(cfg, httpclient.NewClient(nil, 1000), nil)
}

func TestEnabled(t *testing.T) {
	c := NewClient(&config.Config{}, httpclient.NewClient(nil, 1000), nil)
	if c.Enabled() {
		t.Error("Enabled() = true without a Lidarr URL")
	}

	c = NewClient(&config.Config{LidarrURL: "http://lidarr:8686"}, httpclient.NewClient(nil, 1000), nil)
	if !c.Enabled() {
		t.Error("Enabled() = false with a Lidarr URL")
	}
}

func TestMissingAlbumsPaginatesAndFilters(t *testing.T) {
	pages := map[string][]map[string]any{
		"1": {
			{"title": "Wanted One", "albumType": "Album", "grabbed": false,
				"artist": map[string]any{"artistName": "Artist A"}},
			{"title": "Some Single", "albumType": "Single", "grabbed": false,
				"artist": map[string]any{"artistName": "Artist A"}},
			{"title": "Already Grabbed", "albumType": "Album", "grabbed": true,
				"artist": map[string]any{"artistName": "Artist B"}},
			{"title": "r3", "albumType": "EP", "grabbed": false, "artist": map[string]any{"artistName": "x"}},
			{"title": "r4", "albumType": "EP", "grabbed": false, "artist": map[string]any{"artistName": "x"}},
			{"title": "r5", "albumType": "EP", "grabbed": false, "artist": map[string]any{"artistName": "x"}},
			{"title": "r6", "albumType": "EP", "grabbed": false, "artist": map[string]any{"artistName": "x"}},
			{"title": "r7", "albumType": "EP", "grabbed": false, "artist": map[string]any{"artistName": "x"}},
			{"title": "r8", "albumType": "EP", "grabbed": false, "artist": map[string]any{"artistName": "x"}},
			{"title": "r9", "albumType": "EP", "grabbed": false, "artist": map[string]any{"artistName": "x"}},
		},
		"2": {
			{"title": "Wanted Two", "albumType": "Album", "grabbed": false,
				"artist": map[string]any{"artistName": "Artist C"}},
		},
	}

	var apiKeys []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wanted/missing" {
			http.NotFound(w, r)
			return
		}
		apiKeys = append(apiKeys, r.URL.Query().Get("apikey"))
		records := pages[r.URL.Query().Get("page")]
		json.NewEncoder(w).Encode(map[string]any{"records": records})
	})

	c := newTestClient(t, handler)
	queries, err := c.MissingAlbums(context.Background())
	if err != nil {
		t.Fatalf("MissingAlbums() error = %v", err)
	}

	found := map[string]bool{}
	for _, q := range queries {
		found[q] = true
	}
	if !found["Artist A Wanted One"] || !found["Artist C Wanted Two"] {
		t.Errorf("queries = %v, want both wanted albums", queries)
	}
	if found["Artist A Some Single"] {
		t.Error("non-Album release passed the filter")
	}
	if found["Artist B Already Grabbed"] {
		t.Error("grabbed album passed the filter")
	}
	// A short page ends pagination: exactly pages 1 and 2 are fetched.
	if len(apiKeys) != 2 {
		t.Errorf("fetched %d pages, want 2", len(apiKeys))
	}
	for _, key := range apiKeys {
		if key != "secret" {
			t.Errorf("apikey = %q, want secret", key)
		}
	}
}

func TestTriggerImport(t *testing.T) {
	var got map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/command" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
	})

	c := newTestClient(t, handler)
	if err := c.TriggerImport(context.Background(), "/downloads/Artist/Album"); err != nil {
		t.Fatalf("TriggerImport() error = %v", err)
	}
	if got["name"] != "DownloadedAlbumsScan" {
		t.Errorf("command name = %v, want DownloadedAlbumsScan", got["name"])
	}
	if got["path"] != "/downloads/Artist/Album" {
		t.Errorf("command path = %v, want the album folder", got["path"])
	}
}

func manualImportCandidate(path string, artistID, albumID int64, trackIDs []int64, rejections int) map[string]any {
	tracks := make([]map[string]any, 0, len(trackIDs))
	for _, id := range trackIDs {
		tracks = append(tracks, map[string]any{"id": id})
	}
	rejs := make([]map[string]any, 0, rejections)
	for i := 0; i < rejections; i++ {
		rejs = append(rejs, map[string]any{"reason": fmt.Sprintf("r%d", i)})
	}
	return map[string]any{
		"path":           path,
		"artist":         map[string]any{"id": artistID},
		"album":          map[string]any{"id": albumID},
		"albumReleaseId": int64(7),
		"tracks":         tracks,
		"quality":        map[string]any{"quality": map[string]any{"id": 6}},
		"rejections":     rejs,
	}
}

func TestManualImportTriggersCommand(t *testing.T) {
	var command map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/manualimport":
			if got := r.URL.Query().Get("folder"); got != "/downloads/Artist/Album" {
				t.Errorf("folder = %q, want the album folder", got)
			}
			json.NewEncoder(w).Encode([]map[string]any{
				manualImportCandidate("/downloads/Artist/Album/01 - Song.flac", 3, 9, []int64{101}, 0),
			})
		case "/command":
			json.NewDecoder(r.Body).Decode(&command)
		default:
			http.NotFound(w, r)
		}
	})

	c := newTestClient(t, handler)
	if err := c.ManualImport(context.Background(), "/downloads/Artist/Album"); err != nil {
		t.Fatalf("ManualImport() error = %v", err)
	}

	if command["name"] != "ManualImport" {
		t.Fatalf("command = %v, want ManualImport", command)
	}
	if command["importMode"] != "move" {
		t.Errorf("importMode = %v, want move", command["importMode"])
	}
	files, ok := command["files"].([]any)
	if !ok || len(files) != 1 {
		t.Fatalf("files = %v, want 1 entry", command["files"])
	}
	file := files[0].(map[string]any)
	if file["artistId"] != float64(3) || file["albumId"] != float64(9) {
		t.Errorf("file ids = %v/%v, want 3/9", file["artistId"], file["albumId"])
	}
}

func TestManualImportSkipsRejectedFolder(t *testing.T) {
	commands := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/manualimport":
			json.NewEncoder(w).Encode([]map[string]any{
				manualImportCandidate("/d/a/01.flac", 3, 9, []int64{101}, 0),
				manualImportCandidate("/d/a/02.flac", 3, 9, []int64{102}, 1),
			})
		case "/command":
			commands++
		default:
			http.NotFound(w, r)
		}
	})

	c := newTestClient(t, handler)
	if err := c.ManualImport(context.Background(), "/d/a"); err != nil {
		t.Fatalf("ManualImport() error = %v", err)
	}
	// One rejected track skips the whole folder, no partial import.
	if commands != 0 {
		t.Errorf("import command issued %d times, want 0", commands)
	}
}

func TestManualImportSkipsUnmatchedTracks(t *testing.T) {
	commands := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/manualimport":
			json.NewEncoder(w).Encode([]map[string]any{
				manualImportCandidate("/d/a/01.flac", 0, 9, []int64{101}, 0),
			})
		case "/command":
			commands++
		default:
			http.NotFound(w, r)
		}
	})

	c := newTestClient(t, handler)
	if err := c.ManualImport(context.Background(), "/d/a"); err != nil {
		t.Fatalf("ManualImport() error = %v", err)
	}
	if commands != 0 {
		t.Errorf("import command issued %d times, want 0", commands)
	}
}

func TestManualImportEmptyScan(t *testing.T) {
	commands := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/manualimport":
			json.NewEncoder(w).Encode([]map[string]any{})
		case "/command":
			commands++
		default:
			http.NotFound(w, r)
		}
	})

	c := newTestClient(t, handler)
	if err := c.ManualImport(context.Background(), "/d/a"); err != nil {
		t.Fatalf("ManualImport() error = %v", err)
	}
	if commands != 0 {
		t.Errorf("import command issued %d times, want 0", commands)
	}
}
