package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidalarr/tidalarr/internal/constants"
)

// RequestState represents where an album request is in its lifecycle
type RequestState string

const (
	StateQueued      RequestState = "queued"
	StateSearching   RequestState = "searching"
	StateNotFound    RequestState = "not_found"
	StateDownloading RequestState = "downloading"
	StateReady       RequestState = "ready"
	StateFailed      RequestState = "failed"
)

// Terminal reports whether the request will not transition further without an
// explicit re-enqueue.
func (s RequestState) Terminal() bool {
	switch s {
	case StateNotFound, StateReady, StateFailed:
		return true
	}
	return false
}

// AlbumRequest represents one album to be located and downloaded.
// Requests are keyed by AlbumID; ID identifies a single enqueue so a
// superseded terminal record can be told apart from its replacement.
type AlbumRequest struct {
	ID         string       `json:"id"`
	AlbumID    string       `json:"album_id"`
	State      RequestState `json:"state"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
	LastError  string       `json:"last_error,omitempty"`
	Title      string       `json:"title,omitempty"`
	Artist     string       `json:"artist,omitempty"`
	Folder     string       `json:"folder,omitempty"`
	Tracks     []Track      `json:"tracks,omitempty"`
}

// Artist is the minimal artist reference the API attaches to albums and tracks
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Album represents an album with the metadata needed to download and tag it
type Album struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Cover          string   `json:"cover,omitempty"`
	Duration       int      `json:"duration,omitempty"`
	NumberOfTracks int      `json:"number_of_tracks,omitempty"`
	AudioQuality   string   `json:"audio_quality,omitempty"`
	ReleaseDate    string   `json:"release_date,omitempty"`
	Artists        []Artist `json:"artists,omitempty"`
	CoverBytes     []byte   `json:"-"`
}

// Artist returns the primary artist name, empty if unknown
func (a *Album) Artist() string {
	if len(a.Artists) == 0 {
		return ""
	}
	return a.Artists[0].Name
}

// CoverURLs returns CDN cover URLs to try, largest size first
func (a *Album) CoverURLs() []string {
	if a.Cover == "" {
		return nil
	}
	path := strings.ReplaceAll(a.Cover, "-", "/")
	urls := make([]string, 0, len(constants.CoverSizes))
	for _, size := range constants.CoverSizes {
		urls = append(urls, fmt.Sprintf("%s/%s/%dx%d%s", constants.TidalImageBaseURL, path, size, size, constants.TidalImageExt))
	}
	return urls
}

// Track represents a track with full metadata for downloading
type Track struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Duration     int      `json:"duration"`
	ReplayGain   float64  `json:"replay_gain,omitempty"`
	Peak         float64  `json:"peak,omitempty"`
	TrackNumber  int      `json:"track_number"`
	VolumeNumber int      `json:"volume_number,omitempty"`
	ISRC         string   `json:"isrc,omitempty"`
	AudioQuality string   `json:"audio_quality,omitempty"`
	Artists      []Artist `json:"artists,omitempty"`
}

// Artist returns the primary artist name, empty if unknown
func (t *Track) Artist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

// Stream holds playback info for a single track
type Stream struct {
	TrackID            string  `json:"track_id"`
	AudioQuality       string  `json:"audio_quality"`
	ManifestMimeType   string  `json:"manifest_mime_type"`
	URL                string  `json:"url"`
	Codecs             string  `json:"codecs,omitempty"`
	BitDepth           int     `json:"bit_depth,omitempty"`
	SampleRate         int     `json:"sample_rate,omitempty"`
	AlbumReplayGain    float64 `json:"album_replay_gain,omitempty"`
	AlbumPeakAmplitude float64 `json:"album_peak_amplitude,omitempty"`
	TrackReplayGain    float64 `json:"track_replay_gain,omitempty"`
	TrackPeakAmplitude float64 `json:"track_peak_amplitude,omitempty"`
}

// SearchResult holds the albums and artists matched for a query, plus the
// album id of the top hit when the API flagged one
type SearchResult struct {
	Artists  []Artist `json:"artists"`
	Albums   []Album  `json:"albums"`
	TopHitID string   `json:"top_hit_id,omitempty"`
}

// TopHit returns the album flagged as the best match, nil when there is none
func (r *SearchResult) TopHit() *Album {
	if r.TopHitID == "" {
		return nil
	}
	for i := range r.Albums {
		if r.Albums[i].ID == r.TopHitID {
			return &r.Albums[i]
		}
	}
	return nil
}
