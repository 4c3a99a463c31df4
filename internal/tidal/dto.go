package tidal

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/tidalarr/tidalarr/internal/domain"
)

// API response shapes. Tidal uses camelCase field names and numeric ids; these
// are normalized into domain models before anything else touches them.

type artistDTO struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

type albumDTO struct {
	ID             json.Number `json:"id"`
	Title          string      `json:"title"`
	Cover          string      `json:"cover"`
	Duration       int         `json:"duration"`
	NumberOfTracks int         `json:"numberOfTracks"`
	AudioQuality   string      `json:"audioQuality"`
	ReleaseDate    string      `json:"releaseDate"`
	AllowStreaming bool        `json:"allowStreaming"`
	Artists        []artistDTO `json:"artists"`
	Artist         *artistDTO  `json:"artist"`
}

type trackDTO struct {
	ID           json.Number `json:"id"`
	Title        string      `json:"title"`
	Duration     int         `json:"duration"`
	ReplayGain   float64     `json:"replayGain"`
	Peak         float64     `json:"peak"`
	TrackNumber  int         `json:"trackNumber"`
	VolumeNumber int         `json:"volumeNumber"`
	ISRC         string      `json:"isrc"`
	AudioQuality string      `json:"audioQuality"`
	Artists      []artistDTO `json:"artists"`
}

type searchResponse struct {
	Artists struct {
		Items []artistDTO `json:"items"`
	} `json:"artists"`
	Albums struct {
		Items []albumDTO `json:"items"`
	} `json:"albums"`
	TopHit *struct {
		Type  string `json:"type"`
		Value struct {
			ID json.Number `json:"id"`
		} `json:"value"`
	} `json:"topHit"`
}

type albumItemsResponse struct {
	Items []struct {
		Item trackDTO `json:"item"`
	} `json:"items"`
}

type playbackInfoResponse struct {
	TrackID            json.Number `json:"trackId"`
	AudioQuality       string      `json:"audioQuality"`
	ManifestMimeType   string      `json:"manifestMimeType"`
	Manifest           string      `json:"manifest"`
	BitDepth           int         `json:"bitDepth"`
	SampleRate         int         `json:"sampleRate"`
	AlbumReplayGain    float64     `json:"albumReplayGain"`
	AlbumPeakAmplitude float64     `json:"albumPeakAmplitude"`
	TrackReplayGain    float64     `json:"trackReplayGain"`
	TrackPeakAmplitude float64     `json:"trackPeakAmplitude"`
}

// streamManifest is the base64-decoded playback manifest
type streamManifest struct {
	MimeType       string   `json:"mimeType"`
	Codecs         string   `json:"codecs"`
	EncryptionType string   `json:"encryptionType"`
	URLs           []string `json:"urls"`
}

type lyricsResponse struct {
	Lyrics string `json:"lyrics"`
}

func formatID(n json.Number) string {
	return n.String()
}

func (a albumDTO) toDomain() domain.Album {
	album := domain.Album{
		ID:             formatID(a.ID),
		Title:          a.Title,
		Cover:          a.Cover,
		Duration:       a.Duration,
		NumberOfTracks: a.NumberOfTracks,
		AudioQuality:   a.AudioQuality,
		ReleaseDate:    a.ReleaseDate,
	}
	for _, artist := range a.Artists {
		album.Artists = append(album.Artists, domain.Artist{ID: formatID(artist.ID), Name: artist.Name})
	}
	if len(album.Artists) == 0 && a.Artist != nil {
		album.Artists = []domain.Artist{{ID: formatID(a.Artist.ID), Name: a.Artist.Name}}
	}
	return album
}

func (t trackDTO) toDomain() domain.Track {
	track := domain.Track{
		ID:           formatID(t.ID),
		Title:        t.Title,
		Duration:     t.Duration,
		ReplayGain:   t.ReplayGain,
		Peak:         t.Peak,
		TrackNumber:  t.TrackNumber,
		VolumeNumber: t.VolumeNumber,
		ISRC:         t.ISRC,
		AudioQuality: t.AudioQuality,
	}
	for _, artist := range t.Artists {
		track.Artists = append(track.Artists, domain.Artist{ID: formatID(artist.ID), Name: artist.Name})
	}
	return track
}

func (p playbackInfoResponse) toDomain() (*domain.Stream, error) {
	raw, err := base64.StdEncoding.DecodeString(p.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stream manifest: %w", err)
	}

	var manifest streamManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse stream manifest: %w", err)
	}
	if len(manifest.URLs) == 0 {
		return nil, fmt.Errorf("stream manifest has no URLs")
	}

	return &domain.Stream{
		TrackID:            formatID(p.TrackID),
		AudioQuality:       p.AudioQuality,
		ManifestMimeType:   p.ManifestMimeType,
		URL:                manifest.URLs[0],
		Codecs:             manifest.Codecs,
		BitDepth:           p.BitDepth,
		SampleRate:         p.SampleRate,
		AlbumReplayGain:    p.AlbumReplayGain,
		AlbumPeakAmplitude: p.AlbumPeakAmplitude,
		TrackReplayGain:    p.TrackReplayGain,
		TrackPeakAmplitude: p.TrackPeakAmplitude,
	}, nil
}
