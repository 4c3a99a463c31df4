// Package tidal wraps the private Tidal API: search, album resolution, and
// lossless track streaming.
package tidal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidalarr/tidalarr/internal/auth"
	"github.com/tidalarr/tidalarr/internal/config"
	"github.com/tidalarr/tidalarr/internal/constants"
	"github.com/tidalarr/tidalarr/internal/domain"
	"github.com/tidalarr/tidalarr/internal/httpclient"
	"github.com/tidalarr/tidalarr/internal/logger"
)

// The client classifies responses into the shared sentinels so callers can
// tell "no match" apart from "token rejected".
var (
	ErrNotFound     = domain.ErrNotFound
	ErrUnauthorized = domain.ErrUnauthorized
)

// Client is an authenticated Tidal API client.
type Client struct {
	cfg     *config.Config
	session *auth.Session
	client  *httpclient.Client
	log     *logger.Logger
}

// NewClient creates a Tidal client that authenticates through session.
func NewClient(cfg *config.Config, session *auth.Session, client *httpclient.Client, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	return &Client{
		cfg:     cfg,
		session: session,
		client:  client,
		log:     log.WithComponent("tidal"),
	}
}

// Search queries the API for query and returns the parsed result. Only the
// album top hit is considered a usable match by callers.
func (c *Client) Search(ctx context.Context, query string) (*domain.SearchResult, error) {
	params := url.Values{"query": {query}}

	var resp searchResponse
	if err := c.getJSON(ctx, c.cfg.APIURL+"/search", params, &resp); err != nil {
		return nil, err
	}

	result := &domain.SearchResult{}
	for _, artist := range resp.Artists.Items {
		result.Artists = append(result.Artists, domain.Artist{ID: formatID(artist.ID), Name: artist.Name})
	}
	for _, album := range resp.Albums.Items {
		result.Albums = append(result.Albums, album.toDomain())
	}
	if resp.TopHit != nil && resp.TopHit.Type == "ALBUMS" {
		result.TopHitID = formatID(resp.TopHit.Value.ID)
	}

	c.log.Info("Search finished",
		"query", query,
		"artists", len(result.Artists),
		"albums", len(result.Albums),
		"top_hit", result.TopHitID != "")
	return result, nil
}

// GetAlbum fetches an album by id. Returns ErrNotFound for unknown ids.
func (c *Client) GetAlbum(ctx context.Context, albumID string) (*domain.Album, error) {
	var resp albumDTO
	if err := c.getJSON(ctx, c.cfg.APIURL+"/albums/"+url.PathEscape(albumID), nil, &resp); err != nil {
		return nil, err
	}
	album := resp.toDomain()
	return &album, nil
}

// GetAlbumTracks fetches the ordered track list of an album.
func (c *Client) GetAlbumTracks(ctx context.Context, albumID string) ([]domain.Track, error) {
	params := url.Values{"limit": {"100"}}

	var resp albumItemsResponse
	if err := c.getJSON(ctx, c.cfg.APIURL+"/albums/"+url.PathEscape(albumID)+"/items", params, &resp); err != nil {
		return nil, err
	}

	tracks := make([]domain.Track, 0, len(resp.Items))
	for _, item := range resp.Items {
		tracks = append(tracks, item.Item.toDomain())
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("album %s: %w", albumID, ErrNotFound)
	}
	return tracks, nil
}

// GetTrackStream resolves the playback info of a track at the configured
// quality and decodes the manifest into a direct stream URL.
func (c *Client) GetTrackStream(ctx context.Context, trackID string) (*domain.Stream, error) {
	params := url.Values{
		"audioquality":      {c.cfg.Quality},
		"playbackmode":      {constants.PlaybackModeStream},
		"assetpresentation": {constants.AssetPresentationFull},
	}

	var resp playbackInfoResponse
	endpoint := c.cfg.APIURL + "/tracks/" + url.PathEscape(trackID) + "/playbackinfopostpaywall"
	if err := c.getJSON(ctx, endpoint, params, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain()
}

// DownloadTrack opens the raw audio stream. The caller owns the ReadCloser.
func (c *Client) DownloadTrack(ctx context.Context, stream *domain.Stream) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stream.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream download failed with status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// GetAlbumCover downloads cover art, trying each CDN size until one works.
// Returns nil without error when no cover is available.
func (c *Client) GetAlbumCover(ctx context.Context, album *domain.Album) ([]byte, error) {
	for _, coverURL := range album.CoverURLs() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			continue
		}
		return data, nil
	}
	c.log.Info("Could not find a cover", "album", album.Title)
	return nil, nil
}

// GetTrackLyrics fetches lyrics for a track. Best effort: any failure is
// reported as empty lyrics.
func (c *Client) GetTrackLyrics(ctx context.Context, trackID string) string {
	params := url.Values{"locale": {"en_US"}, "deviceType": {"BROWSER"}}

	var resp lyricsResponse
	endpoint := c.cfg.LyricsURL + "/tracks/" + url.PathEscape(trackID) + "/lyrics"
	if err := c.getJSON(ctx, endpoint, params, &resp); err != nil {
		return ""
	}
	return resp.Lyrics
}

// getJSON performs an authenticated GET and decodes the JSON response,
// classifying 401 and 404 into sentinel errors.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	cred, err := c.session.EnsureAuthenticated(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("countryCode", c.session.CountryCode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
