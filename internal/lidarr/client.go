// Package lidarr talks to the library manager: missing-album discovery and
// import triggering once downloads land.
package lidarr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidalarr/tidalarr/internal/config"
	"github.com/tidalarr/tidalarr/internal/httpclient"
	"github.com/tidalarr/tidalarr/internal/logger"
)

const missingPageSize = 10

// Client is a Lidarr API client.
type Client struct {
	cfg    *config.Config
	client *httpclient.Client
	log    *logger.Logger
}

// NewClient creates a Lidarr client.
func NewClient(cfg *config.Config, client *httpclient.Client, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	return &Client{
		cfg:    cfg,
		client: client,
		log:    log.WithComponent("lidarr"),
	}
}

// Enabled reports whether Lidarr integration is configured.
func (c *Client) Enabled() bool {
	return c.cfg.LidarrURL != ""
}

type missingRecord struct {
	Title     string `json:"title"`
	AlbumType string `json:"albumType"`
	Grabbed   bool   `json:"grabbed"`
	Artist    struct {
		ArtistName string `json:"artistName"`
	} `json:"artist"`
}

type missingResponse struct {
	Records []missingRecord `json:"records"`
}

// MissingAlbums pages through the wanted/missing endpoint and returns one
// "Artist Title" query string per album not yet grabbed.
func (c *Client) MissingAlbums(ctx context.Context) ([]string, error) {
	var queries []string

	for page := 1; ; page++ {
		params := url.Values{
			"page":          {strconv.Itoa(page)},
			"pagesize":      {strconv.Itoa(missingPageSize)},
			"sortKey":       {"releaseDate"},
			"sortDirection": {"descending"},
		}

		var resp missingResponse
		if err := c.getJSON(ctx, "/wanted/missing", params, &resp); err != nil {
			return nil, fmt.Errorf("failed to list missing albums: %w", err)
		}

		for _, record := range resp.Records {
			if record.AlbumType != "Album" || record.Grabbed {
				continue
			}
			queries = append(queries, record.Artist.ArtistName+" "+record.Title)
		}

		if len(resp.Records) < missingPageSize {
			break
		}
	}
	return queries, nil
}

// TriggerImport asks Lidarr to scan a downloaded album folder. This is the
// automatic path; ManualImport exists because it often does nothing.
func (c *Client) TriggerImport(ctx context.Context, folder string) error {
	payload := map[string]any{
		"name": "DownloadedAlbumsScan",
		"path": folder,
	}
	return c.postJSON(ctx, "/command", payload)
}

type importCandidate struct {
	Path   string `json:"path"`
	Artist struct {
		ID int64 `json:"id"`
	} `json:"artist"`
	Album struct {
		ID int64 `json:"id"`
	} `json:"album"`
	AlbumReleaseID int64 `json:"albumReleaseId"`
	Tracks         []struct {
		ID int64 `json:"id"`
	} `json:"tracks"`
	Quality    json.RawMessage   `json:"quality"`
	Rejections []json.RawMessage `json:"rejections"`
}

type importFile struct {
	Path                    string          `json:"path"`
	ArtistID                int64           `json:"artistId"`
	AlbumID                 int64           `json:"albumId"`
	AlbumReleaseID          int64           `json:"albumReleaseId"`
	TrackIDs                []int64         `json:"trackIds"`
	Quality                 json.RawMessage `json:"quality"`
	DisableReleaseSwitching bool            `json:"disableReleaseSwitching"`
}

// ManualImport scans one album folder through the manualimport endpoint and,
// when Lidarr recognizes every track, triggers the actual import. Any
// rejection or missing field skips the whole folder; a later poll retries.
func (c *Client) ManualImport(ctx context.Context, folder string) error {
	fullPath := folder
	params := url.Values{
		"artistId":             {"0"},
		"folder":               {fullPath},
		"filterExistingFiles":  {"true"},
		"replaceExistingFiles": {"false"},
	}

	var candidates []importCandidate
	if err := c.getJSON(ctx, "/manualimport", params, &candidates); err != nil {
		return fmt.Errorf("manual import scan failed: %w", err)
	}

	files := make([]importFile, 0, len(candidates))
	for _, cand := range candidates {
		if len(cand.Rejections) > 0 {
			c.log.Warn("Not importing, tracks have rejections", "path", fullPath)
			return nil
		}
		if cand.Artist.ID == 0 || cand.Album.ID == 0 || len(cand.Tracks) == 0 {
			c.log.Warn("Not importing, tracks have missing fields", "path", fullPath)
			return nil
		}

		trackIDs := make([]int64, 0, len(cand.Tracks))
		for _, track := range cand.Tracks {
			trackIDs = append(trackIDs, track.ID)
		}
		files = append(files, importFile{
			Path:           cand.Path,
			ArtistID:       cand.Artist.ID,
			AlbumID:        cand.Album.ID,
			AlbumReleaseID: cand.AlbumReleaseID,
			TrackIDs:       trackIDs,
			Quality:        cand.Quality,
		})
	}
	if len(files) == 0 {
		return nil
	}

	payload := map[string]any{
		"name":                 "ManualImport",
		"files":                files,
		"importMode":           "move",
		"replaceExistingFiles": false,
	}
	return c.postJSON(ctx, "/command", payload)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.cfg.LidarrAPIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.LidarrURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	params := url.Values{"apikey": {c.cfg.LidarrAPIKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LidarrURL+endpoint+"?"+params.Encode(), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, body)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
