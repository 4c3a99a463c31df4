// Package queue owns the album download queue: an in-memory registry of
// requests driven through search, download, and placement by a single worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidalarr/tidalarr/internal/constants"
	"github.com/tidalarr/tidalarr/internal/domain"
	"github.com/tidalarr/tidalarr/internal/logger"
	"github.com/tidalarr/tidalarr/internal/store"
)

// Provider resolves albums and streams tracks. Implementations classify
// failures into domain.ErrNotFound / domain.ErrUnauthorized.
type Provider interface {
	GetAlbum(ctx context.Context, albumID string) (*domain.Album, error)
	GetAlbumTracks(ctx context.Context, albumID string) ([]domain.Track, error)
	GetTrackStream(ctx context.Context, trackID string) (*domain.Stream, error)
	DownloadTrack(ctx context.Context, stream *domain.Stream) (io.ReadCloser, error)
	GetAlbumCover(ctx context.Context, album *domain.Album) ([]byte, error)
	GetTrackLyrics(ctx context.Context, trackID string) string
}

// Sink writes a finished track to durable storage. Permanent failures are
// marked with domain.ErrPermanentWrite.
type Sink interface {
	WriteTrack(album *domain.Album, track *domain.Track, stream *domain.Stream, lyrics string, r io.Reader) (string, error)
}

// Authenticator is the slice of the session manager the engine needs: the
// ability to throw away a token the provider rejected.
type Authenticator interface {
	Invalidate()
}

// History records completed downloads. Optional.
type History interface {
	RecordDownload(d *store.Download) error
}

// EnqueueResult tells the caller what Enqueue did.
type EnqueueResult string

const (
	Enqueued      EnqueueResult = "enqueued"
	AlreadyQueued EnqueueResult = "already_queued"
	Requeued      EnqueueResult = "requeued"
)

// Engine processes album requests one at a time. Enqueue and Status may be
// called from any goroutine; all registry mutation happens under one mutex.
type Engine struct {
	provider Provider
	sink     Sink
	auth     Authenticator
	history  History
	log      *logger.Logger

	mu       sync.Mutex
	requests map[string]*domain.AlbumRequest
	order    []string // album ids, enqueue order

	wake chan struct{}

	retryCount int
	retryBase  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a queue engine. history may be nil.
func NewEngine(provider Provider, sink Sink, auth Authenticator, history History, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		provider:   provider,
		sink:       sink,
		auth:       auth,
		history:    history,
		log:        log.WithComponent("queue"),
		requests:   make(map[string]*domain.AlbumRequest),
		wake:       make(chan struct{}, 1),
		retryCount: constants.DefaultRetryCount,
		retryBase:  constants.DefaultRetryBase,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker loop.
func (e *Engine) Start() {
	e.log.Info("Starting queue worker")
	e.wg.Add(1)
	go e.run()
}

// Stop cancels in-flight work and waits for the worker to exit.
func (e *Engine) Stop() {
	e.log.Info("Stopping queue worker")
	e.cancel()
	e.wg.Wait()
}

// Enqueue registers an album for download. A duplicate of a non-terminal
// request is rejected with AlreadyQueued; a terminal record is superseded by
// a fresh request at the tail of the queue. Never blocks on processing.
func (e *Engine) Enqueue(albumID string) EnqueueResult {
	e.mu.Lock()

	existing, known := e.requests[albumID]
	if known && !existing.State.Terminal() {
		e.mu.Unlock()
		e.log.Info("Album already in queue", "album_id", albumID, "state", existing.State)
		return AlreadyQueued
	}

	req := &domain.AlbumRequest{
		ID:         uuid.New().String(),
		AlbumID:    albumID,
		State:      domain.StateQueued,
		EnqueuedAt: time.Now(),
	}
	e.requests[albumID] = req

	if known {
		// Re-enqueue counts as a new insertion at the current time.
		for i, id := range e.order {
			if id == albumID {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
	e.order = append(e.order, albumID)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}

	if known {
		e.log.Info("Album re-enqueued", "album_id", albumID)
		return Requeued
	}
	e.log.Info("Album added to queue", "album_id", albumID)
	return Enqueued
}

// Status returns snapshots of all known requests in enqueue order. The copies
// are detached from the registry so callers never observe a half-written state.
func (e *Engine) Status() []domain.AlbumRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.AlbumRequest, 0, len(e.order))
	for _, id := range e.order {
		req := e.requests[id]
		snapshot := *req
		snapshot.Tracks = append([]domain.Track(nil), req.Tracks...)
		out = append(out, snapshot)
	}
	return out
}

// run is the single worker loop: drain QUEUED requests oldest-first, then
// suspend until an enqueue wakes it. Survives any single album's failure.
func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		req := e.nextQueued()
		if req == nil {
			select {
			case <-e.ctx.Done():
				return
			case <-e.wake:
			}
			continue
		}

		e.process(e.ctx, req)
	}
}

func (e *Engine) nextQueued() *domain.AlbumRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.order {
		if req := e.requests[id]; req.State == domain.StateQueued {
			return req
		}
	}
	return nil
}

func (e *Engine) setState(req *domain.AlbumRequest, state domain.RequestState, lastError string) {
	e.mu.Lock()
	req.State = state
	req.LastError = lastError
	e.mu.Unlock()
}

// process drives one request to a terminal state.
func (e *Engine) process(ctx context.Context, req *domain.AlbumRequest) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Panic while processing album", "album_id", req.AlbumID, "panic", r)
			e.setState(req, domain.StateFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	log := e.log.WithAlbum(req.AlbumID, req.Title)

	e.setState(req, domain.StateSearching, "")

	album, tracks, err := e.resolve(ctx, req.AlbumID)
	switch {
	case errors.Is(err, context.Canceled):
		// Shutdown mid-flight; the request is simply lost, the library
		// manager will re-report the album.
		return
	case errors.Is(err, domain.ErrNotFound):
		log.Info("No usable match for album")
		e.setState(req, domain.StateNotFound, err.Error())
		return
	case err != nil:
		log.Error("Failed to resolve album", "error", err)
		e.setState(req, domain.StateFailed, err.Error())
		return
	}

	e.mu.Lock()
	req.Title = album.Title
	req.Artist = album.Artist()
	req.Tracks = append([]domain.Track(nil), tracks...)
	req.State = domain.StateDownloading
	req.LastError = ""
	e.mu.Unlock()

	log = e.log.WithAlbum(req.AlbumID, album.Title)
	log.Info("Downloading album", "tracks", len(tracks))

	album.CoverBytes, err = e.provider.GetAlbumCover(ctx, album)
	if err != nil {
		log.Warn("Failed to fetch cover art", "error", err)
	}

	var folder string
	for i := range tracks {
		path, err := e.downloadTrack(ctx, album, &tracks[i])
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Track failed, failing album",
				"track", tracks[i].Title,
				"track_number", tracks[i].TrackNumber,
				"error", err)
			e.setState(req, domain.StateFailed, err.Error())
			return
		}
		folder = path
	}

	e.mu.Lock()
	req.State = domain.StateReady
	req.LastError = ""
	req.Folder = folder
	e.mu.Unlock()

	if e.history != nil {
		record := &store.Download{AlbumID: req.AlbumID, Folder: folder, CompletedAt: time.Now()}
		if err := e.history.RecordDownload(record); err != nil {
			log.Warn("Failed to record download", "error", err)
		}
	}

	log.Info("Finished downloading album")
}

// resolve looks up the album and its track list, re-authenticating once if
// the provider rejects the token.
func (e *Engine) resolve(ctx context.Context, albumID string) (*domain.Album, []domain.Track, error) {
	var album *domain.Album
	var tracks []domain.Track

	err := e.withReauth(func() error {
		var err error
		album, err = e.provider.GetAlbum(ctx, albumID)
		if err != nil {
			return err
		}
		tracks, err = e.provider.GetAlbumTracks(ctx, albumID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return album, tracks, nil
}

// downloadTrack fetches and writes one track, retrying transient failures
// with backoff. Permanent write failures are not retried.
func (e *Engine) downloadTrack(ctx context.Context, album *domain.Album, track *domain.Track) (string, error) {
	var lastErr error
	for attempt := 0; attempt < e.retryCount; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(attempt)*e.retryBase); err != nil {
				return "", err
			}
		}

		path, err := e.fetchAndWrite(ctx, album, track)
		if err == nil {
			return path, nil
		}
		if errors.Is(err, domain.ErrPermanentWrite) || errors.Is(err, context.Canceled) {
			return "", err
		}
		lastErr = err
		e.log.Warn("Track download attempt failed",
			"track", track.Title,
			"attempt", attempt+1,
			"error", err)
	}
	return "", fmt.Errorf("download failed after %d attempts: %w", e.retryCount, lastErr)
}

func (e *Engine) fetchAndWrite(ctx context.Context, album *domain.Album, track *domain.Track) (string, error) {
	var stream *domain.Stream
	err := e.withReauth(func() error {
		var err error
		stream, err = e.provider.GetTrackStream(ctx, track.ID)
		return err
	})
	if err != nil {
		return "", err
	}

	body, err := e.provider.DownloadTrack(ctx, stream)
	if err != nil {
		return "", err
	}
	defer body.Close()

	lyrics := e.provider.GetTrackLyrics(ctx, track.ID)

	path, err := e.sink.WriteTrack(album, track, stream, lyrics, body)
	if err != nil {
		return "", err
	}
	// Status reports the album folder, not individual files.
	return filepath.Dir(path), nil
}

// withReauth runs fn, and if the provider rejected the token, invalidates the
// session and tries once more. The retry's EnsureAuthenticated re-runs the
// full refresh-or-device-authorize path.
func (e *Engine) withReauth(fn func() error) error {
	err := fn()
	if errors.Is(err, domain.ErrUnauthorized) && e.auth != nil {
		e.log.Warn("Provider rejected token, re-authenticating")
		e.auth.Invalidate()
		err = fn()
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
