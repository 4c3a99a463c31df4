// Package poller periodically asks the library manager for missing albums,
// feeds matches into the download queue, and hands finished folders back for
// import.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/tidalarr/tidalarr/internal/config"
	"github.com/tidalarr/tidalarr/internal/domain"
	"github.com/tidalarr/tidalarr/internal/logger"
	"github.com/tidalarr/tidalarr/internal/queue"
)

// Searcher finds albums for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string) (*domain.SearchResult, error)
}

// Enqueuer is the queue engine boundary the poller consumes.
type Enqueuer interface {
	Enqueue(albumID string) queue.EnqueueResult
	Status() []domain.AlbumRequest
}

// Librarian is the library manager side: missing albums out, imports in.
type Librarian interface {
	Enabled() bool
	MissingAlbums(ctx context.Context) ([]string, error)
	TriggerImport(ctx context.Context, folder string) error
	ManualImport(ctx context.Context, folder string) error
}

// MissCache remembers queries that found nothing so they are not retried
// before the recheck window elapses.
type MissCache interface {
	MarkNotFound(query string) error
	RecentlyNotFound(query string, within time.Duration) (bool, error)
	ClearNotFound(query string) error
}

// Cleaner removes empty directories after imports have moved files away.
type Cleaner interface {
	CleanupEmptyDirs()
}

// Poller runs the periodic check loop.
type Poller struct {
	searcher Searcher
	engine   Enqueuer
	library  Librarian
	misses   MissCache
	cleaner  Cleaner
	log      *logger.Logger

	interval      time.Duration
	checkInterval time.Duration

	// request ids already handed to the library manager for import
	imported map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a poller. misses and cleaner may be nil.
func New(cfg *config.Config, searcher Searcher, engine Enqueuer, library Librarian, misses MissCache, cleaner Cleaner, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		searcher:      searcher,
		engine:        engine,
		library:       library,
		misses:        misses,
		cleaner:       cleaner,
		log:           log.WithComponent("poller"),
		interval:      cfg.PollInterval,
		checkInterval: cfg.CheckInterval,
		imported:      make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start launches the poll loop.
func (p *Poller) Start() {
	if !p.library.Enabled() {
		p.log.Info("Library manager not configured, poller disabled")
		return
	}
	p.log.Info("Starting poller", "interval", p.interval)
	p.wg.Add(1)
	go p.run()
}

// Stop cancels the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check(p.ctx)
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.check(p.ctx)
		}
	}
}

// check runs one poll cycle: discover missing albums, enqueue matches,
// import finished folders, clean up.
func (p *Poller) check(ctx context.Context) {
	p.log.Info("Checking all missing albums")

	queries, err := p.library.MissingAlbums(ctx)
	if err != nil {
		p.log.Error("Failed to fetch missing albums", "error", err)
	}

	for _, query := range queries {
		if ctx.Err() != nil {
			return
		}
		p.lookup(ctx, query)

		// Import ready folders between searches so finished albums reach the
		// library without waiting for the whole cycle.
		p.importReady(ctx)
	}

	p.importReady(ctx)
	p.pruneImported()
	if p.cleaner != nil {
		// Only clean up after imports are done.
		p.cleaner.CleanupEmptyDirs()
	}
	p.log.Info("Finished periodic check")
}

// pruneImported forgets request ids the engine no longer reports, so the set
// does not grow forever as terminal records get superseded.
func (p *Poller) pruneImported() {
	known := make(map[string]bool, len(p.imported))
	for _, req := range p.engine.Status() {
		known[req.ID] = true
	}
	for id := range p.imported {
		if !known[id] {
			delete(p.imported, id)
		}
	}
}

func (p *Poller) lookup(ctx context.Context, query string) {
	if p.misses != nil {
		recent, err := p.misses.RecentlyNotFound(query, p.checkInterval)
		if err != nil {
			p.log.Warn("Failed to check miss cache", "error", err)
		} else if recent {
			return
		}
	}

	result, err := p.searcher.Search(ctx, query)
	if err != nil {
		p.log.Error("Search failed", "query", query, "error", err)
		return
	}

	hit := result.TopHit()
	if hit == nil {
		p.log.Warn("Could not find an album", "query", query)
		if p.misses != nil {
			if err := p.misses.MarkNotFound(query); err != nil {
				p.log.Warn("Failed to record miss", "error", err)
			}
		}
		return
	}

	if p.misses != nil {
		if err := p.misses.ClearNotFound(query); err != nil {
			p.log.Warn("Failed to clear miss", "error", err)
		}
	}
	p.engine.Enqueue(hit.ID)
}

func (p *Poller) importReady(ctx context.Context) {
	for _, req := range p.engine.Status() {
		if req.State != domain.StateReady || req.Folder == "" || p.imported[req.ID] {
			continue
		}
		if err := p.library.TriggerImport(ctx, req.Folder); err != nil {
			p.log.Error("Failed to trigger import", "folder", req.Folder, "error", err)
			continue
		}
		if err := p.library.ManualImport(ctx, req.Folder); err != nil {
			p.log.Error("Manual import failed", "folder", req.Folder, "error", err)
			continue
		}
		p.imported[req.ID] = true
	}
}
