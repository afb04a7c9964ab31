// Package infocache pre-resolves track metadata for a whole reference
// list before the download phase starts, so later phases (recovery,
// reporting) can name tracks without extra backend round-trips.
package infocache

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"trackfetch/internal/backend"
	"trackfetch/internal/logger"
	"trackfetch/internal/track"
)

const (
	// DefaultBatchSize bounds how many references one batch resolves.
	DefaultBatchSize = 50

	// DefaultBatchWorkers bounds how many batches run concurrently.
	DefaultBatchWorkers = 3
)

// Cache holds pre-resolved metadata keyed by reference locator. Entries
// are written once during Prefetch and only read afterwards; a nil entry
// means resolution failed for that reference.
type Cache struct {
	backend backend.Backend
	log     *logger.Logger

	batchSize    int
	batchWorkers int

	mu      sync.Mutex
	entries map[string]*track.Info
}

// New creates a Cache. Non-positive sizes fall back to the defaults.
func New(b backend.Backend, log *logger.Logger, batchSize, batchWorkers int) *Cache {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchWorkers <= 0 {
		batchWorkers = DefaultBatchWorkers
	}
	return &Cache{
		backend:      b,
		log:          log,
		batchSize:    batchSize,
		batchWorkers: batchWorkers,
		entries:      make(map[string]*track.Info),
	}
}

// Prefetch resolves metadata for all references in concurrent batches.
// Within a batch references resolve sequentially to bound backend load.
// Individual failures are recorded as absent entries and never fail the
// batch; the only returned error is context cancellation.
func (c *Cache) Prefetch(ctx context.Context, refs []track.Reference) error {
	if len(refs) == 0 {
		return nil
	}

	totalBatches := (len(refs) + c.batchSize - 1) / c.batchSize
	c.log.Info("Pre-fetching track information (%d references, %d batches)", len(refs), totalBatches)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.batchWorkers)

	for start := 0; start < len(refs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(refs) {
			end = len(refs)
		}
		batch := refs[start:end]
		batchNum := start/c.batchSize + 1

		g.Go(func() error {
			c.log.Debug("info batch %d/%d (%d references)", batchNum, totalBatches, len(batch))
			for _, ref := range batch {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				info, err := c.backend.Resolve(ctx, ref)
				if err != nil {
					c.log.Debug("failed to cache info for %s: %v", ref.URL, err)
					c.set(ref.URL, nil)
					continue
				}
				c.set(ref.URL, &info)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	c.log.Info("Cached info for %d of %d tracks", c.resolvedCount(), len(refs))
	return nil
}

// Get returns the cached metadata for a locator, or nil when resolution
// failed or was never attempted.
func (c *Cache) Get(url string) *track.Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[url]
}

// Has reports whether a resolution outcome (success or failure) was
// recorded for the locator.
func (c *Cache) Has(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[url]
	return ok
}

func (c *Cache) set(url string, info *track.Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = info
}

func (c *Cache) resolvedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, info := range c.entries {
		if info != nil {
			n++
		}
	}
	return n
}
