// Package recovery makes a second pass over references the initial
// acquisition could not satisfy. Stage one retries the primary source
// with progressively more permissive download settings; stage two
// searches the fallback source with a series of query variants. Only a
// reference that survives both stages becomes a terminal failure.
package recovery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"trackfetch/internal/acquire"
	"trackfetch/internal/backend"
	"trackfetch/internal/failures"
	"trackfetch/internal/infocache"
	"trackfetch/internal/logger"
	"trackfetch/internal/track"
	"trackfetch/pkg/utils"
)

// DefaultWorkers bounds concurrent recovery attempts. Recovery is
// deliberately narrower than the initial pass since it hits sources
// that already refused us once.
const DefaultWorkers = 4

// retryUserAgent is the alternate identity for the client-swap strategy.
const retryUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// strategy is one primary-source retry variant.
type strategy struct {
	name string
	opts func(stem string) backend.MaterializeOptions
}

var retryStrategies = []strategy{
	{
		name: "lower quality MP3",
		opts: func(stem string) backend.MaterializeOptions {
			return backend.MaterializeOptions{Filename: stem, AudioFormat: "mp3", AudioQuality: "128"}
		},
	},
	{
		name: "minimal post-processing",
		opts: func(stem string) backend.MaterializeOptions {
			return backend.MaterializeOptions{Filename: stem, SkipPostProcess: true}
		},
	},
	{
		name: "alternate user agent",
		opts: func(stem string) backend.MaterializeOptions {
			return backend.MaterializeOptions{Filename: stem, AudioFormat: "mp3", AudioQuality: "192", UserAgent: retryUserAgent}
		},
	},
	{
		name: "verbose diagnostics",
		opts: func(stem string) backend.MaterializeOptions {
			return backend.MaterializeOptions{Filename: stem, AudioFormat: "mp3", AudioQuality: "160", Verbose: true}
		},
	},
}

// searchQueries returns the fallback query variants for a track, most
// specific first. Artist-qualified variants are skipped when the artist
// is unknown.
func searchQueries(title, artist string) []string {
	var queries []string
	if artist != "" {
		queries = append(queries,
			title+" "+artist,
			artist+" "+title,
		)
	}
	queries = append(queries,
		title,
		title+" official",
		title+" audio",
	)
	return queries
}

// Pipeline retries failed references and records terminal failures.
type Pipeline struct {
	co      *acquire.Coordinator
	cache   *infocache.Cache
	ledger  *failures.Ledger
	log     *logger.Logger
	workers int
}

// NewPipeline creates a recovery Pipeline. cache may be nil; workers
// of zero or less selects DefaultWorkers.
func NewPipeline(co *acquire.Coordinator, cache *infocache.Cache, ledger *failures.Ledger, log *logger.Logger, workers int) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pipeline{co: co, cache: cache, ledger: ledger, log: log, workers: workers}
}

// Run attempts recovery for every failure and returns the recovered
// files. Each failure either yields a recovered file or appends exactly
// one record to the ledger.
func (p *Pipeline) Run(ctx context.Context, failed []acquire.Failure, destDir string) []track.AcquiredFile {
	if len(failed) == 0 {
		return nil
	}

	p.log.Info("Attempting to recover %d failed tracks", len(failed))

	var (
		mu        sync.Mutex
		recovered []track.AcquiredFile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, f := range failed {
		g.Go(func() error {
			if gctx.Err() != nil {
				p.ledger.Add(f.Title, f.Ref.URL, f.Reason+"; recovery cancelled")
				return nil
			}

			file, reason := p.recoverOne(gctx, f, destDir)
			if file == nil {
				p.ledger.Add(f.Title, f.Ref.URL, reason)
				return nil
			}

			mu.Lock()
			recovered = append(recovered, *file)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	p.log.Info("Recovered %d of %d failed tracks", len(recovered), len(failed))
	return recovered
}

// recoverOne runs both stages for a single failure. It returns either
// the recovered file or the terminal failure reason.
func (p *Pipeline) recoverOne(ctx context.Context, f acquire.Failure, destDir string) (*track.AcquiredFile, string) {
	title := f.Title
	if title == "" {
		title = f.Ref.URL
	}
	info := p.lookupInfo(f.Ref, title)
	stem := track.SanitizeTitle(title)

	claims := p.co.Claims()

	// A previous attempt may have produced the file after all, for
	// example when only post-processing failed.
	if existing := utils.FindExistingAudio(destDir, stem); existing != "" {
		p.log.Info("Found existing file for %q, no retry needed", title)
		if claims.Claim(title) {
			claims.Settle(title)
		}
		return &track.AcquiredFile{Path: existing, Ref: f.Ref, Info: info}, ""
	}

	// Failures sharing a title recover once: the first worker claims the
	// title, the rest wait for its outcome and take the file it produced.
	for !claims.Claim(title) {
		if claims.WaitSettled(ctx, title) {
			if existing := utils.FindExistingAudio(destDir, stem); existing != "" {
				p.log.Info("%q was recovered by another worker", title)
				return &track.AcquiredFile{Path: existing, Ref: f.Ref, Info: info}, ""
			}
			return nil, f.Reason + "; recovery produced no usable file"
		}
		if ctx.Err() != nil {
			return nil, f.Reason + "; recovery cancelled"
		}
	}

	var notes []string

	// Stage one: the primary source again, with different settings.
	// Pointless when the first failure was permanent (gone, private,
	// region-locked); those go straight to the search stage.
	if backend.ClassifyText(f.Reason) == backend.KindPermanent {
		p.log.Debug("skipping primary retries for %q: %s", title, f.Reason)
		notes = append(notes, "primary retries skipped (permanent error)")
	} else {
		file, stageNotes := p.retryPrimary(ctx, f.Ref, info, destDir, stem)
		if file != nil {
			claims.Settle(title)
			return file, ""
		}
		notes = append(notes, stageNotes...)
	}

	// Stage two claims per search candidate, so the original title goes
	// back into the pool first.
	claims.Release(title)

	for _, query := range searchQueries(title, info.Artist) {
		if ctx.Err() != nil {
			notes = append(notes, "search stage cancelled")
			break
		}
		file, err := p.co.FallbackFromSearch(ctx, query, title, f.Ref, destDir, 0)
		if err == nil {
			p.log.Success("Recovered %q via search %q", title, query)
			return file, ""
		}
		p.log.Debug("search %q failed for %q: %v", query, title, err)
	}
	notes = append(notes, "no search query produced an acceptable match")

	return nil, fmt.Sprintf("%s; recovery failed: %s", f.Reason, strings.Join(notes, "; "))
}

// retryPrimary walks the retry strategies in order and returns the
// first successful download, plus a note per failed strategy.
func (p *Pipeline) retryPrimary(ctx context.Context, ref track.Reference, info track.Info, destDir, stem string) (*track.AcquiredFile, []string) {
	var notes []string
	for _, s := range retryStrategies {
		if ctx.Err() != nil {
			notes = append(notes, "primary retries cancelled")
			return nil, notes
		}

		p.log.Debug("retrying %q with %s", info.Title, s.name)
		opts := s.opts(stem)

		file, err := p.co.Download(ctx, ref, info, destDir, opts)
		if err != nil {
			notes = append(notes, fmt.Sprintf("%s: %v", s.name, err))
			continue
		}
		p.log.Success("Recovered %q with %s", info.Title, s.name)
		return file, notes
	}
	return nil, notes
}

func (p *Pipeline) lookupInfo(ref track.Reference, title string) track.Info {
	if p.cache != nil {
		if info := p.cache.Get(ref.URL); info != nil {
			return *info
		}
	}
	return track.Info{Title: title}
}
