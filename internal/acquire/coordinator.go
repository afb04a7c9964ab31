// Package acquire runs the initial acquisition pass over a reference
// list: a worker pool that resolves, deduplicates, downloads, and tags
// each track, falling back to a relevance-matched search when the
// primary source refuses a reference.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"trackfetch/internal/backend"
	"trackfetch/internal/infocache"
	"trackfetch/internal/logger"
	"trackfetch/internal/match"
	"trackfetch/internal/metadata"
	"trackfetch/internal/track"
	"trackfetch/pkg/utils"
)

const (
	// DefaultShortTrackCutoff marks a downloaded track as suspiciously
	// short, usually a preview or snippet instead of the full recording.
	DefaultShortTrackCutoff = 30 * time.Second

	// DefaultMinFallbackDuration is the shortest replacement accepted
	// when hunting for a full version of a short track.
	DefaultMinFallbackDuration = 31 * time.Second

	// DefaultSearchLimit bounds how many fallback search results are
	// considered per query.
	DefaultSearchLimit = 10
)

// Options tunes one Coordinator. Zero values select the defaults.
type Options struct {
	// Workers fixes the pool size. Zero means adaptive sizing based on
	// the reference count.
	Workers int

	// ShortTrackCutoff and MinFallbackDuration drive the short-track
	// replacement check after a successful primary download.
	ShortTrackCutoff    time.Duration
	MinFallbackDuration time.Duration

	// SearchLimit bounds fallback search result lists.
	SearchLimit int

	// AudioFormat and AudioQuality configure primary downloads
	// ("mp3" / "192").
	AudioFormat  string
	AudioQuality string

	// Album is embedded into every acquired file's tags.
	Album string
}

func (o Options) withDefaults() Options {
	if o.ShortTrackCutoff <= 0 {
		o.ShortTrackCutoff = DefaultShortTrackCutoff
	}
	if o.MinFallbackDuration <= 0 {
		o.MinFallbackDuration = DefaultMinFallbackDuration
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = DefaultSearchLimit
	}
	if o.AudioFormat == "" {
		o.AudioFormat = "mp3"
	}
	if o.AudioQuality == "" {
		o.AudioQuality = "192"
	}
	return o
}

// WorkerCount returns the pool size for refCount references. A non-zero
// configured value wins; otherwise large lists get a smaller pool so the
// source is less likely to throttle the whole run. The pool never
// exceeds the reference count.
func WorkerCount(refCount, configured int) int {
	if refCount <= 0 {
		return 1
	}
	workers := configured
	if workers <= 0 {
		workers = 8
		if refCount > 200 {
			workers = 6
		}
	}
	if workers > refCount {
		workers = refCount
	}
	return workers
}

// Failure describes one reference the acquisition pass could not
// satisfy. The recovery pipeline consumes these.
type Failure struct {
	Ref    track.Reference
	Title  string
	Reason string
}

// Coordinator drives the acquisition state machine for each reference.
type Coordinator struct {
	backend backend.Backend
	matcher *match.Matcher
	cache   *infocache.Cache
	claims  *Claims
	log     *logger.Logger
	opts    Options

	// OnTrackDone, when set, is invoked after each reference settles.
	// Called from worker goroutines; must be safe for concurrent use.
	OnTrackDone func(ref track.Reference, ok bool)
}

// New creates a Coordinator. cache may be nil, in which case every
// reference is resolved on demand.
func New(b backend.Backend, m *match.Matcher, cache *infocache.Cache, claims *Claims, log *logger.Logger, opts Options) *Coordinator {
	return &Coordinator{
		backend: b,
		matcher: m,
		cache:   cache,
		claims:  claims,
		log:     log,
		opts:    opts.withDefaults(),
	}
}

// Run acquires all references with a bounded worker pool and returns the
// acquired files plus one Failure per reference that could not be
// satisfied. Every reference lands in exactly one of the two lists.
func (c *Coordinator) Run(ctx context.Context, refs []track.Reference, destDir string) ([]track.AcquiredFile, []Failure) {
	if len(refs) == 0 {
		return nil, nil
	}

	workers := WorkerCount(len(refs), c.opts.Workers)
	c.log.Info("Downloading %d tracks with %d parallel workers", len(refs), workers)

	var (
		wg     sync.WaitGroup
		sem    = make(chan struct{}, workers)
		mu     sync.Mutex
		files  []track.AcquiredFile
		failed []Failure
	)

	for _, ref := range refs {
		if ctx.Err() != nil {
			mu.Lock()
			failed = append(failed, Failure{Ref: ref, Title: c.titleFor(ref), Reason: "cancelled before download started"})
			mu.Unlock()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(ref track.Reference) {
			defer wg.Done()
			defer func() { <-sem }()

			file, err := c.Acquire(ctx, ref, destDir)

			mu.Lock()
			if err != nil {
				failed = append(failed, Failure{Ref: ref, Title: c.titleFor(ref), Reason: err.Error()})
			} else {
				files = append(files, *file)
			}
			mu.Unlock()

			if c.OnTrackDone != nil {
				c.OnTrackDone(ref, err == nil)
			}
		}(ref)
	}

	wg.Wait()
	return files, failed
}

// Acquire runs the full state machine for one reference: resolve,
// duplicate check, primary download, short-track replacement, and
// search fallback when the primary source fails.
func (c *Coordinator) Acquire(ctx context.Context, ref track.Reference, destDir string) (*track.AcquiredFile, error) {
	info, resolveErr := c.lookupInfo(ctx, ref)
	title := info.Title
	if title == "" {
		title = ref.URL
	}
	stem := track.SanitizeTitle(title)

	// Losing the claim only means success once the holder's download has
	// settled with a file on disk. A holder that fails releases the title,
	// and the next waiter claims it and downloads itself.
	for !c.claims.Claim(title) {
		if c.claims.WaitSettled(ctx, title) {
			c.log.Info("Skipping %q: already downloaded", title)
			file := &track.AcquiredFile{Ref: ref, Info: info}
			file.Path = utils.FindExistingAudio(destDir, stem)
			return file, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	var primaryErr error
	if resolveErr != nil {
		// The source would not even describe the reference; a primary
		// download would only name the file after its URL. Go straight
		// to the fallback search.
		primaryErr = fmt.Errorf("metadata resolution failed: %w", resolveErr)
	} else {
		file, err := c.Download(ctx, ref, info, destDir, c.primaryOptions(stem))
		if err == nil {
			final := c.maybeReplaceShort(ctx, file, destDir)
			if final == file {
				c.claims.Settle(title)
			} else {
				c.claims.Release(title)
			}
			return final, nil
		}
		primaryErr = err
	}

	c.log.Warn("Primary download failed for %q: %v", title, primaryErr)
	c.claims.Release(title)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("download failed: %w", primaryErr)
	}

	fallback, fallbackErr := c.FallbackFromSearch(ctx, title, title, ref, destDir, 0)
	if fallbackErr == nil {
		c.log.Success("Recovered %q from fallback source", title)
		return fallback, nil
	}

	return nil, fmt.Errorf("failed on both sources: primary: %v; fallback: %v", primaryErr, fallbackErr)
}

// Claims exposes the shared duplicate-claim set so later phases keep
// the same view of which titles are satisfied.
func (c *Coordinator) Claims() *Claims {
	return c.claims
}

// Download materializes one reference and returns the verified file with
// cover art located and tags embedded. A reported path with no file on
// disk is an error, never a success.
func (c *Coordinator) Download(ctx context.Context, ref track.Reference, info track.Info, destDir string, opts backend.MaterializeOptions) (*track.AcquiredFile, error) {
	reported, err := c.backend.Materialize(ctx, ref, destDir, opts)
	if err != nil {
		return nil, err
	}

	path := reported
	if path == "" || !fileExists(path) {
		// The tool sometimes reports the pre-conversion path; look the
		// real file up by its stem.
		path = utils.FindAudioByStem(destDir, opts.Filename)
	}
	if path == "" {
		return nil, fmt.Errorf("download reported success but no file found for %q", opts.Filename)
	}

	file := &track.AcquiredFile{Path: path, Ref: ref, Info: info}
	if cover := utils.FindCoverArt(destDir, opts.Filename); cover != "" {
		file.CoverPath = cover
	}
	c.embedTags(file)
	return file, nil
}

// FallbackFromSearch searches the fallback source with query, downloads
// the first candidate the relevance matcher accepts for originalTitle,
// and returns the acquired file. minDuration, when positive, discards
// candidates shorter than it.
func (c *Coordinator) FallbackFromSearch(ctx context.Context, query, originalTitle string, ref track.Reference, destDir string, minDuration time.Duration) (*track.AcquiredFile, error) {
	candidates, err := c.backend.Search(ctx, query, c.opts.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	for _, cand := range candidates {
		if minDuration > 0 && cand.Duration < minDuration {
			continue
		}
		if !c.matcher.Accept(originalTitle, match.Candidate{
			Title:    cand.Title,
			Uploader: cand.Uploader,
			Duration: cand.Duration,
		}) {
			continue
		}

		// First accepted candidate wins; weaker matches further down the
		// result list are more likely to be the wrong recording. A claimed
		// candidate is only a success when its download already settled;
		// this path never blocks, since short-track replacement calls it
		// while holding the original's claim.
		if !c.claims.Claim(cand.Title) {
			if c.claims.Settled(cand.Title) {
				if existing := utils.FindExistingAudio(destDir, track.SanitizeTitle(cand.Title)); existing != "" {
					c.log.Info("Fallback match %q already downloaded", cand.Title)
					return &track.AcquiredFile{
						Path: existing,
						Ref:  ref,
						Info: track.Info{Title: cand.Title, Artist: cand.Uploader, Duration: cand.Duration},
					}, nil
				}
			}
			return nil, fmt.Errorf("fallback match %q is claimed by another download", cand.Title)
		}

		c.log.Info("Found fallback match: %q by %s (%s)", cand.Title, cand.Uploader, track.FormatDuration(cand.Duration))

		info := track.Info{Title: cand.Title, Artist: cand.Uploader, Duration: cand.Duration}
		candRef := track.Reference{URL: cand.URL, Index: ref.Index}
		file, err := c.Download(ctx, candRef, info, destDir, c.primaryOptions(track.SanitizeTitle(cand.Title)))
		if err != nil {
			c.claims.Release(cand.Title)
			return nil, fmt.Errorf("fallback download failed: %w", err)
		}
		c.claims.Settle(cand.Title)
		return file, nil
	}

	return nil, errors.New("no acceptable match found on fallback source")
}

// maybeReplaceShort checks a freshly downloaded file against the
// short-track cutoff and tries to replace it with a longer version from
// the fallback source. The original file is kept when no acceptable
// longer version exists. The caller owns the original title's claim and
// settles or releases it based on which file survives.
func (c *Coordinator) maybeReplaceShort(ctx context.Context, file *track.AcquiredFile, destDir string) *track.AcquiredFile {
	dur := file.Info.Duration
	if dur <= 0 || dur > c.opts.ShortTrackCutoff {
		return file
	}

	c.log.Warn("%q is only %s, searching for a full version", file.Info.Title, track.FormatDuration(dur))

	minDuration := c.opts.MinFallbackDuration
	if dur+time.Second > minDuration {
		minDuration = dur + time.Second
	}

	longer, err := c.FallbackFromSearch(ctx, file.Info.Title, file.Info.Title, file.Ref, destDir, minDuration)
	if err != nil {
		c.log.Info("No longer version of %q found, keeping the original", file.Info.Title)
		return file
	}
	if longer.Path == file.Path {
		// The search resolved to the file we already have.
		return file
	}

	if err := os.Remove(file.Path); err != nil {
		c.log.Debug("failed to remove superseded file %s: %v", file.Path, err)
	}
	if file.CoverPath != "" {
		os.Remove(file.CoverPath)
	}

	c.log.Success("Replaced short track %q with %q (%s)", file.Info.Title, longer.Info.Title, track.FormatDuration(longer.Info.Duration))
	return longer
}

func (c *Coordinator) primaryOptions(stem string) backend.MaterializeOptions {
	return backend.MaterializeOptions{
		Filename:       stem,
		AudioFormat:    c.opts.AudioFormat,
		AudioQuality:   c.opts.AudioQuality,
		EmbedThumbnail: true,
	}
}

// lookupInfo returns metadata for a reference, preferring the prefetch
// cache. A reference whose cached resolution failed gets one more direct
// attempt here since transient errors may have cleared. A non-nil error
// means the reference has no usable metadata at all.
func (c *Coordinator) lookupInfo(ctx context.Context, ref track.Reference) (track.Info, error) {
	if c.cache != nil {
		if info := c.cache.Get(ref.URL); info != nil {
			return *info, nil
		}
	}
	info, err := c.backend.Resolve(ctx, ref)
	if err != nil {
		c.log.Debug("could not resolve %s: %v", ref.URL, err)
		return track.Info{}, err
	}
	return info, nil
}

func (c *Coordinator) titleFor(ref track.Reference) string {
	if c.cache != nil {
		if info := c.cache.Get(ref.URL); info != nil && info.Title != "" {
			return info.Title
		}
	}
	return ref.URL
}

// embedTags writes tags and cover art into an acquired file. Tagging is
// best-effort and never fails the acquisition.
func (c *Coordinator) embedTags(file *track.AcquiredFile) {
	tags := metadata.Tags{
		Title:  file.Info.Title,
		Artist: file.Info.Artist,
		Album:  c.opts.Album,
	}
	if err := metadata.WriteTags(file.Path, tags); err != nil {
		c.log.Debug("tagging failed for %s: %v", file.Path, err)
	}

	if file.CoverPath == "" {
		return
	}
	if err := metadata.EmbedCover(file.Path, file.CoverPath); err != nil {
		c.log.Debug("cover embedding failed for %s: %v", file.Path, err)
		return
	}
	os.Remove(file.CoverPath)
	file.CoverPath = ""
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
