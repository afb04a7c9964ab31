package backend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"golang.org/x/time/rate"

	"trackfetch/internal/logger"
	"trackfetch/internal/track"
)

const (
	playlistMaxAttempts = 3
	resolveMaxAttempts  = 2
	resolveRetryWait    = 2 * time.Second

	// Playlist entries at or above this duration are live streams or
	// full sets, not tracks.
	maxEntryDuration = time.Hour
)

// YtdlpBackend implements Backend by invoking yt-dlp through go-ytdlp.
type YtdlpBackend struct {
	log     *logger.Logger
	limiter *rate.Limiter
}

// NewYtdlp creates a yt-dlp backed Backend. resolvesPerSecond bounds the
// rate of metadata and search invocations; zero disables throttling.
func NewYtdlp(log *logger.Logger, resolvesPerSecond float64) *YtdlpBackend {
	var limiter *rate.Limiter
	if resolvesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(resolvesPerSecond), 1)
	}
	return &YtdlpBackend{log: log, limiter: limiter}
}

// commonArgs are passed raw to every invocation.
func commonArgs() []string {
	return []string{
		"--socket-timeout", "30",
		"--retries", "3",
		"--fragment-retries", "3",
	}
}

// ResolvePlaylist expands a playlist locator into its track references,
// retrying with linear backoff because large playlists are flaky to
// enumerate in one shot.
func (b *YtdlpBackend) ResolvePlaylist(ctx context.Context, url string) ([]track.Reference, error) {
	var lastErr error

	for attempt := 1; attempt <= playlistMaxAttempts; attempt++ {
		b.log.Debug("extracting playlist (attempt %d/%d): %s", attempt, playlistMaxAttempts, url)

		res, err := ytdlp.New().
			FlatPlaylist().
			Print("%(url)s\t%(duration)s").
			NoWarnings().
			IgnoreConfig().
			Run(ctx, append(commonArgs(), url)...)
		if err == nil {
			refs := parsePlaylistEntries(res.Stdout)
			if len(refs) > 0 {
				b.log.Debug("extracted %d references", len(refs))
				return refs, nil
			}
			lastErr = errors.New("playlist expansion returned no entries")
		} else {
			lastErr = wrapRunError("playlist extraction", err, res)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < playlistMaxAttempts {
			wait := time.Duration(attempt) * 5 * time.Second
			b.log.Warn("playlist extraction attempt %d failed: %v (retrying in %s)", attempt, lastErr, wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return nil, fmt.Errorf("all %d playlist extraction attempts failed: %w", playlistMaxAttempts, lastErr)
}

func parsePlaylistEntries(stdout string) []track.Reference {
	var refs []track.Reference
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 1 || parts[0] == "" || parts[0] == "NA" {
			continue
		}
		if len(parts) >= 2 {
			// Unknown durations stay in; only confirmed long entries drop.
			if d, err := time.ParseDuration(parts[1] + "s"); err == nil && d >= maxEntryDuration {
				continue
			}
		}
		refs = append(refs, track.Reference{URL: parts[0], Index: len(refs) + 1})
	}
	return refs
}

// Resolve fetches a single reference's metadata without downloading.
func (b *YtdlpBackend) Resolve(ctx context.Context, ref track.Reference) (track.Info, error) {
	var lastErr error

	for attempt := 1; attempt <= resolveMaxAttempts; attempt++ {
		if err := b.wait(ctx); err != nil {
			return track.Info{}, err
		}

		res, err := ytdlp.New().
			Print("%(title)s\t%(artist,uploader,creator)s\t%(duration)s\t%(thumbnail)s").
			NoWarnings().
			IgnoreConfig().
			Run(ctx, append(commonArgs(), "--skip-download", ref.URL)...)
		if err == nil {
			if info, ok := parseInfo(res.Stdout); ok {
				return info, nil
			}
			lastErr = errors.New("no metadata in tool output")
		} else {
			lastErr = wrapRunError("resolve", err, res)
		}

		if ctx.Err() != nil {
			return track.Info{}, ctx.Err()
		}
		if attempt < resolveMaxAttempts && !IsPermanent(lastErr) {
			b.log.Debug("resolve retry for %s: %v", ref.URL, lastErr)
			select {
			case <-ctx.Done():
				return track.Info{}, ctx.Err()
			case <-time.After(resolveRetryWait):
			}
			continue
		}
		break
	}

	return track.Info{}, fmt.Errorf("failed to resolve %s: %w", ref.URL, lastErr)
}

func parseInfo(stdout string) (track.Info, bool) {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 3 || parts[0] == "" {
			continue
		}
		info := track.Info{Title: parts[0]}
		if parts[1] != "NA" {
			info.Artist = parts[1]
		}
		if d, err := time.ParseDuration(parts[2] + "s"); err == nil {
			info.Duration = d
		}
		if len(parts) >= 4 && parts[3] != "NA" {
			info.ThumbnailURL = parts[3]
		}
		return info, true
	}
	return track.Info{}, false
}

// Materialize downloads the reference's audio into destDir under the
// caller-chosen filename stem and returns the path yt-dlp reports for the
// final file.
func (b *YtdlpBackend) Materialize(ctx context.Context, ref track.Reference, destDir string, opts MaterializeOptions) (string, error) {
	if opts.Filename == "" {
		return "", errors.New("materialize requires an output filename stem")
	}

	format := opts.Format
	if format == "" {
		format = "bestaudio[ext=m4a]/bestaudio/best"
	}

	cmd := ytdlp.New().
		Format(format).
		Output(filepath.Join(destDir, opts.Filename+".%(ext)s")).
		Print("after_move:filepath").
		NoSimulate().
		NoPlaylist().
		NoWarnings().
		IgnoreConfig()

	args := commonArgs()
	if !opts.SkipPostProcess {
		quality := opts.AudioQuality
		if quality == "" {
			quality = "192"
		}
		audioFormat := opts.AudioFormat
		if audioFormat == "" {
			audioFormat = "mp3"
		}
		args = append(args,
			"--extract-audio",
			"--audio-format", audioFormat,
			"--audio-quality", quality,
		)
	}
	args = append(args, "--embed-metadata")
	if opts.EmbedThumbnail {
		args = append(args, "--write-thumbnail", "--embed-thumbnail")
	}
	if opts.UserAgent != "" {
		args = append(args, "--user-agent", opts.UserAgent)
	}
	if opts.Verbose {
		args = append(args, "--verbose")
	}

	capture := logger.NewCapture(b.log, "yt-dlp")
	res, err := cmd.Run(ctx, append(args, ref.URL)...)
	if res != nil {
		forwardStderr(capture, res.Stderr, opts.Verbose)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		runErr := wrapRunError("download", err, res)
		if lines := capture.Errors(); len(lines) > 0 {
			runErr = fmt.Errorf("%w: %s", runErr, strings.Join(lines, "; "))
		}
		return "", runErr
	}

	path := strings.TrimSpace(res.Stdout)
	if i := strings.LastIndexByte(path, '\n'); i >= 0 {
		path = path[i+1:]
	}
	if path == "" {
		// Reported success with no file path; the caller escalates this
		// as a structural failure once the expected path is missing too.
		path = filepath.Join(destDir, opts.Filename+".mp3")
	}
	return path, nil
}

// Search queries the fallback source with "ytsearchN:" and returns the
// candidates in result order.
func (b *YtdlpBackend) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 10
	}
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	res, err := ytdlp.New().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		NoWarnings().
		IgnoreConfig().
		PreferFreeFormats().
		Run(ctx, append(commonArgs(), fmt.Sprintf("ytsearch%d:%s", limit, query))...)
	if err != nil {
		return nil, wrapRunError("search", err, res)
	}

	var candidates []Candidate
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 4 || parts[0] == "" {
			continue
		}
		c := Candidate{URL: parts[0], Title: parts[1], Uploader: parts[2]}
		if d, err := time.ParseDuration(parts[3] + "s"); err == nil {
			c.Duration = d
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (b *YtdlpBackend) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

// forwardStderr routes yt-dlp stderr lines into the capture sink.
func forwardStderr(capture *logger.Capture, stderr string, verbose bool) {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "ERROR:"):
			capture.Error(strings.TrimSpace(strings.TrimPrefix(line, "ERROR:")))
		case strings.HasPrefix(line, "WARNING:"):
			capture.Warning(strings.TrimSpace(strings.TrimPrefix(line, "WARNING:")))
		case verbose:
			capture.Debug(line)
		}
	}
}

func wrapRunError(op string, err error, res *ytdlp.Result) error {
	if res != nil {
		if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
			if i := strings.LastIndexByte(stderr, '\n'); i >= 0 {
				stderr = strings.TrimSpace(stderr[i+1:])
			}
			return fmt.Errorf("%s failed: %w: %s", op, err, stderr)
		}
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
