// Package backend abstracts the media extraction service the pipeline
// acquires audio through. The production implementation shells out to
// yt-dlp; tests substitute fakes.
package backend

import (
	"context"
	"time"

	"trackfetch/internal/track"
)

// Candidate is one result of a fallback search: a locator plus enough
// metadata to run relevance matching against.
type Candidate struct {
	URL      string
	Title    string
	Uploader string
	Duration time.Duration
}

// MaterializeOptions carries the quality and post-processing hints for one
// download attempt. Recovery strategies vary these between attempts.
type MaterializeOptions struct {
	// Filename is the output filename stem (no extension), already
	// sanitized by the caller.
	Filename string

	// Format is the yt-dlp format selector. Empty selects the default
	// best-audio chain.
	Format string

	// AudioFormat and AudioQuality configure the audio extraction
	// post-processor ("mp3"/"192"). Ignored when SkipPostProcess is set.
	AudioFormat  string
	AudioQuality string

	// SkipPostProcess accepts whatever container the source delivers,
	// skipping audio extraction entirely.
	SkipPostProcess bool

	// UserAgent overrides the request user agent when non-empty.
	UserAgent string

	// EmbedThumbnail also fetches the thumbnail and embeds it.
	EmbedThumbnail bool

	// Verbose captures full diagnostic output from the tool.
	Verbose bool
}

// Backend is the narrow interface the acquisition pipeline consumes.
type Backend interface {
	// ResolvePlaylist expands a playlist or album locator into the
	// ordered list of track references it contains.
	ResolvePlaylist(ctx context.Context, url string) ([]track.Reference, error)

	// Resolve fetches metadata for a single reference without
	// downloading anything.
	Resolve(ctx context.Context, ref track.Reference) (track.Info, error)

	// Materialize downloads the reference's audio into destDir and
	// returns the path the tool reports. Callers must verify the file
	// actually exists; a reported path with no file is a structural
	// failure, never a success.
	Materialize(ctx context.Context, ref track.Reference, destDir string, opts MaterializeOptions) (string, error)

	// Search queries the fallback source and returns up to limit
	// candidates in result order.
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}
