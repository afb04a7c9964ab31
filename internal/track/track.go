package track

import (
	"fmt"
	"strings"
	"time"
)

// Reference is an opaque locator for one track on a source platform,
// together with its ordinal position in the originating list.
// Identity is the URL; Index only matters for reporting.
type Reference struct {
	URL   string
	Index int
}

// Info contains the metadata the extraction backend resolves for a track.
// A zero Duration means the backend did not report one.
type Info struct {
	Title        string
	Artist       string
	Duration     time.Duration
	ThumbnailURL string
}

// AcquiredFile is a materialized track on disk.
type AcquiredFile struct {
	Path      string
	Ref       Reference
	Info      Info
	CoverPath string
}

// invalid filename characters, replaced with underscores
var filenameSanitizer = strings.NewReplacer(
	"\\", "_",
	"/", "_",
	"*", "_",
	"?", "_",
	":", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// SanitizeTitle makes a track title safe to use as a filename.
// Duplicate detection keys off this form, so it must be deterministic.
func SanitizeTitle(title string) string {
	return strings.TrimSpace(filenameSanitizer.Replace(title))
}

// FormatDuration renders a duration as h:mm:ss (or m:ss below an hour)
// for log output. Zero means the duration is unknown.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "unknown"
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
