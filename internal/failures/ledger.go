package failures

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Category is the fixed classification a failure reason maps to.
type Category string

const (
	AccessDenied      Category = "access-denied"
	NotFound          Category = "not-found"
	PrivateRestricted Category = "private-restricted"
	Network           Category = "network"
	RateLimited       Category = "rate-limited"
	GeoBlocked        Category = "geo-blocked"
	FormatCodec       Category = "format-codec"
	Storage           Category = "storage"
	Filesystem        Category = "filesystem"
	Unknown           Category = "unknown"
)

// Record describes one track for which every recovery avenue failed.
type Record struct {
	Title  string
	URL    string
	Reason string
}

// Categorize maps a free-text failure reason onto a Category by keyword
// matching. It is deliberately heuristic; anything unmatched is Unknown.
func Categorize(reason string) Category {
	r := strings.ToLower(reason)

	switch {
	case containsAny(r, "403", "forbidden", "access denied"):
		return AccessDenied
	case containsAny(r, "404", "not found", "unavailable"):
		return NotFound
	case containsAny(r, "private", "permission"):
		return PrivateRestricted
	case containsAny(r, "timeout", "connection", "network"):
		return Network
	case containsAny(r, "rate limit", "too many requests", "429"):
		return RateLimited
	case containsAny(r, "geo", "region", "country"):
		return GeoBlocked
	case containsAny(r, "format", "codec", "ffmpeg"):
		return FormatCodec
	case containsAny(r, "disk", "space", "storage"):
		return Storage
	case containsAny(r, "no such file", "file not found"):
		return Filesystem
	default:
		return Unknown
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Ledger accumulates failure records from any phase. Appends are safe
// under concurrent use; reads return copies.
type Ledger struct {
	mu      sync.Mutex
	records []Record
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Add appends one failure record.
func (l *Ledger) Add(title, url, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, Record{Title: title, URL: url, Reason: reason})
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Records returns a copy of all records in append order.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.records...)
}

// CategoryCount is one row of a failure breakdown.
type CategoryCount struct {
	Category Category
	Count    int
	Percent  float64
}

// Breakdown classifies every record and returns per-category counts with
// percentages, largest categories first.
func (l *Ledger) Breakdown() []CategoryCount {
	records := l.Records()
	if len(records) == 0 {
		return nil
	}

	counts := make(map[Category]int)
	for _, rec := range records {
		counts[Categorize(rec.Reason)]++
	}

	out := make([]CategoryCount, 0, len(counts))
	for cat, n := range counts {
		out = append(out, CategoryCount{
			Category: cat,
			Count:    n,
			Percent:  float64(n) / float64(len(records)) * 100,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// ReportFilename is the name of the persisted failure report.
const ReportFilename = "FAILED_DOWNLOADS.txt"

// WriteReport writes the failure report into dir, one block per record.
// No file is written when the ledger is empty. Returns the report path.
func (l *Ledger) WriteReport(dir string) (string, error) {
	records := l.Records()
	if len(records) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Tracks that failed to download:\n\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "Title: %s\nURL: %s\nReason: %s\n\n", rec.Title, rec.URL, rec.Reason)
	}

	path := filepath.Join(dir, ReportFilename)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write failure report: %w", err)
	}
	return path, nil
}
