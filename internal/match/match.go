// Package match decides whether a search result from the fallback source
// is an acceptable substitute for a given track title. The heuristic
// trades recall for precision: with no acceptable candidate a track stays
// missing rather than being replaced by the wrong recording.
package match

import (
	"strings"
	"time"
)

// Words carrying no identity: articles, conjunctions, remix/edit/feat markers.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true,
	"remix": true, "edit": true, "mix": true,
	"feat": true, "ft": true, "featuring": true,
}

// Titles or uploaders containing any of these are never music tracks.
var falseMatchIndicators = []string{
	"tutorial", "lesson", "how to", "reaction", "review", "interview",
	"documentary", "live stream", "podcast", "news", "trailer", "teaser",
	"behind the scenes", "making of", "compilation", "festival", "concert",
}

const (
	// DefaultThreshold is the minimum token-overlap ratio to accept.
	DefaultThreshold = 0.30

	// DefaultMaxDuration rejects candidates longer than this; anything
	// above is likely a DJ set or mix rather than the track itself.
	DefaultMaxDuration = 600 * time.Second
)

// Candidate is one fallback search result under consideration.
type Candidate struct {
	Title    string
	Uploader string
	Duration time.Duration
}

// Matcher scores candidates against an original title.
type Matcher struct {
	Threshold   float64
	MaxDuration time.Duration
}

// New creates a Matcher. Zero values fall back to the defaults.
func New(threshold float64, maxDuration time.Duration) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	return &Matcher{Threshold: threshold, MaxDuration: maxDuration}
}

// Accept reports whether cand is a plausible substitute for originalTitle.
func (m *Matcher) Accept(originalTitle string, cand Candidate) bool {
	if m.Overlap(originalTitle, cand.Title) < m.Threshold {
		return false
	}

	candTitle := strings.ToLower(cand.Title)
	candUploader := strings.ToLower(cand.Uploader)
	for _, indicator := range falseMatchIndicators {
		if strings.Contains(candTitle, indicator) || strings.Contains(candUploader, indicator) {
			return false
		}
	}

	if cand.Duration > m.MaxDuration {
		return false
	}

	return true
}

// Overlap returns the ratio of tokens shared by both titles over the size
// of the filtered original-title token set.
func (m *Matcher) Overlap(originalTitle, candTitle string) float64 {
	original := tokenSet(originalTitle, true)
	candidate := tokenSet(candTitle, false)

	common := 0
	for tok := range original {
		if candidate[tok] {
			common++
		}
	}

	denom := len(original)
	if denom < 1 {
		denom = 1
	}
	return float64(common) / float64(denom)
}

// tokenSet lowercases and splits a title on whitespace, trims punctuation,
// and discards tokens of length <= 2. Stop words are dropped only from the
// original title, mirroring the asymmetric comparison the ratio is
// defined over.
func tokenSet(title string, dropStopWords bool) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(title)) {
		if len(word) <= 2 {
			continue
		}
		if dropStopWords && stopWords[word] {
			continue
		}
		word = strings.Trim(word, "()[]{}.,!?-_")
		if word != "" {
			set[word] = true
		}
	}
	return set
}
