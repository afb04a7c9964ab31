package backend

import "strings"

// Kind buckets backend errors for retry decisions.
type Kind int

const (
	// KindUnclassified errors are recorded but drive no retry policy.
	KindUnclassified Kind = iota

	// KindTransient errors (network, timeout, rate limit) are worth
	// retrying with the same strategy after a backoff.
	KindTransient

	// KindPermanent errors (not found, private, geo-blocked) will not
	// succeed on retry; only a different source can help.
	KindPermanent
)

var transientKeywords = []string{
	"timeout", "timed out", "connection", "network", "temporary",
	"rate limit", "too many requests", "429", "503", "502",
}

var permanentKeywords = []string{
	"404", "not found", "unavailable", "removed",
	"private", "permission", "403", "forbidden",
	"geo", "region", "country", "copyright", "drm",
}

// Classify inspects an error's text and assigns a Kind. Transient
// keywords win over permanent ones: a "connection timeout fetching
// private track" is still worth one more try.
func Classify(err error) Kind {
	if err == nil {
		return KindUnclassified
	}
	return ClassifyText(err.Error())
}

// ClassifyText classifies a failure reason that only survives as text,
// such as a recorded failure from an earlier phase.
func ClassifyText(reason string) Kind {
	msg := strings.ToLower(reason)

	for _, k := range transientKeywords {
		if strings.Contains(msg, k) {
			return KindTransient
		}
	}
	for _, k := range permanentKeywords {
		if strings.Contains(msg, k) {
			return KindPermanent
		}
	}
	return KindUnclassified
}

// IsTransient reports whether err should be retried with the same strategy.
func IsTransient(err error) bool {
	return Classify(err) == KindTransient
}

// IsPermanent reports whether err can only be solved by another source.
func IsPermanent(err error) bool {
	return Classify(err) == KindPermanent
}
