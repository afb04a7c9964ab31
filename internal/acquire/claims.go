package acquire

import (
	"context"
	"strings"
	"sync"

	"trackfetch/internal/track"
	"trackfetch/pkg/utils"
)

// Claims is the in-memory registry of track titles owned by a download.
// A claim starts in flight when Claim returns true; Settle marks its
// file as on disk, Release frees the title so another worker may retry
// it. Workers that lose a claim observe the outcome through WaitSettled,
// so no two workers can ever both write a file for the same title. It
// replaces repeated directory scans as the duplicate-detection mechanism.
type Claims struct {
	mu     sync.Mutex
	titles map[string]*claim
}

type claim struct {
	done    chan struct{}
	settled bool
}

// NewClaims creates an empty claim set.
func NewClaims() *Claims {
	return &Claims{titles: make(map[string]*claim)}
}

// claimKey normalizes a title the same way filenames are derived from it.
func claimKey(title string) string {
	return strings.ToLower(track.SanitizeTitle(title))
}

// SeedFromDir claims, as already settled, the titles of all audio files
// present in dir, so a re-run treats them as satisfied without
// re-downloading.
func (c *Claims) SeedFromDir(dir string) int {
	titles := utils.ListAudioTitles(dir)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, title := range titles {
		if _, ok := c.titles[title]; ok {
			continue
		}
		done := make(chan struct{})
		close(done)
		c.titles[title] = &claim{done: done, settled: true}
	}
	return len(titles)
}

// Claim atomically checks and claims a title. It returns true when the
// caller now owns the title, false when it is held, in flight or
// settled, by someone else.
func (c *Claims) Claim(title string) bool {
	key := claimKey(title)
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.titles[key]; ok {
		return false
	}
	c.titles[key] = &claim{done: make(chan struct{})}
	return true
}

// Settle marks the caller's claim as satisfied: the title's file is on
// disk. Waiters unblock and see the title as settled.
func (c *Claims) Settle(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.titles[claimKey(title)]
	if !ok || cl.settled {
		return
	}
	cl.settled = true
	close(cl.done)
}

// Release frees a claim after a failed or superseded download so a later
// attempt can try the title again. Waiters unblock and see the title as
// free.
func (c *Claims) Release(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := claimKey(title)
	cl, ok := c.titles[key]
	if !ok {
		return
	}
	delete(c.titles, key)
	if !cl.settled {
		close(cl.done)
	}
}

// Has reports whether a title is currently claimed, in flight or settled.
func (c *Claims) Has(title string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.titles[claimKey(title)]
	return ok
}

// Settled reports, without blocking, whether a title's claim completed
// with a file on disk.
func (c *Claims) Settled(title string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.titles[claimKey(title)]
	return ok && cl.settled
}

// WaitSettled blocks until the current claim on title resolves. It
// returns true when the claim settled with a file on disk, and false
// when the title was released (free to claim again), was never claimed,
// or ctx ended first. Callers must not hold the claim themselves.
func (c *Claims) WaitSettled(ctx context.Context, title string) bool {
	key := claimKey(title)

	c.mu.Lock()
	cl, ok := c.titles[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	done := cl.done
	c.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok = c.titles[key]
	return ok && cl.settled
}
