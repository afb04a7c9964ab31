package infocache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trackfetch/internal/backend"
	"trackfetch/internal/logger"
	"trackfetch/internal/track"
)

type fakeBackend struct {
	mu       sync.Mutex
	failing  map[string]bool
	resolved []string

	active  int32
	maxSeen int32
}

func (f *fakeBackend) Resolve(ctx context.Context, ref track.Reference) (track.Info, error) {
	cur := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, cur) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.resolved = append(f.resolved, ref.URL)
	f.mu.Unlock()

	if f.failing[ref.URL] {
		return track.Info{}, errors.New("resolve failed: not found")
	}
	return track.Info{Title: "t-" + ref.URL, Duration: 100 * time.Second}, nil
}

func (f *fakeBackend) ResolvePlaylist(ctx context.Context, url string) ([]track.Reference, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBackend) Materialize(ctx context.Context, ref track.Reference, destDir string, opts backend.MaterializeOptions) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeBackend) Search(ctx context.Context, query string, limit int) ([]backend.Candidate, error) {
	return nil, errors.New("not implemented")
}

func refs(n int) []track.Reference {
	out := make([]track.Reference, n)
	for i := range out {
		out[i] = track.Reference{URL: fmt.Sprintf("https://sc.example/t/%d", i), Index: i + 1}
	}
	return out
}

func TestPrefetchResolvesAll(t *testing.T) {
	fb := &fakeBackend{}
	c := New(fb, logger.New(false), 10, 2)

	list := refs(25)
	if err := c.Prefetch(context.Background(), list); err != nil {
		t.Fatalf("Prefetch() error: %v", err)
	}

	for _, ref := range list {
		if !c.Has(ref.URL) {
			t.Errorf("no cache entry for %s", ref.URL)
		}
		if got := c.Get(ref.URL); got == nil || got.Title != "t-"+ref.URL {
			t.Errorf("unexpected entry for %s: %+v", ref.URL, got)
		}
	}
}

func TestPrefetchFailureIsAbsentNotFatal(t *testing.T) {
	fb := &fakeBackend{failing: map[string]bool{"https://sc.example/t/3": true}}
	c := New(fb, logger.New(false), 5, 2)

	list := refs(10)
	if err := c.Prefetch(context.Background(), list); err != nil {
		t.Fatalf("Prefetch() error: %v", err)
	}

	if got := c.Get("https://sc.example/t/3"); got != nil {
		t.Errorf("expected absent entry for failed reference, got %+v", got)
	}
	if !c.Has("https://sc.example/t/3") {
		t.Error("failed reference should still record an outcome")
	}
	if got := c.Get("https://sc.example/t/4"); got == nil {
		t.Error("failure of one reference must not fail the batch")
	}
}

func TestPrefetchBoundsBatchConcurrency(t *testing.T) {
	fb := &fakeBackend{}
	c := New(fb, logger.New(false), 5, 3)

	if err := c.Prefetch(context.Background(), refs(60)); err != nil {
		t.Fatalf("Prefetch() error: %v", err)
	}

	if fb.maxSeen > 3 {
		t.Errorf("observed %d concurrent resolves, limit is 3 batches with sequential members", fb.maxSeen)
	}
	if len(fb.resolved) != 60 {
		t.Errorf("resolved %d references, want 60", len(fb.resolved))
	}
}

func TestPrefetchEmpty(t *testing.T) {
	c := New(&fakeBackend{}, logger.New(false), 0, 0)
	if err := c.Prefetch(context.Background(), nil); err != nil {
		t.Fatalf("Prefetch() error: %v", err)
	}
}

func TestGetUnknownURL(t *testing.T) {
	c := New(&fakeBackend{}, logger.New(false), 0, 0)
	if c.Get("https://sc.example/never") != nil {
		t.Error("expected nil for unknown locator")
	}
	if c.Has("https://sc.example/never") {
		t.Error("expected no outcome for unknown locator")
	}
}
