package acquire

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestClaimOncePerTitle(t *testing.T) {
	c := NewClaims()

	if !c.Claim("My Song") {
		t.Fatal("first claim should succeed")
	}
	if c.Claim("My Song") {
		t.Error("second claim should fail")
	}
	// Case and sanitization variants map to the same claim.
	if c.Claim("my song") {
		t.Error("case variant should map to the same claim")
	}
	if c.Claim(`My Song`) {
		t.Error("repeat claim should fail")
	}

	c.Release("My Song")
	if !c.Claim("My Song") {
		t.Error("claim after release should succeed")
	}
}

func TestClaimSanitizedCollision(t *testing.T) {
	c := NewClaims()
	// Both sanitize to the same filename stem.
	if !c.Claim("A/B Test") {
		t.Fatal("first claim should succeed")
	}
	if c.Claim(`A\B Test`) {
		t.Error("titles with identical sanitized forms must collide")
	}
}

func TestClaimEmptyTitle(t *testing.T) {
	c := NewClaims()
	if c.Claim("") {
		t.Error("empty title must not be claimable")
	}
	if c.Claim("   ") {
		t.Error("whitespace-only title must not be claimable")
	}
}

func TestSeedFromDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Existing Song.mp3", "Another One.m4a", "ignore.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	c := NewClaims()
	if n := c.SeedFromDir(dir); n != 2 {
		t.Fatalf("seeded %d claims, want 2", n)
	}
	if c.Claim("Existing Song") {
		t.Error("seeded title should already be claimed")
	}
	if !c.Settled("Existing Song") {
		t.Error("seeded title should count as settled")
	}
	if !c.Claim("Brand New Song") {
		t.Error("unseeded title should be claimable")
	}
}

func TestWaitSettled(t *testing.T) {
	c := NewClaims()
	ctx := context.Background()

	if c.WaitSettled(ctx, "Never Claimed") {
		t.Error("unclaimed title should resolve as not settled")
	}

	c.Claim("Done Song")
	c.Settle("Done Song")
	if !c.WaitSettled(ctx, "Done Song") {
		t.Error("settled claim should resolve immediately")
	}
	if !c.Settled("Done Song") {
		t.Error("Settled should report a settled claim")
	}

	c.Claim("Doomed Song")
	if c.Settled("Doomed Song") {
		t.Error("in-flight claim must not read as settled")
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Release("Doomed Song")
	}()
	if c.WaitSettled(ctx, "Doomed Song") {
		t.Error("released claim should resolve as not settled")
	}
	if !c.Claim("Doomed Song") {
		t.Error("released title should be claimable again")
	}
}

func TestWaitSettledCancelled(t *testing.T) {
	c := NewClaims()
	c.Claim("Stuck Song")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if c.WaitSettled(ctx, "Stuck Song") {
		t.Error("cancelled wait must not report settled")
	}
}

func TestClaimConcurrent(t *testing.T) {
	c := NewClaims()

	const goroutines = 32
	var wg sync.WaitGroup
	won := make(chan struct{}, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Claim("Contested Title") {
				won <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(won)

	winners := 0
	for range won {
		winners++
	}
	if winners != 1 {
		t.Errorf("%d goroutines won the claim, want exactly 1", winners)
	}
}
