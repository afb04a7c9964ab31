package progress

import (
	"fmt"
	"sync"
	"time"
)

// Bar is a terminal progress bar over a fixed number of tracks. It keeps
// separate success and failure tallies so the line shows how a run is
// going, not just how far along it is.
type Bar struct {
	total     int
	succeeded int
	failed    int
	mu        sync.Mutex
	startTime time.Time
	lastPrint time.Time
	done      bool
}

// New creates a progress bar for total tracks.
func New(total int) *Bar {
	return &Bar{
		total:     total,
		startTime: time.Now(),
		lastPrint: time.Now(),
	}
}

// Track records one settled track.
func (b *Bar) Track(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ok {
		b.succeeded++
	} else {
		b.failed++
	}

	// Update display every 500ms or when complete
	now := time.Now()
	if now.Sub(b.lastPrint) > 500*time.Millisecond || b.current() >= b.total {
		b.render()
		b.lastPrint = now
	}
}

// Finish marks the progress as complete
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.done {
		b.render()
		fmt.Println() // New line after completion
		b.done = true
	}
}

func (b *Bar) current() int {
	return b.succeeded + b.failed
}

// render displays the progress bar
func (b *Bar) render() {
	if b.done || b.total == 0 {
		return
	}

	current := b.current()
	percentage := float64(current) / float64(b.total) * 100
	elapsed := time.Since(b.startTime)

	// Calculate ETA
	var eta time.Duration
	if current > 0 {
		avgTime := elapsed / time.Duration(current)
		remaining := b.total - current
		eta = avgTime * time.Duration(remaining)
	}

	// Progress bar width
	barWidth := 40
	filled := int(float64(barWidth) * float64(current) / float64(b.total))

	bar := ""
	for i := 0; i < barWidth; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}

	// Format output
	fmt.Printf("\r[%s] %d/%d (%.1f%%) ok:%d fail:%d - Elapsed: %s - ETA: %s   ",
		bar,
		current,
		b.total,
		percentage,
		b.succeeded,
		b.failed,
		formatDuration(elapsed),
		formatDuration(eta),
	)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
