package logger

import "sync"

// Capture collects warning and error lines emitted by an external tool
// during one operation while forwarding them to the logger. It replaces
// per-call ad-hoc handler objects with one reusable sink; the verbosity
// of the underlying logger decides whether debug lines surface.
type Capture struct {
	Prefix string

	log *Logger

	mu       sync.Mutex
	warnings []string
	errors   []string
}

// NewCapture creates a Capture that forwards to log, tagging each line
// with prefix.
func NewCapture(log *Logger, prefix string) *Capture {
	return &Capture{Prefix: prefix, log: log}
}

// Debug forwards a diagnostic line; it is not retained.
func (c *Capture) Debug(msg string) {
	c.log.Debug("%s: %s", c.Prefix, msg)
}

// Warning retains and forwards a warning line.
func (c *Capture) Warning(msg string) {
	c.mu.Lock()
	c.warnings = append(c.warnings, msg)
	c.mu.Unlock()
	c.log.Warn("%s warning: %s", c.Prefix, msg)
}

// Error retains and forwards an error line.
func (c *Capture) Error(msg string) {
	c.mu.Lock()
	c.errors = append(c.errors, msg)
	c.mu.Unlock()
	c.log.Error("%s error: %s", c.Prefix, msg)
}

// Warnings returns the warning lines captured so far.
func (c *Capture) Warnings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.warnings...)
}

// Errors returns the error lines captured so far.
func (c *Capture) Errors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.errors...)
}
