// Package metrics defines the small instrumentation surface the tools
// emit through, decoupled from any vendor backend. A process installs one
// Backend; everything else calls the package-level helpers and never
// learns where the numbers go.
package metrics

import "sync"

// Labels attaches dimension values to a metric sample.
type Labels map[string]string

// Backend receives metric samples. Implementations buffer internally:
// Flush forces a submission of everything buffered so far, Close stops
// background work after one final flush.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
	Close() error
}

// Noop discards everything. It is the default, so instrumented code never
// nil-checks its backend.
type Noop struct{}

func (Noop) IncCounter(string, float64, Labels)       {}
func (Noop) ObserveHistogram(string, float64, Labels) {}
func (Noop) Flush() error                             { return nil }
func (Noop) Close() error                             { return nil }

var (
	mu      sync.RWMutex
	current Backend = Noop{}
)

// SetBackend installs b as the process-wide backend. nil restores the
// noop backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		current = Noop{}
		return
	}
	current = b
}

// Current returns the installed backend.
func Current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// IncCounter records a counter increment on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	Current().IncCounter(name, delta, labels)
}

// ObserveHistogram records a distribution sample on the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	Current().ObserveHistogram(name, value, labels)
}

// Flush submits everything the installed backend has buffered.
func Flush() error {
	return Current().Flush()
}
