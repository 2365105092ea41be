// Package pitch holds the running pitch accumulator shared by all voices
package pitch

import "sync"

const (
	// Reference is the pitch the accumulator starts from and resets to
	Reference = 440.0
)

// Accumulator is the last sounded frequency. Every new note multiplies it by
// its ratio and stores the result back.
type Accumulator struct {
	mu        sync.Mutex
	current   float64
	reference float64
}

// NewAccumulator returns an accumulator at reference. A non-positive
// reference falls back to Reference.
func NewAccumulator(reference float64) *Accumulator {
	if reference <= 0 {
		reference = Reference
	}
	return &Accumulator{current: reference, reference: reference}
}

// Read returns the current pitch in Hz
func (a *Accumulator) Read() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// WriteAndReturn stores hz and returns it
func (a *Accumulator) WriteAndReturn(hz float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = hz
	return a.current
}

// Reset puts the accumulator back at its reference pitch
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = a.reference
}

// Reference returns the pitch Reset restores
func (a *Accumulator) Reference() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reference
}
