// Package voice implements the per-key tone lifecycle: pressing retunes a
// voice from the shared pitch accumulator, releasing fades it out
package voice

import (
	"errors"

	"github.com/james-see/ratiokeys/pkg/ratio"
)

// ErrBackend wraps any failure of the audio backend while pressing a voice
var ErrBackend = errors.New("audio backend failure")

// State is the logical state of a voice
type State int

const (
	Idle State = iota
	Sounding
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sounding:
		return "sounding"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Oscillator is a running tone generator. It starts when created and runs
// until stopped. A later Stop replaces any earlier scheduled stop.
type Oscillator interface {
	Stop(at float64)
	Disconnect()
}

// Envelope is a gain stage connected to the mix bus. Times are seconds on
// the backend clock.
type Envelope interface {
	SetGainAtTime(level, at float64)
	CancelScheduledChanges(from float64)
	ExponentialRampToTime(level, at float64)
	GainAt(t float64) float64
}

// Backend creates the audio graph a voice drives
type Backend interface {
	Now() float64
	CreateEnvelope() (Envelope, error)
	CreateOscillator(w ratio.Waveform, hz float64, env Envelope) (Oscillator, error)
}

// Observer is told when a voice starts and stops sounding
type Observer interface {
	Sounded(id, trigger string, hz float64)
	Silenced(id string, hz float64)
}

// Timing shapes the envelope of every voice
type Timing struct {
	Gain      float64 // full-scale level at note start
	Release   float64 // seconds of exponential decay after release
	Floor     float64 // level the decay targets; exponential ramps cannot reach zero
	StopDelay float64 // seconds after release until the oscillator stops
}

// DefaultTiming returns the canonical envelope: 0.3s decay to 0.01 and the
// oscillator stopped one second after release
func DefaultTiming() Timing {
	return Timing{
		Gain:      1.0,
		Release:   0.3,
		Floor:     0.01,
		StopDelay: 1.0,
	}
}

// Status is a read-only view of a voice for display
type Status struct {
	ID       string         `json:"id"`
	Label    string         `json:"label"`
	Waveform ratio.Waveform `json:"waveform"`
	Ratio    string         `json:"ratio"`
	Hz       float64        `json:"hz"`
	State    State          `json:"state"`
}
