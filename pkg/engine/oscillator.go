package engine

import (
	"math"

	"github.com/james-see/ratiokeys/pkg/ratio"
)

// oscillator is a phase accumulator. start and stop are frames; a stop at or
// before start means the oscillator never sounds. Fields are guarded by the
// owning engine's mutex.
type oscillator struct {
	env   *envelope
	wave  ratio.Waveform
	hz    float64
	inc   float64
	phase float64
	start int64
	stop  int64
}

// Stop schedules the end of the tone, replacing any earlier stop
func (o *oscillator) Stop(at float64) {
	e := o.env.e
	e.mu.Lock()
	defer e.mu.Unlock()
	o.stop = max(e.frameAt(at), e.frame)
}

// Disconnect removes the oscillator from its envelope immediately
func (o *oscillator) Disconnect() {
	e := o.env.e
	e.mu.Lock()
	defer e.mu.Unlock()
	oscs := o.env.oscs
	for i, x := range oscs {
		if x == o {
			o.env.oscs = append(oscs[:i], oscs[i+1:]...)
			return
		}
	}
}

func (o *oscillator) next() float64 {
	s := sample(o.wave, o.phase)
	o.phase += o.inc
	o.phase -= math.Floor(o.phase)
	return s
}

// sample evaluates one period of w at phase p in [0, 1)
func sample(w ratio.Waveform, p float64) float64 {
	switch w {
	case ratio.Square:
		if p < 0.5 {
			return 1
		}
		return -1
	case ratio.Sawtooth:
		return 2*p - 1
	case ratio.Triangle:
		switch {
		case p < 0.25:
			return 4 * p
		case p < 0.75:
			return 2 - 4*p
		default:
			return 4*p - 4
		}
	default:
		return math.Sin(2 * math.Pi * p)
	}
}
