package voice

import (
	"fmt"

	"github.com/james-see/ratiokeys/pkg/pitch"
	"github.com/james-see/ratiokeys/pkg/ratio"
)

// Voice is one playable tone bound to one key. It is not safe for concurrent
// use; the registry serializes every call.
type Voice struct {
	id       string
	label    string
	waveform ratio.Waveform
	ratio    ratio.Ratio

	state State
	hz    float64

	osc Oscillator
	env Envelope

	acc      *pitch.Accumulator
	backend  Backend
	timing   Timing
	observer Observer
}

// New builds an idle voice for a table entry
func New(e ratio.Entry, acc *pitch.Accumulator, backend Backend, timing Timing, observer Observer) (*Voice, error) {
	if err := e.Ratio.Validate(); err != nil {
		return nil, fmt.Errorf("voice %q: %w", e.Key, err)
	}
	if !e.Waveform.Valid() {
		return nil, fmt.Errorf("voice %q: %w", e.Key, ratio.ErrInvalidWaveform)
	}
	return &Voice{
		id:       e.Key,
		label:    e.Label,
		waveform: e.Waveform,
		ratio:    e.Ratio,
		acc:      acc,
		backend:  backend,
		timing:   timing,
		observer: observer,
	}, nil
}

func (v *Voice) ID() string               { return v.id }
func (v *Voice) Label() string            { return v.label }
func (v *Voice) Ratio() ratio.Ratio       { return v.ratio }
func (v *Voice) Waveform() ratio.Waveform { return v.waveform }
func (v *Voice) State() State             { return v.state }
func (v *Voice) Hz() float64              { return v.hz }

// Status returns a snapshot of the voice
func (v *Voice) Status() Status {
	return Status{
		ID:       v.id,
		Label:    v.label,
		Waveform: v.waveform,
		Ratio:    v.ratio.String(),
		Hz:       v.hz,
		State:    v.state,
	}
}

// Press starts the voice at the accumulator pitch times its ratio and stores
// the new pitch in the accumulator. Pressing a sounding voice does nothing.
// On backend failure the voice stays idle and the accumulator is unchanged.
func (v *Voice) Press(trigger string) error {
	if v.state == Sounding {
		return nil
	}

	target := v.ratio.Apply(v.acc.Read())
	now := v.backend.Now()

	if v.env == nil {
		env, err := v.backend.CreateEnvelope()
		if err != nil {
			return fmt.Errorf("voice %s: %w: %w", v.id, ErrBackend, err)
		}
		v.env = env
	} else {
		v.env.CancelScheduledChanges(now)
		v.teardown(now)
	}
	v.env.SetGainAtTime(v.timing.Gain, now)

	osc, err := v.backend.CreateOscillator(v.waveform, target, v.env)
	if err != nil {
		return fmt.Errorf("voice %s: %w: %w", v.id, ErrBackend, err)
	}
	v.osc = osc

	v.hz = v.acc.WriteAndReturn(target)
	v.state = Sounding
	if v.observer != nil {
		v.observer.Sounded(v.id, trigger, v.hz)
	}
	return nil
}

// Release fades the voice out and schedules its oscillator to stop. The
// voice is idle as soon as Release returns; the tail decays on the backend.
func (v *Voice) Release() {
	if v.state == Idle {
		return
	}

	now := v.backend.Now()
	if v.env != nil {
		held := v.env.GainAt(now)
		v.env.CancelScheduledChanges(now)
		v.env.SetGainAtTime(held, now)
		v.env.ExponentialRampToTime(v.timing.Floor, now+v.timing.Release)
	}
	if v.osc != nil {
		v.osc.Stop(now + v.timing.StopDelay)
	}

	v.state = Idle
	if v.observer != nil {
		v.observer.Silenced(v.id, v.hz)
	}
}

// teardown drops the current oscillator, which may still be decaying
func (v *Voice) teardown(now float64) {
	if v.osc == nil {
		return
	}
	v.osc.Stop(now)
	v.osc.Disconnect()
	v.osc = nil
}
