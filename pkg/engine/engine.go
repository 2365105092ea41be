// Package engine is a software audio backend: oscillators feed envelopes,
// envelopes feed a mono mix bus that is pulled as float32 samples
package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/viterin/vek/vek32"

	"github.com/james-see/ratiokeys/pkg/ratio"
	"github.com/james-see/ratiokeys/pkg/voice"
)

var (
	ErrTooManyOscillators = errors.New("too many oscillators")
	ErrForeignEnvelope    = errors.New("envelope belongs to another engine")
	ErrInvalidFrequency   = errors.New("invalid frequency")
)

const (
	DefaultSampleRate     = 48000
	DefaultVolume         = 0.1
	DefaultMaxOscillators = 128
)

// Options configures an Engine
type Options struct {
	SampleRate     int
	Volume         float64 // master gain applied to the mix bus
	MaxOscillators int
	Analyzer       *Analyzer // optional sink that receives every rendered block
}

// Engine implements voice.Backend. Its clock is the number of rendered
// frames, so scheduled automation only advances while something renders.
type Engine struct {
	mu        sync.Mutex
	rate      float64
	frame     int64
	volume    float32
	maxOsc    int
	envelopes []*envelope
	analyzer  *Analyzer
	scratch   []float32

	pull []float32 // used only by Read
}

var _ voice.Backend = (*Engine)(nil)

// New creates an engine, filling zero options with defaults
func New(opts Options) *Engine {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Volume <= 0 {
		opts.Volume = DefaultVolume
	}
	if opts.MaxOscillators <= 0 {
		opts.MaxOscillators = DefaultMaxOscillators
	}
	return &Engine{
		rate:     float64(opts.SampleRate),
		volume:   float32(opts.Volume),
		maxOsc:   opts.MaxOscillators,
		analyzer: opts.Analyzer,
	}
}

// SampleRate returns frames per second
func (e *Engine) SampleRate() int {
	return int(e.rate)
}

// Now returns the engine clock in seconds
func (e *Engine) Now() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seconds(e.frame)
}

func (e *Engine) seconds(frame int64) float64 {
	return float64(frame) / e.rate
}

func (e *Engine) frameAt(t float64) int64 {
	return int64(math.Round(t * e.rate))
}

// CreateEnvelope adds a gain stage to the mix bus at full scale
func (e *Engine) CreateEnvelope() (voice.Envelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	env := &envelope{e: e, value: 1}
	e.envelopes = append(e.envelopes, env)
	return env, nil
}

// CreateOscillator starts a tone at the current frame, routed through env
func (e *Engine) CreateOscillator(w ratio.Waveform, hz float64, env voice.Envelope) (voice.Oscillator, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: %d", ratio.ErrInvalidWaveform, int(w))
	}
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrequency, hz)
	}
	target, ok := env.(*envelope)
	if !ok || target.e != e {
		return nil, ErrForeignEnvelope
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if n := e.oscillatorCount(); n >= e.maxOsc {
		return nil, fmt.Errorf("%w: %d running", ErrTooManyOscillators, n)
	}
	o := &oscillator{
		env:   target,
		wave:  w,
		inc:   hz / e.rate,
		hz:    hz,
		start: e.frame,
		stop:  math.MaxInt64,
	}
	target.oscs = append(target.oscs, o)
	return o, nil
}

// Oscillators returns how many oscillators are connected
func (e *Engine) Oscillators() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.oscillatorCount()
}

func (e *Engine) oscillatorCount() int {
	n := 0
	for _, env := range e.envelopes {
		n += len(env.oscs)
	}
	return n
}

// Render mixes the next len(out) frames into out and advances the clock
func (e *Engine) Render(out []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range out {
		out[i] = 0
	}
	if len(e.scratch) < len(out) {
		e.scratch = make([]float32, len(out))
	}
	scratch := e.scratch[:len(out)]
	for _, env := range e.envelopes {
		if len(env.oscs) == 0 {
			continue
		}
		env.render(e.frame, scratch)
		vek32.Add_Inplace(out, scratch)
	}
	vek32.MulNumber_Inplace(out, e.volume)
	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}

	e.frame += int64(len(out))
	now := e.seconds(e.frame)
	for _, env := range e.envelopes {
		env.prune(e.frame, now)
	}
	if e.analyzer != nil {
		e.analyzer.Write(out)
	}
}

// Advance renders and discards d worth of audio
func (e *Engine) Advance(d time.Duration) {
	frames := int(math.Round(d.Seconds() * e.rate))
	buf := make([]float32, 1024)
	for frames > 0 {
		n := min(frames, len(buf))
		e.Render(buf[:n])
		frames -= n
	}
}

// Read implements io.Reader with little-endian float32 mono samples so the
// engine can be handed straight to an audio player
func (e *Engine) Read(p []byte) (int, error) {
	n := len(p) / 4
	if len(e.pull) < n {
		e.pull = make([]float32, n)
	}
	samples := e.pull[:n]
	e.Render(samples)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(s))
	}
	return 4 * n, nil
}

// Run drives the clock in real time without an audio device, rendering one
// block per tick until ctx is done
func (e *Engine) Run(ctx context.Context, block time.Duration) {
	if block <= 0 {
		block = 10 * time.Millisecond
	}
	ticker := time.NewTicker(block)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Advance(block)
		}
	}
}
