// Package registry owns every voice and the shared pitch accumulator, and
// serializes all presses and releases through one mutex
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/james-see/ratiokeys/pkg/pitch"
	"github.com/james-see/ratiokeys/pkg/ratio"
	"github.com/james-see/ratiokeys/pkg/voice"
)

var (
	// ErrSettling is returned for any dispatch made while the settle
	// sequence is running
	ErrSettling      = errors.New("settle sequence in progress")
	ErrUnknownAnchor = errors.New("settle anchor not in table")
	ErrNoSettle      = errors.New("settle anchors not configured")
)

// Trigger names recorded with each sounding entry
const (
	TriggerKey    = "key"
	TriggerSettle = "settle"
)

// Event is one key transition from an input source
type Event struct {
	Key     string `json:"key"`
	Pressed bool   `json:"pressed"`
}

// Sounding is one entry of the sounding log
type Sounding struct {
	VoiceID string  `json:"voice_id"`
	Label   string  `json:"label"`
	Trigger string  `json:"trigger"`
	Hz      float64 `json:"hz"`
}

// SettleOptions configures the priming sequence
type SettleOptions struct {
	AnchorA    string
	AnchorB    string
	Steps      int
	Interval   time.Duration // zero runs the steps back to back
	StartPitch float64
}

// DefaultSettle alternates the octave up and octave down keys of the default
// table 21 times from 110 Hz
func DefaultSettle() SettleOptions {
	return SettleOptions{
		AnchorA:    "Digit2",
		AnchorB:    "BracketRight",
		Steps:      21,
		Interval:   100 * time.Millisecond,
		StartPitch: 110.0,
	}
}

// Options configures a Registry. Zero fields take defaults, except
// Settle.Interval.
type Options struct {
	Timing    voice.Timing
	Reference float64
	Settle    SettleOptions
	Logger    *slog.Logger
}

// Registry routes input events to voices. Every voice and accumulator
// mutation happens under mu.
type Registry struct {
	mu       sync.Mutex
	table    *ratio.Table
	acc      *pitch.Accumulator
	voices   []*voice.Voice
	byID     map[string]*voice.Voice
	log      []Sounding
	settle   SettleOptions
	anchors  [2]*voice.Voice
	settling bool
	logger   *slog.Logger
}

// New creates one idle voice per table entry, in table order
func New(table *ratio.Table, backend voice.Backend, opts Options) (*Registry, error) {
	if table == nil {
		return nil, errors.New("registry needs a ratio table")
	}
	if backend == nil {
		return nil, errors.New("registry needs an audio backend")
	}
	if opts.Timing == (voice.Timing{}) {
		opts.Timing = voice.DefaultTiming()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	r := &Registry{
		table:  table,
		acc:    pitch.NewAccumulator(opts.Reference),
		byID:   make(map[string]*voice.Voice, table.Len()),
		logger: opts.Logger,
	}

	obs := observer{r}
	for _, e := range table.Entries() {
		v, err := voice.New(e, r.acc, backend, opts.Timing, obs)
		if err != nil {
			return nil, err
		}
		r.voices = append(r.voices, v)
		r.byID[v.ID()] = v
	}

	if err := r.configureSettle(opts.Settle); err != nil {
		return nil, err
	}
	return r, nil
}

// configureSettle resolves the anchors. Explicit anchors must be in the
// table; when the defaults are missing from a custom table, settle is
// disabled instead.
func (r *Registry) configureSettle(s SettleOptions) error {
	def := DefaultSettle()
	explicit := s.AnchorA != "" || s.AnchorB != ""
	if s.AnchorA == "" {
		s.AnchorA = def.AnchorA
	}
	if s.AnchorB == "" {
		s.AnchorB = def.AnchorB
	}
	if s.Steps <= 0 {
		s.Steps = def.Steps
	}
	if s.StartPitch <= 0 {
		s.StartPitch = def.StartPitch
	}
	if s.Interval < 0 {
		s.Interval = 0
	}
	r.settle = s
	if s.AnchorA == s.AnchorB {
		return fmt.Errorf("settle anchors must differ, both are %q", s.AnchorA)
	}

	a, okA := r.byID[s.AnchorA]
	b, okB := r.byID[s.AnchorB]
	if okA && okB {
		r.anchors = [2]*voice.Voice{a, b}
		return nil
	}
	if !explicit {
		return nil
	}
	missing := s.AnchorA
	if okA {
		missing = s.AnchorB
	}
	return fmt.Errorf("%w: %q", ErrUnknownAnchor, missing)
}

// DispatchPress presses the voice bound to key. Unknown keys are ignored.
func (r *Registry) DispatchPress(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settling {
		return ErrSettling
	}
	return r.press(key, TriggerKey)
}

// DispatchRelease releases the voice bound to key. Unknown keys are ignored.
func (r *Registry) DispatchRelease(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settling {
		return ErrSettling
	}
	r.release(key)
	return nil
}

// Dispatch routes an input event
func (r *Registry) Dispatch(ev Event) error {
	if ev.Pressed {
		return r.DispatchPress(ev.Key)
	}
	return r.DispatchRelease(ev.Key)
}

func (r *Registry) press(key, trigger string) error {
	v, ok := r.byID[key]
	if !ok {
		return nil
	}
	if err := v.Press(trigger); err != nil {
		r.logger.Error("press failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (r *Registry) release(key string) {
	if v, ok := r.byID[key]; ok {
		v.Release()
	}
}

// ResetAccumulator returns the pitch to the reference. Sounding voices keep
// playing.
func (r *Registry) ResetAccumulator() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settling {
		return ErrSettling
	}
	r.acc.Reset()
	r.logger.Info("pitch reset", "hz", r.acc.Read())
	return nil
}

// Panic releases every voice
func (r *Registry) Panic() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settling {
		return ErrSettling
	}
	r.releaseAll()
	return nil
}

func (r *Registry) releaseAll() {
	n := 0
	for _, v := range r.voices {
		if v.State() == voice.Sounding {
			n++
		}
		v.Release()
	}
	r.logger.Info("panic", "released", n)
}

// Settle runs the priming sequence: from the start pitch, alternately press
// the two anchors, releasing the previous one first, then release both and
// reset the pitch to the reference. The reset happens even if ctx is
// cancelled part way.
func (r *Registry) Settle(ctx context.Context) error {
	s, err := r.claimSettle()
	if err != nil {
		return err
	}
	return r.runSettle(ctx, s)
}

// StartSettle claims the sequence before returning, so a second caller gets
// ErrSettling at once, then runs it in the background. The channel receives
// the result.
func (r *Registry) StartSettle(ctx context.Context) (<-chan error, error) {
	s, err := r.claimSettle()
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		done <- r.runSettle(ctx, s)
	}()
	return done, nil
}

// CanSettle reports whether both anchors are in the table
func (r *Registry) CanSettle() bool {
	return r.anchors[0] != nil
}

func (r *Registry) claimSettle() (SettleOptions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.anchors[0] == nil {
		return SettleOptions{}, ErrNoSettle
	}
	if r.settling {
		return SettleOptions{}, ErrSettling
	}
	r.settling = true
	r.acc.WriteAndReturn(r.settle.StartPitch)
	return r.settle, nil
}

func (r *Registry) runSettle(ctx context.Context, s SettleOptions) (err error) {
	r.logger.Info("settle started", "anchor_a", s.AnchorA, "anchor_b", s.AnchorB, "steps", s.Steps, "from", s.StartPitch)
	defer func() {
		r.mu.Lock()
		r.anchors[0].Release()
		r.anchors[1].Release()
		r.acc.Reset()
		r.settling = false
		r.mu.Unlock()
		r.logger.Info("settle finished", "hz", r.Pitch(), "error", err)
	}()

	var prev *voice.Voice
	for i := 0; i < s.Steps; i++ {
		if i > 0 {
			if err := wait(ctx, s.Interval); err != nil {
				return err
			}
		}
		v := r.anchors[i%2]
		r.mu.Lock()
		if prev != nil {
			prev.Release()
		}
		err := v.Press(TriggerSettle)
		r.mu.Unlock()
		if err != nil {
			return fmt.Errorf("settle step %d: %w", i, err)
		}
		prev = v
	}
	return wait(ctx, s.Interval)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Snapshot returns the status of every voice in table order
func (r *Registry) Snapshot() []voice.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]voice.Status, len(r.voices))
	for i, v := range r.voices {
		out[i] = v.Status()
	}
	return out
}

// Sounding returns a copy of the sounding log, oldest first
func (r *Registry) Sounding() []Sounding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sounding(nil), r.log...)
}

// Pitch returns the accumulator
func (r *Registry) Pitch() float64 {
	return r.acc.Read()
}

// Reference returns the pitch that reset returns to
func (r *Registry) Reference() float64 {
	return r.acc.Reference()
}

func (r *Registry) Table() *ratio.Table {
	return r.table
}

// Settling reports whether the settle sequence is running
func (r *Registry) Settling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settling
}

// observer maintains the sounding log. Voices call it while r.mu is held.
type observer struct {
	r *Registry
}

func (o observer) Sounded(id, trigger string, hz float64) {
	r := o.r
	label := id
	if v, ok := r.byID[id]; ok && v.Label() != "" {
		label = v.Label()
	}
	r.log = append(r.log, Sounding{VoiceID: id, Label: label, Trigger: trigger, Hz: hz})
	r.logger.Debug("voice sounded", "key", id, "trigger", trigger, "hz", hz)
}

// Silenced removes the first entry with a matching frequency, which may
// belong to another voice that sounded the same pitch
func (o observer) Silenced(id string, hz float64) {
	r := o.r
	for i, s := range r.log {
		if s.Hz == hz {
			r.log = append(r.log[:i], r.log[i+1:]...)
			break
		}
	}
	r.logger.Debug("voice silenced", "key", id, "hz", hz)
}
