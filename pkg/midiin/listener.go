// Package midiin drives the registry from MIDI: live input ports, standard
// MIDI file replay and recording
package midiin

import (
	"context"
	"errors"
	"log/slog"

	"gitlab.com/gomidi/midi/v2"

	"github.com/james-see/ratiokeys/pkg/ratio"
	"github.com/james-see/ratiokeys/pkg/registry"
)

// Controllers that drive the registry instead of a key
const (
	// SettleController is general purpose button 5; a value of 64 or more
	// runs the settle sequence
	SettleController = 80
	// ResetAllControllers returns the pitch to the reference
	ResetAllControllers = 121
	// AllNotesOff releases every voice
	AllNotesOff = 123
)

// ErrNoPort is returned when no MIDI input matches the requested name
var ErrNoPort = errors.New("no matching midi input")

// Dispatcher receives the events decoded from MIDI
type Dispatcher interface {
	Dispatch(ev registry.Event) error
	Panic() error
	ResetAccumulator() error
	Settle(ctx context.Context) error
}

// Mapper assigns table keys to consecutive MIDI notes, in table order,
// starting at a base note
type Mapper struct {
	base  int
	keys  []string
	notes map[string]uint8
}

func NewMapper(t *ratio.Table, base int) *Mapper {
	m := &Mapper{base: base, notes: make(map[string]uint8)}
	for i, e := range t.Entries() {
		n := base + i
		if n < 0 || n > 127 {
			continue
		}
		m.keys = append(m.keys, e.Key)
		m.notes[e.Key] = uint8(n)
	}
	return m
}

// Key returns the table key for note
func (m *Mapper) Key(note uint8) (string, bool) {
	i := int(note) - m.base
	if i < 0 || i >= len(m.keys) {
		return "", false
	}
	return m.keys[i], true
}

// Note returns the MIDI note for a table key
func (m *Mapper) Note(key string) (uint8, bool) {
	n, ok := m.notes[key]
	return n, ok
}

// Decoded is the outcome of one MIDI message: a key event, or one of the
// registry controls
type Decoded struct {
	Event  registry.Event
	Panic  bool
	Reset  bool
	Settle bool
}

// Decode converts a message into a key event or a control. Messages that
// map to neither report false.
func (m *Mapper) Decode(msg midi.Message) (Decoded, bool) {
	var ch, key, vel, ctrl, val uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		if k, ok := m.Key(key); ok {
			return Decoded{Event: registry.Event{Key: k, Pressed: true}}, true
		}
	case msg.GetNoteEnd(&ch, &key):
		if k, ok := m.Key(key); ok {
			return Decoded{Event: registry.Event{Key: k}}, true
		}
	case msg.GetControlChange(&ch, &ctrl, &val):
		switch {
		case ctrl == AllNotesOff:
			return Decoded{Panic: true}, true
		case ctrl == ResetAllControllers:
			return Decoded{Reset: true}, true
		case ctrl == SettleController && val >= 64:
			return Decoded{Settle: true}, true
		}
	}
	return Decoded{}, false
}

// Listener feeds live MIDI messages to a dispatcher
type Listener struct {
	mapper *Mapper
	d      Dispatcher
	logger *slog.Logger
}

func NewListener(m *Mapper, d Dispatcher, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Listener{mapper: m, d: d, logger: logger}
}

// Handle has the signature midi.ListenTo expects
func (l *Listener) Handle(msg midi.Message, timestampms int32) {
	dec, ok := l.mapper.Decode(msg)
	if !ok {
		l.logger.Debug("midi: unhandled message", "msg", msg.String())
		return
	}
	if dec.Settle {
		// settle takes seconds; the driver callback must not wait for it
		go func() {
			if err := l.d.Settle(context.Background()); err != nil {
				l.logger.Debug("midi: settle not run", "err", err)
			}
		}()
		return
	}
	if err := apply(context.Background(), l.d, dec); err != nil {
		if errors.Is(err, registry.ErrSettling) {
			l.logger.Debug("midi: ignored while settling", "msg", msg.String())
			return
		}
		l.logger.Warn("midi: dispatch failed", "msg", msg.String(), "err", err)
	}
}

func apply(ctx context.Context, d Dispatcher, dec Decoded) error {
	switch {
	case dec.Panic:
		return d.Panic()
	case dec.Reset:
		return d.ResetAccumulator()
	case dec.Settle:
		return d.Settle(ctx)
	}
	return d.Dispatch(dec.Event)
}
