package midiin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/ratiokeys/pkg/registry"
)

const (
	// DefaultTempo applies until a file sets its own
	DefaultTempo = 120.0
	// recordResolution is the ticks per quarter note of recorded files
	recordResolution = 480
)

// TimedEvent is a decoded message at an offset from the start of a
// performance
type TimedEvent struct {
	At time.Duration
	Decoded
}

// Performance is a replayable sequence of events, sorted by time
type Performance struct {
	Tempo  float64
	Events []TimedEvent
}

// Duration returns the offset of the last event
func (p *Performance) Duration() time.Duration {
	if len(p.Events) == 0 {
		return 0
	}
	return p.Events[len(p.Events)-1].At
}

// LoadPerformanceFile reads a standard MIDI file from disk
func LoadPerformanceFile(path string, m *Mapper) (*Performance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return LoadPerformance(bytes.NewReader(data), m)
}

// LoadPerformance parses a standard MIDI file. All tracks are merged; ticks
// are converted to time using the first tempo event of the file. Notes that
// do not map to a key are dropped.
func LoadPerformance(r io.Reader, m *Mapper) (*Performance, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || mt.Resolution() == 0 {
		return nil, errors.New("only metric time formats are supported")
	}

	type tickEvent struct {
		tick int64
		dec  Decoded
	}

	tempo := 0.0
	var events []tickEvent
	for _, track := range s.Tracks {
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			msg := ev.Message

			// Set Tempo meta event: FF 51 03 tt tt tt
			if len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03 {
				usPerBeat := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if tempo == 0 && usPerBeat > 0 {
					tempo = 60000000.0 / float64(usPerBeat)
				}
				continue
			}

			if dec, ok := m.Decode(midi.Message(msg)); ok {
				events = append(events, tickEvent{tick: tick, dec: dec})
			}
		}
	}
	if tempo == 0 {
		tempo = DefaultTempo
	}

	// tracks are concatenated above, so a stable sort keeps track order for
	// events on the same tick
	sort.SliceStable(events, func(i, j int) bool { return events[i].tick < events[j].tick })

	perQuarter := tempo * float64(mt.Resolution())
	p := &Performance{Tempo: tempo, Events: make([]TimedEvent, len(events))}
	for i, ev := range events {
		at := time.Duration(math.Round(float64(ev.tick) * float64(time.Minute) / perQuarter))
		p.Events[i] = TimedEvent{At: at, Decoded: ev.dec}
	}
	return p, nil
}

// Replay dispatches the performance in real time until it ends or ctx is
// done. A settle event blocks until the sequence ends. Events rejected
// because a settle sequence is running, or because the table has no settle
// anchors, are skipped.
func Replay(ctx context.Context, p *Performance, d Dispatcher) error {
	start := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for _, ev := range p.Events {
		if wait := ev.At - time.Since(start); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		err := apply(ctx, d, ev.Decoded)
		switch {
		case err == nil, errors.Is(err, registry.ErrSettling), errors.Is(err, registry.ErrNoSettle):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("replay at %v: %w", ev.At, err)
		}
	}
	return nil
}

// Recorder passes events through to a dispatcher and keeps a timestamped
// copy that can be written as a standard MIDI file
type Recorder struct {
	next   Dispatcher
	mapper *Mapper
	now    func() time.Time

	mu     sync.Mutex
	start  time.Time
	events []TimedEvent
}

func NewRecorder(next Dispatcher, m *Mapper) *Recorder {
	return &Recorder{next: next, mapper: m, now: time.Now}
}

func (r *Recorder) record(dec Decoded) {
	r.recordAt(r.now(), dec)
}

func (r *Recorder) recordAt(now time.Time, dec Decoded) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.start.IsZero() {
		r.start = now
	}
	r.events = append(r.events, TimedEvent{At: now.Sub(r.start), Decoded: dec})
}

// Dispatch forwards ev and records it if it was accepted
func (r *Recorder) Dispatch(ev registry.Event) error {
	if err := r.next.Dispatch(ev); err != nil {
		return err
	}
	if _, ok := r.mapper.Note(ev.Key); ok {
		r.record(Decoded{Event: ev})
	}
	return nil
}

// Panic forwards and records an all notes off
func (r *Recorder) Panic() error {
	if err := r.next.Panic(); err != nil {
		return err
	}
	r.record(Decoded{Panic: true})
	return nil
}

// ResetAccumulator forwards and records a pitch reset
func (r *Recorder) ResetAccumulator() error {
	if err := r.next.ResetAccumulator(); err != nil {
		return err
	}
	r.record(Decoded{Reset: true})
	return nil
}

// Settle forwards a settle sequence and, once it has completed, records it
// at the time it started
func (r *Recorder) Settle(ctx context.Context) error {
	at := r.now()
	if err := r.next.Settle(ctx); err != nil {
		return err
	}
	r.recordAt(at, Decoded{Settle: true})
	return nil
}

// Performance returns what has been recorded so far
func (r *Recorder) Performance() *Performance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Performance{Tempo: DefaultTempo, Events: append([]TimedEvent(nil), r.events...)}
}

// WriteTo encodes the recording as a single track file at the default tempo
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	return WritePerformance(w, r.Performance(), r.mapper)
}

// WritePerformance encodes p as a single track standard MIDI file
func WritePerformance(w io.Writer, p *Performance, m *Mapper) (int64, error) {
	tempo := p.Tempo
	if tempo <= 0 {
		tempo = DefaultTempo
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(recordResolution)

	var track smf.Track

	usPerBeat := uint32(60000000.0 / tempo)
	track.Add(0, smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(usPerBeat >> 16),
		byte(usPerBeat >> 8),
		byte(usPerBeat),
	}))

	tickDur := float64(time.Minute) / tempo / recordResolution
	var current uint32
	channel := uint8(0)
	for _, ev := range p.Events {
		var msg midi.Message
		switch {
		case ev.Panic:
			msg = midi.ControlChange(channel, AllNotesOff, 0)
		case ev.Reset:
			msg = midi.ControlChange(channel, ResetAllControllers, 0)
		case ev.Settle:
			msg = midi.ControlChange(channel, SettleController, 127)
		default:
			note, ok := m.Note(ev.Event.Key)
			if !ok {
				continue
			}
			if ev.Event.Pressed {
				msg = midi.NoteOn(channel, note, 100)
			} else {
				msg = midi.NoteOff(channel, note)
			}
		}
		tick := uint32(math.Round(float64(ev.At) / tickDur))
		if tick < current {
			tick = current
		}
		track.Add(tick-current, msg)
		current = tick
	}
	track.Close(0)

	if err := s.Add(track); err != nil {
		return 0, fmt.Errorf("failed to add track: %w", err)
	}
	n, err := s.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return n, nil
}
