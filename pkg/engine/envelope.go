package engine

import (
	"math"
	"sort"
)

type automationKind int

const (
	setValue automationKind = iota
	exponentialRamp
)

type automation struct {
	kind  automationKind
	at    float64
	value float64
}

// envelope is a gain stage with scheduled automation, evaluated against the
// engine clock while rendering. All fields are guarded by e.mu.
type envelope struct {
	e      *Engine
	value  float64 // gain before the first scheduled event
	events []automation
	oscs   []*oscillator
}

func (env *envelope) SetGainAtTime(level, at float64) {
	env.e.mu.Lock()
	defer env.e.mu.Unlock()
	env.schedule(automation{kind: setValue, at: at, value: level})
}

func (env *envelope) ExponentialRampToTime(level, at float64) {
	env.e.mu.Lock()
	defer env.e.mu.Unlock()
	env.schedule(automation{kind: exponentialRamp, at: at, value: level})
}

// CancelScheduledChanges drops every event at or after from
func (env *envelope) CancelScheduledChanges(from float64) {
	env.e.mu.Lock()
	defer env.e.mu.Unlock()
	i := sort.Search(len(env.events), func(i int) bool { return env.events[i].at >= from })
	env.events = env.events[:i]
}

func (env *envelope) GainAt(t float64) float64 {
	env.e.mu.Lock()
	defer env.e.mu.Unlock()
	return env.gainAt(t)
}

// schedule inserts ev after any event with the same time
func (env *envelope) schedule(ev automation) {
	i := sort.Search(len(env.events), func(i int) bool { return env.events[i].at > ev.at })
	env.events = append(env.events, automation{})
	copy(env.events[i+1:], env.events[i:])
	env.events[i] = ev
}

// gainAt holds the value of the last event at or before t, or follows an
// exponential ramp toward the next event. A ramp cannot start from or reach
// a non-positive level; in that case the previous value holds until the
// ramp's end time.
func (env *envelope) gainAt(t float64) float64 {
	v := env.value
	t0 := math.Inf(-1)
	for _, ev := range env.events {
		if ev.at <= t {
			v, t0 = ev.value, ev.at
			continue
		}
		if ev.kind == exponentialRamp && !math.IsInf(t0, -1) && v > 0 && ev.value > 0 && ev.at > t0 {
			return v * math.Pow(ev.value/v, (t-t0)/(ev.at-t0))
		}
		break
	}
	return v
}

func (env *envelope) render(start int64, buf []float32) {
	for i := range buf {
		frame := start + int64(i)
		sum := 0.0
		for _, o := range env.oscs {
			if frame >= o.start && frame < o.stop {
				sum += o.next()
			}
		}
		if sum == 0 {
			buf[i] = 0
			continue
		}
		buf[i] = float32(sum * env.gainAt(env.e.seconds(frame)))
	}
}

// prune disconnects oscillators whose stop has passed and folds automation
// that is entirely in the past into a single anchor event
func (env *envelope) prune(frame int64, now float64) {
	live := env.oscs[:0]
	for _, o := range env.oscs {
		if o.stop > frame {
			live = append(live, o)
		}
	}
	for i := len(live); i < len(env.oscs); i++ {
		env.oscs[i] = nil
	}
	env.oscs = live

	last := -1
	for i, ev := range env.events {
		if ev.at > now {
			break
		}
		last = i
	}
	if last > 0 {
		env.events = append(env.events[:0], env.events[last:]...)
	}
}
