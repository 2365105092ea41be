// Package ratio provides the just-intonation ratio table that maps input keys
// to frequency ratios and waveforms
package ratio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidRatio    = errors.New("invalid ratio")
	ErrInvalidWaveform = errors.New("invalid waveform")
	ErrDuplicateKey    = errors.New("duplicate key")
)

// Ratio is a frequency relationship between two positive integers
type Ratio struct {
	Num int
	Den int
}

// New creates a Ratio, rejecting zero or negative terms
func New(num, den int) (Ratio, error) {
	r := Ratio{Num: num, Den: den}
	if err := r.Validate(); err != nil {
		return Ratio{}, err
	}
	return r, nil
}

// MustNew is like New but panics on an invalid ratio
func MustNew(num, den int) Ratio {
	r, err := New(num, den)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate reports whether both terms are positive
func (r Ratio) Validate() error {
	if r.Num <= 0 || r.Den <= 0 {
		return fmt.Errorf("%w: %d/%d", ErrInvalidRatio, r.Num, r.Den)
	}
	return nil
}

// Float returns Num/Den
func (r Ratio) Float() float64 {
	return float64(r.Num) / float64(r.Den)
}

// Apply multiplies hz by the ratio
func (r Ratio) Apply(hz float64) float64 {
	return hz * float64(r.Num) / float64(r.Den)
}

// Distance is max(r, 1/r), always >= 1
func (r Ratio) Distance() float64 {
	f := r.Float()
	if f < 1 {
		return 1 / f
	}
	return f
}

func (r Ratio) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// ParseRatio parses "n/d" or a bare integer "n"
func ParseRatio(s string) (Ratio, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return Ratio{}, fmt.Errorf("%w: %q", ErrInvalidRatio, s)
	}
	d := 1
	if found {
		d, err = strconv.Atoi(strings.TrimSpace(den))
		if err != nil {
			return Ratio{}, fmt.Errorf("%w: %q", ErrInvalidRatio, s)
		}
	}
	return New(n, d)
}

// MarshalYAML encodes the ratio as "n/d"
func (r Ratio) MarshalYAML() (any, error) {
	return r.String(), nil
}

// UnmarshalYAML accepts either "n/d" or a two element sequence [n, d]
func (r *Ratio) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseRatio(node.Value)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	case yaml.SequenceNode:
		var pair []int
		if err := node.Decode(&pair); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRatio, err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("%w: want [num, den], got %d values", ErrInvalidRatio, len(pair))
		}
		parsed, err := New(pair[0], pair[1])
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	default:
		return fmt.Errorf("%w: line %d", ErrInvalidRatio, node.Line)
	}
}

// Waveform is the oscillator shape of a voice
type Waveform int

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
)

var waveformNames = [...]string{
	Sine:     "sine",
	Square:   "square",
	Sawtooth: "sawtooth",
	Triangle: "triangle",
}

// Waveforms lists every supported waveform
func Waveforms() []Waveform {
	return []Waveform{Sine, Square, Sawtooth, Triangle}
}

// ParseWaveform converts a waveform name into a Waveform
func ParseWaveform(s string) (Waveform, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range waveformNames {
		if n == name {
			return Waveform(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWaveform, s)
}

// Valid reports whether w is one of the known waveforms
func (w Waveform) Valid() bool {
	return w >= Sine && w <= Triangle
}

func (w Waveform) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Waveform(%d)", int(w))
	}
	return waveformNames[w]
}

func (w Waveform) MarshalYAML() (any, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWaveform, int(w))
	}
	return w.String(), nil
}

func (w *Waveform) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseWaveform(node.Value)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// MarshalText lets waveforms render as names in JSON
func (w Waveform) MarshalText() ([]byte, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWaveform, int(w))
	}
	return []byte(w.String()), nil
}

func (w *Waveform) UnmarshalText(text []byte) error {
	parsed, err := ParseWaveform(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// Entry binds an input key to its label, ratio and waveform
type Entry struct {
	Key      string   `yaml:"key" json:"key"`
	Label    string   `yaml:"label,omitempty" json:"label"`
	Ratio    Ratio    `yaml:"ratio" json:"-"`
	Waveform Waveform `yaml:"waveform" json:"waveform"`
}
