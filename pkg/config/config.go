// Package config loads the ratiokeys YAML configuration
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/james-see/ratiokeys/pkg/ratio"
	"github.com/james-see/ratiokeys/pkg/registry"
)

// Config is the full instrument configuration. Every field has a default;
// a file only needs to name what it changes.
type Config struct {
	// Table is a YAML key table; empty uses the built-in layout
	Table string `yaml:"table,omitempty"`
	// Waveform, when set, replaces the waveform of every key
	Waveform  string  `yaml:"waveform,omitempty"`
	Reference float64 `yaml:"reference"`
	LogLevel  string  `yaml:"log_level"`

	Audio  Audio  `yaml:"audio"`
	Timing Timing `yaml:"timing"`
	Settle Settle `yaml:"settle"`
	MIDI   MIDI   `yaml:"midi"`
	Server Server `yaml:"server"`
}

type Audio struct {
	SampleRate     int           `yaml:"sample_rate"`
	Volume         float64       `yaml:"volume"`
	Latency        time.Duration `yaml:"latency"`
	MaxOscillators int           `yaml:"max_oscillators"`
	AnalyzerSize   int           `yaml:"analyzer_size"`
	// Mute renders on a timer instead of opening the audio device
	Mute bool `yaml:"mute"`
}

// Timing is the envelope shape, in seconds
type Timing struct {
	Gain      float64 `yaml:"gain"`
	Release   float64 `yaml:"release"`
	Floor     float64 `yaml:"floor"`
	StopDelay float64 `yaml:"stop_delay"`
}

// Settle configures the priming sequence. Empty anchors use Digit2 and
// BracketRight, and a table without them has settle disabled.
type Settle struct {
	AnchorA    string        `yaml:"anchor_a,omitempty"`
	AnchorB    string        `yaml:"anchor_b,omitempty"`
	Steps      int           `yaml:"steps"`
	Interval   time.Duration `yaml:"interval"`
	StartPitch float64       `yaml:"start_pitch"`
	// OnStart runs the sequence when an interactive session opens
	OnStart bool `yaml:"on_start"`
}

type MIDI struct {
	// Port is a substring of the input port name; empty picks the first port
	Port     string `yaml:"port,omitempty"`
	BaseNote int    `yaml:"base_note"`
}

type Server struct {
	Port int `yaml:"port"`
}

// Default returns the canonical configuration
func Default() Config {
	return Config{
		Reference: 440.0,
		LogLevel:  "info",
		Audio: Audio{
			SampleRate:     48000,
			Volume:         0.1,
			Latency:        50 * time.Millisecond,
			MaxOscillators: 128,
			AnalyzerSize:   4096,
		},
		Timing: Timing{
			Gain:      1.0,
			Release:   0.3,
			Floor:     0.01,
			StopDelay: 1.0,
		},
		Settle: Settle{
			Steps:      21,
			Interval:   100 * time.Millisecond,
			StartPitch: 110.0,
			OnStart:    true,
		},
		MIDI: MIDI{
			BaseNote: 48,
		},
		Server: Server{
			Port: 8080,
		},
	}
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// fields are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads a config file. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Write encodes cfg as YAML
func Write(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// Validate checks ranges that would otherwise fail deep inside the engine
func (c Config) Validate() error {
	if c.Reference <= 0 {
		return fmt.Errorf("reference must be positive, got %v", c.Reference)
	}
	if c.Waveform != "" {
		if _, err := ratio.ParseWaveform(c.Waveform); err != nil {
			return fmt.Errorf("waveform: %w", err)
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}

	a := c.Audio
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("audio.sample_rate %d out of range 8000-192000", a.SampleRate)
	}
	if a.Volume <= 0 || a.Volume > 1 {
		return fmt.Errorf("audio.volume must be in (0, 1], got %v", a.Volume)
	}
	if a.Latency < 0 {
		return fmt.Errorf("audio.latency must not be negative, got %v", a.Latency)
	}
	if a.MaxOscillators <= 0 {
		return fmt.Errorf("audio.max_oscillators must be positive, got %d", a.MaxOscillators)
	}
	if a.AnalyzerSize <= 0 || a.AnalyzerSize&(a.AnalyzerSize-1) != 0 {
		return fmt.Errorf("audio.analyzer_size must be a power of two, got %d", a.AnalyzerSize)
	}

	t := c.Timing
	if t.Gain <= 0 || t.Floor <= 0 {
		return fmt.Errorf("timing.gain and timing.floor must be positive")
	}
	if t.Floor >= t.Gain {
		return fmt.Errorf("timing.floor %v must be below timing.gain %v", t.Floor, t.Gain)
	}
	if t.Release < 0 || t.StopDelay < t.Release {
		return fmt.Errorf("timing.stop_delay %v must not end before the %vs release", t.StopDelay, t.Release)
	}

	s := c.Settle
	anchorA, anchorB := s.Anchors()
	if anchorA == anchorB {
		return fmt.Errorf("settle anchors must differ, both are %q", anchorA)
	}
	if s.Steps <= 0 {
		return fmt.Errorf("settle.steps must be positive, got %d", s.Steps)
	}
	if s.Interval < 0 {
		return fmt.Errorf("settle.interval must not be negative, got %v", s.Interval)
	}
	if s.StartPitch <= 0 {
		return fmt.Errorf("settle.start_pitch must be positive, got %v", s.StartPitch)
	}

	if c.MIDI.BaseNote < 0 || c.MIDI.BaseNote > 127 {
		return fmt.Errorf("midi.base_note %d out of range 0-127", c.MIDI.BaseNote)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// Anchors returns the settle anchors with defaults filled in
func (s Settle) Anchors() (string, string) {
	def := registry.DefaultSettle()
	a, b := s.AnchorA, s.AnchorB
	if a == "" {
		a = def.AnchorA
	}
	if b == "" {
		b = def.AnchorB
	}
	return a, b
}

// Level parses LogLevel
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// WaveformOverride returns the configured override, if any
func (c Config) WaveformOverride() (ratio.Waveform, bool) {
	if c.Waveform == "" {
		return 0, false
	}
	w, err := ratio.ParseWaveform(c.Waveform)
	if err != nil {
		return 0, false
	}
	return w, true
}
