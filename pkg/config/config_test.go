package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/james-see/ratiokeys/pkg/ratio"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestParse(t *testing.T) {
	input := `
waveform: triangle
reference: 432
audio:
  volume: 0.2
  latency: 20ms
settle:
  interval: 50ms
  on_start: false
midi:
  base_note: 36
`
	cfg, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Reference != 432 {
		t.Errorf("Reference = %v, want 432", cfg.Reference)
	}
	if cfg.Audio.Volume != 0.2 || cfg.Audio.Latency != 20*time.Millisecond {
		t.Errorf("Audio = %+v", cfg.Audio)
	}
	if cfg.Settle.Interval != 50*time.Millisecond || cfg.Settle.OnStart {
		t.Errorf("Settle = %+v", cfg.Settle)
	}
	if cfg.MIDI.BaseNote != 36 {
		t.Errorf("MIDI.BaseNote = %d, want 36", cfg.MIDI.BaseNote)
	}
	// untouched fields keep their defaults
	if cfg.Audio.SampleRate != 48000 || cfg.Settle.Steps != 21 || cfg.Timing.Release != 0.3 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if w, ok := cfg.WaveformOverride(); !ok || w != ratio.Triangle {
		t.Errorf("WaveformOverride() = %v, %v", w, ok)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Errorf("Parse(\"\") = %+v, want defaults", cfg)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown field", "colour: red\n"},
		{"bad waveform", "waveform: noise\n"},
		{"bad level", "log_level: loud\n"},
		{"zero reference", "reference: 0\n"},
		{"loud volume", "audio:\n  volume: 2\n"},
		{"odd analyzer", "audio:\n  analyzer_size: 1000\n"},
		{"floor above gain", "timing:\n  floor: 2\n"},
		{"stop before release", "timing:\n  stop_delay: 0.1\n"},
		{"same anchors", "settle:\n  anchor_a: KeyQ\n  anchor_b: KeyQ\n"},
		{"same anchor after defaults", "settle:\n  anchor_a: BracketRight\n"},
		{"negative interval", "settle:\n  interval: -1s\n"},
		{"base note", "midi:\n  base_note: 128\n"},
		{"port", "server:\n  port: 0\n"},
		{"not yaml", "audio: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.input)); err == nil {
				t.Errorf("Parse(%q) should fail", tt.input)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	if err != nil || cfg != Default() {
		t.Errorf("Load(\"\") = %+v, %v", cfg, err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) should fail")
	}

	path := filepath.Join(t.TempDir(), "ratiokeys.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if l, _ := cfg.Level(); l != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", l)
	}
}

func TestWriteLoadsBack(t *testing.T) {
	want := Default()
	want.Waveform = "sine"
	want.Settle.Interval = 250 * time.Millisecond

	var buf bytes.Buffer
	if err := Write(&buf, want); err != nil {
		t.Fatal(err)
	}
	got, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse(Write()) error = %v\n%s", err, buf.String())
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}
