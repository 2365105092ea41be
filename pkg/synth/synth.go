// Package synth assembles the instrument from a configuration: key table,
// audio engine, output and voice registry
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/james-see/ratiokeys/pkg/config"
	"github.com/james-see/ratiokeys/pkg/engine"
	"github.com/james-see/ratiokeys/pkg/ratio"
	"github.com/james-see/ratiokeys/pkg/registry"
	"github.com/james-see/ratiokeys/pkg/voice"
)

// Synth is a ready to play instrument
type Synth struct {
	Config   config.Config
	Table    *ratio.Table
	Engine   *engine.Engine
	Analyzer *engine.Analyzer
	Registry *registry.Registry

	logger *slog.Logger
	output *engine.Output
	stop   context.CancelFunc
	done   chan struct{}
}

// LoadTable returns the configured key table with any waveform override
// applied
func LoadTable(cfg config.Config) (*ratio.Table, error) {
	table := ratio.DefaultTable()
	if cfg.Table != "" {
		t, err := ratio.LoadTableFile(cfg.Table)
		if err != nil {
			return nil, err
		}
		table = t
	}
	if w, ok := cfg.WaveformOverride(); ok {
		return table.WithWaveform(w)
	}
	return table, nil
}

// New builds the instrument without touching the audio device
func New(cfg config.Config, logger *slog.Logger) (*Synth, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	table, err := LoadTable(cfg)
	if err != nil {
		return nil, err
	}

	analyzer, err := engine.NewAnalyzer(cfg.Audio.AnalyzerSize, cfg.Audio.SampleRate)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engine.Options{
		SampleRate:     cfg.Audio.SampleRate,
		Volume:         cfg.Audio.Volume,
		MaxOscillators: cfg.Audio.MaxOscillators,
		Analyzer:       analyzer,
	})

	reg, err := registry.New(table, eng, RegistryOptions(cfg, logger))
	if err != nil {
		return nil, err
	}

	return &Synth{
		Config:   cfg,
		Table:    table,
		Engine:   eng,
		Analyzer: analyzer,
		Registry: reg,
		logger:   logger,
	}, nil
}

// RegistryOptions maps the configuration onto registry options
func RegistryOptions(cfg config.Config, logger *slog.Logger) registry.Options {
	return registry.Options{
		Timing: voice.Timing{
			Gain:      cfg.Timing.Gain,
			Release:   cfg.Timing.Release,
			Floor:     cfg.Timing.Floor,
			StopDelay: cfg.Timing.StopDelay,
		},
		Reference: cfg.Reference,
		Settle: registry.SettleOptions{
			AnchorA:    cfg.Settle.AnchorA,
			AnchorB:    cfg.Settle.AnchorB,
			Steps:      cfg.Settle.Steps,
			Interval:   cfg.Settle.Interval,
			StartPitch: cfg.Settle.StartPitch,
		},
		Logger: logger,
	}
}

// Start begins rendering: through the audio device, or on a timer when the
// configuration mutes output
func (s *Synth) Start() error {
	if s.done != nil {
		return fmt.Errorf("synth already started")
	}
	if s.Config.Audio.Mute {
		ctx, cancel := context.WithCancel(context.Background())
		s.stop = cancel
		s.done = make(chan struct{})
		go func() {
			defer close(s.done)
			s.Engine.Run(ctx, 10*time.Millisecond)
		}()
		s.logger.Info("rendering without audio output", "sample_rate", s.Config.Audio.SampleRate)
		return nil
	}

	out, err := engine.OpenOutput(s.Engine, s.Config.Audio.Latency)
	if err != nil {
		return err
	}
	s.output = out
	s.done = make(chan struct{})
	close(s.done)
	s.logger.Info("audio output open", "sample_rate", s.Config.Audio.SampleRate, "latency", s.Config.Audio.Latency)
	return nil
}

// Close silences every voice and stops rendering
func (s *Synth) Close() error {
	if err := s.Registry.Panic(); err != nil {
		s.logger.Warn("panic on close", "error", err)
	}
	if s.stop != nil {
		s.stop()
	}
	if s.done != nil {
		<-s.done
	}
	if s.output != nil {
		return s.output.Close()
	}
	return nil
}
