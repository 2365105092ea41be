// Package main is the entry point for the ratiokeys CLI
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/james-see/ratiokeys/pkg/api"
	"github.com/james-see/ratiokeys/pkg/config"
	"github.com/james-see/ratiokeys/pkg/midiin"
	"github.com/james-see/ratiokeys/pkg/ratio"
	"github.com/james-see/ratiokeys/pkg/script"
	"github.com/james-see/ratiokeys/pkg/synth"
	"github.com/james-see/ratiokeys/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath string
	tablePath  string
	debug      bool
	mute       bool

	logFile    string
	recordPath string
	serverPort int
	midiPort   string
	listPorts  bool
	sortBy     string
	asYAML     bool
	noSettle   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ratiokeys",
	Short: "Play just intonation by multiplying ratios from the keyboard",
	Long: `ratiokeys is a microtonal synthesizer. Every key carries a frequency
ratio; pressing it multiplies the current pitch by that ratio and sounds the
result. Pitch wanders as you play: the same keys in a different order land
somewhere else.

Examples:
  ratiokeys play
  ratiokeys play --record take1.mid
  ratiokeys table --sort distance
  ratiokeys serve --port 8080
  ratiokeys midi --port "Keystation"
  ratiokeys replay take1.mid
  ratiokeys run fifths.lua`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play from the computer keyboard",
	Args:  cobra.NoArgs,
	RunE:  runPlay,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var midiCmd = &cobra.Command{
	Use:   "midi",
	Short: "Play from a MIDI keyboard",
	Args:  cobra.NoArgs,
	RunE:  runMIDI,
}

var replayCmd = &cobra.Command{
	Use:   "replay <input.mid>",
	Short: "Play a recorded MIDI file through the keys",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

var runCmd = &cobra.Command{
	Use:   "run <script.lua>",
	Short: "Play a Lua script",
	Args:  cobra.ExactArgs(1),
	RunE:  runScript,
}

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Print the key table",
	Args:  cobra.NoArgs,
	RunE:  runTable,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&tablePath, "table", "t", "", "YAML key table (overrides the config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVar(&mute, "mute", false, "Render without opening the audio device")

	// play command
	playCmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file while the UI is open")
	playCmd.Flags().StringVarP(&recordPath, "record", "r", "", "Record the performance to a .mid file")
	playCmd.Flags().BoolVar(&noSettle, "no-settle", false, "Skip the settle sequence on start")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port (default from config)")

	// midi command
	midiCmd.Flags().StringVarP(&midiPort, "port", "p", "", "Input port name, or part of it (default from config)")
	midiCmd.Flags().BoolVarP(&listPorts, "list", "l", false, "List MIDI inputs and exit")
	midiCmd.Flags().StringVarP(&recordPath, "record", "r", "", "Record the performance to a .mid file")

	// table command
	tableCmd.Flags().StringVarP(&sortBy, "sort", "s", "", "Order by \"distance\" from unison")
	tableCmd.Flags().BoolVar(&asYAML, "yaml", false, "Print as a loadable YAML table")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(midiCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(configCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if tablePath != "" {
		cfg.Table = tablePath
	}
	if mute {
		cfg.Audio.Mute = true
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// startSynth builds and starts the instrument described by the flags
func startSynth(w io.Writer) (*synth.Synth, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg, w)
	s, err := synth.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Start(); err != nil {
		return nil, nil, err
	}
	return s, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func writeRecording(rec *midiin.Recorder, logger *slog.Logger) error {
	f, err := os.Create(recordPath)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	defer f.Close()
	if _, err := rec.WriteTo(f); err != nil {
		return err
	}
	logger.Info("recording saved", "path", recordPath, "events", len(rec.Performance().Events))
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	// the UI owns the terminal, so logs go to a file or nowhere
	var w io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		w = f
	}

	s, logger, err := startSynth(w)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := tui.Options{
		Analyzer:      s.Analyzer,
		SettleOnStart: s.Config.Settle.OnStart && !noSettle,
	}
	var rec *midiin.Recorder
	if recordPath != "" {
		rec = midiin.NewRecorder(s.Registry, midiin.NewMapper(s.Table, s.Config.MIDI.BaseNote))
		opts.Input = rec
	}

	if err := tui.Run(s.Registry, opts); err != nil {
		return err
	}
	if rec != nil {
		return writeRecording(rec, logger)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	s, logger, err := startSynth(os.Stderr)
	if err != nil {
		return err
	}
	defer s.Close()

	port := serverPort
	if port == 0 {
		port = s.Config.Server.Port
	}

	ctx, stop := signalContext()
	defer stop()

	srv := api.NewServer(ctx, s.Registry, s.Analyzer, logger)
	fmt.Printf("Starting ratiokeys API server on port %d...\n", port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", port)

	errc := make(chan error, 1)
	go func() { errc <- srv.Run(port) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return nil
	}
}

func runMIDI(cmd *cobra.Command, args []string) error {
	if listPorts {
		names, err := midiin.Ports()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	s, logger, err := startSynth(os.Stderr)
	if err != nil {
		return err
	}
	defer s.Close()

	port := midiPort
	if port == "" {
		port = s.Config.MIDI.Port
	}

	mapper := midiin.NewMapper(s.Table, s.Config.MIDI.BaseNote)
	var d midiin.Dispatcher = s.Registry
	var rec *midiin.Recorder
	if recordPath != "" {
		rec = midiin.NewRecorder(s.Registry, mapper)
		d = rec
	}

	ctx, stop := signalContext()
	defer stop()

	if s.Config.Settle.OnStart {
		if err := s.Registry.Settle(ctx); err != nil {
			logger.Warn("settle skipped", "error", err)
		}
	}

	logger.Info("listening", "port", port, "base_note", s.Config.MIDI.BaseNote)
	if err := midiin.Listen(ctx, port, midiin.NewListener(mapper, d, logger)); err != nil {
		return err
	}
	if rec != nil {
		return writeRecording(rec, logger)
	}
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	s, logger, err := startSynth(os.Stderr)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := midiin.LoadPerformanceFile(args[0], midiin.NewMapper(s.Table, s.Config.MIDI.BaseNote))
	if err != nil {
		return err
	}
	logger.Info("replaying", "file", args[0], "events", len(p.Events), "duration", p.Duration(), "tempo", p.Tempo)

	ctx, stop := signalContext()
	defer stop()
	if err := midiin.Replay(ctx, p, s.Registry); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Printf("Final pitch: %.2f Hz\n", s.Registry.Pitch())
	return nil
}

func runScript(cmd *cobra.Command, args []string) error {
	s, logger, err := startSynth(os.Stderr)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signalContext()
	defer stop()
	if err := script.New(s.Registry, logger).RunFile(ctx, args[0]); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Printf("Final pitch: %.2f Hz\n", s.Registry.Pitch())
	return nil
}

func runTable(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	table, err := synth.LoadTable(cfg)
	if err != nil {
		return err
	}
	if asYAML {
		return ratio.WriteTable(cmd.OutOrStdout(), table)
	}

	var entries []ratio.Entry
	switch sortBy {
	case "":
		entries = table.Entries()
	case "distance":
		entries = table.SortedByDistance()
	default:
		return fmt.Errorf("unknown sort %q", sortBy)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-14s %-5s %-9s %-8s %10s\n", "KEY", "LABEL", "WAVE", "RATIO", "HZ@REF")
	for _, e := range entries {
		fmt.Fprintf(out, "%-14s %-5s %-9s %-8s %10.2f\n", e.Key, e.Label, e.Waveform, e.Ratio, e.Ratio.Apply(cfg.Reference))
	}
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return config.Write(cmd.OutOrStdout(), cfg)
}
