// Package main is the entry point for the ratiokeys API server
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/james-see/ratiokeys/pkg/api"
	"github.com/james-see/ratiokeys/pkg/config"
	"github.com/james-see/ratiokeys/pkg/synth"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "Server port (default from config)")
	mute := flag.Bool("mute", false, "Render without opening the audio device")
	flag.Parse()

	if err := run(*configPath, *port, *mute); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int, mute bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if mute {
		cfg.Audio.Mute = true
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	s, err := synth.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Starting ratiokeys API server on port %d...\n", port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", port)
	return api.NewServer(context.Background(), s.Registry, s.Analyzer, logger).Run(port)
}
