package engine

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Output plays an engine through the system audio device
type Output struct {
	ctx    *oto.Context
	player *oto.Player
}

// OpenOutput creates an oto context at the engine's sample rate and starts
// pulling samples from it. Only one output can exist per process.
func OpenOutput(e *Engine, latency time.Duration) (*Output, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   e.SampleRate(),
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   latency,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready

	player := ctx.NewPlayer(e)
	player.Play()
	return &Output{ctx: ctx, player: player}, nil
}

// Close stops playback and suspends the audio device
func (o *Output) Close() error {
	o.player.Pause()
	if err := o.ctx.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}
