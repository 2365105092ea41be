//go:build cgo

package midiin

import (
	"context"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Ports lists the names of the MIDI inputs
func Ports() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	defer drv.Close()

	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}

// Listen opens the first input whose name contains port (any input when
// port is empty) and feeds it to l until ctx is done
func Listen(ctx context.Context, port string, l *Listener) error {
	drv, err := rtmididrv.New()
	if err != nil {
		return fmt.Errorf("rtmididrv: %w", err)
	}
	defer drv.Close()

	ins, err := drv.Ins()
	if err != nil {
		return fmt.Errorf("list inputs: %w", err)
	}
	var in drivers.In
	for _, candidate := range ins {
		if port == "" || strings.Contains(strings.ToLower(candidate.String()), strings.ToLower(port)) {
			in = candidate
			break
		}
	}
	if in == nil {
		return fmt.Errorf("%w: %q", ErrNoPort, port)
	}
	if err := in.Open(); err != nil {
		return fmt.Errorf("open %q: %w", in.String(), err)
	}
	defer in.Close()

	failed := make(chan error, 1)
	stop, err := midi.ListenTo(in, l.Handle, midi.HandleError(func(listenErr error) {
		select {
		case failed <- listenErr:
		default:
		}
	}))
	if err != nil {
		return fmt.Errorf("listen %q: %w", in.String(), err)
	}
	defer stop()
	l.logger.Info("midi: connected", "device", in.String())

	select {
	case <-ctx.Done():
		return nil
	case err := <-failed:
		return fmt.Errorf("midi input %q: %w", in.String(), err)
	}
}
