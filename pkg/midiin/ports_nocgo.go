//go:build !cgo

package midiin

import (
	"context"
	"errors"
)

var errNoDriver = errors.New("midi input needs a cgo build (rtmidi)")

func Ports() ([]string, error) {
	return nil, errNoDriver
}

func Listen(ctx context.Context, port string, l *Listener) error {
	return errNoDriver
}
