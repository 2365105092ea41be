// Package script plays the instrument from Lua
package script

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/james-see/ratiokeys/pkg/ratio"
)

// Controller is the part of the registry a script can drive
type Controller interface {
	DispatchPress(key string) error
	DispatchRelease(key string) error
	ResetAccumulator() error
	Panic() error
	Settle(ctx context.Context) error
	Pitch() float64
	Table() *ratio.Table
}

// Runner executes scripts against a controller. Each run gets a fresh Lua
// state with these globals:
//
//	press(key) -> hz      release(key)     sleep(ms)
//	reset()               panic()          settle()
//	pitch() -> hz         keys() -> {key}  log(msg)
type Runner struct {
	ctrl   Controller
	logger *slog.Logger
}

func New(ctrl Controller, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{ctrl: ctrl, logger: logger}
}

// RunString executes src. Cancelling ctx stops the script at its next
// instruction or sleep.
func (r *Runner) RunString(ctx context.Context, src string) error {
	L := r.newState(ctx)
	defer L.Close()
	if err := L.DoString(src); err != nil {
		return r.wrap(ctx, err)
	}
	return nil
}

// RunFile executes the script at path
func (r *Runner) RunFile(ctx context.Context, path string) error {
	L := r.newState(ctx)
	defer L.Close()
	if err := L.DoFile(path); err != nil {
		return r.wrap(ctx, fmt.Errorf("%s: %w", path, err))
	}
	return nil
}

func (r *Runner) wrap(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("script failed: %w", err)
}

func (r *Runner) newState(ctx context.Context) *lua.LState {
	L := lua.NewState()
	L.SetContext(ctx)

	globals := map[string]lua.LGFunction{
		"press":   r.press,
		"release": r.release,
		"sleep":   r.sleep,
		"reset":   r.reset,
		"panic":   r.panicAll,
		"settle":  r.settle,
		"pitch":   r.pitch,
		"keys":    r.keys,
		"log":     r.log,
	}
	for name, fn := range globals {
		L.SetGlobal(name, L.NewFunction(fn))
	}
	return L
}

func (r *Runner) check(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
}

func (r *Runner) press(L *lua.LState) int {
	r.check(L, r.ctrl.DispatchPress(L.CheckString(1)))
	L.Push(lua.LNumber(r.ctrl.Pitch()))
	return 1
}

func (r *Runner) release(L *lua.LState) int {
	r.check(L, r.ctrl.DispatchRelease(L.CheckString(1)))
	return 0
}

func (r *Runner) sleep(L *lua.LState) int {
	ms := L.CheckNumber(1)
	if ms <= 0 {
		return 0
	}
	timer := time.NewTimer(time.Duration(float64(ms) * float64(time.Millisecond)))
	defer timer.Stop()
	select {
	case <-L.Context().Done():
		L.RaiseError("%s", L.Context().Err().Error())
	case <-timer.C:
	}
	return 0
}

func (r *Runner) reset(L *lua.LState) int {
	r.check(L, r.ctrl.ResetAccumulator())
	return 0
}

func (r *Runner) panicAll(L *lua.LState) int {
	r.check(L, r.ctrl.Panic())
	return 0
}

func (r *Runner) settle(L *lua.LState) int {
	r.check(L, r.ctrl.Settle(L.Context()))
	return 0
}

func (r *Runner) pitch(L *lua.LState) int {
	L.Push(lua.LNumber(r.ctrl.Pitch()))
	return 1
}

func (r *Runner) keys(L *lua.LState) int {
	t := L.NewTable()
	for _, e := range r.ctrl.Table().Entries() {
		t.Append(lua.LString(e.Key))
	}
	L.Push(t)
	return 1
}

func (r *Runner) log(L *lua.LState) int {
	r.logger.Info("script", "msg", L.CheckString(1))
	return 0
}
