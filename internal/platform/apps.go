package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/enginecore/internal/core"
	logs "github.com/danmuck/enginecore/internal/logging"
)

var (
	ErrPumpTimeout = errors.New("platform: event pump timed out before the first screen")
	ErrNoPump      = errors.New("platform: app runs its own event loop")
)

// pumpInterval spaces PumpOnce passes while waiting for the first screen.
const pumpInterval = time.Millisecond

// LoopApp hands the main thread to the blocking event loop.
type LoopApp struct{}

func NewLoopApp() *LoopApp { return &LoopApp{} }

func (a *LoopApp) OnBootstrapComplete(c *core.Context) error {
	return sealSceneTypes(c)
}

func (a *LoopApp) UsesEventLoop() bool { return true }

func (a *LoopApp) PrimeEventPump(context.Context) error { return ErrNoPump }

// PumpedApp is driven by an external loop. PrimeEventPump runs main-thread
// work until the graphics server has created the first screen.
type PumpedApp struct {
	c       *core.Context
	timeout time.Duration
}

func NewPumpedApp(c *core.Context, timeout time.Duration) *PumpedApp {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PumpedApp{c: c, timeout: timeout}
}

func (a *PumpedApp) OnBootstrapComplete(c *core.Context) error {
	return sealSceneTypes(c)
}

func (a *PumpedApp) UsesEventLoop() bool { return false }

func (a *PumpedApp) PrimeEventPump(ctx context.Context) error {
	main, ok := a.c.Globals.MainThread()
	if !ok {
		return fmt.Errorf("%w: main thread", core.ErrSubsystemUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	passes := 0
	for {
		ran, err := main.PumpOnce(ctx)
		if err != nil {
			return err
		}
		passes++
		if gfx, ok := a.c.GraphicsServer(); ok {
			if _, ready := gfx.Screen(); ready && ran == 0 {
				logs.Infof("platform.PumpedApp.PrimeEventPump screen ready passes=%d", passes)
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: after %s", ErrPumpTimeout, a.timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sealSceneTypes freezes the scene-type registry once bootstrap is complete.
func sealSceneTypes(c *core.Context) error {
	types, ok := c.SceneTypes()
	if !ok {
		return nil
	}
	types.Seal()
	logs.Debugf("platform.App.OnBootstrapComplete scene_types=%d sealed=true", len(types.List()))
	return nil
}

var (
	_ core.App = (*LoopApp)(nil)
	_ core.App = (*PumpedApp)(nil)
)
