package modules

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/danmuck/enginecore/internal/core"
	logs "github.com/danmuck/enginecore/internal/logging"
	"github.com/danmuck/enginecore/internal/thread"
)

// Dynamics is the physics stand-in; it only counts simulated time.
type Dynamics struct {
	base
	steps     atomic.Uint64
	simulated atomic.Int64
}

func NewDynamics(t *thread.Thread, c *core.Context) *Dynamics {
	return &Dynamics{base: newBase("dynamics", t, c)}
}

// PushStep advances the simulation by dt on the dynamics thread.
func (d *Dynamics) PushStep(dt time.Duration) error {
	return d.push(func(ctx context.Context) error {
		if err := d.on(ctx); err != nil {
			return err
		}
		if dt < 0 {
			dt = 0
		}
		n := d.steps.Add(1)
		total := d.simulated.Add(int64(dt))
		logs.Debugf("modules.Dynamics.Step step=%d simulated=%s", n, time.Duration(total))
		return nil
	})
}

func (d *Dynamics) Steps() uint64 { return d.steps.Load() }

func (d *Dynamics) Simulated() time.Duration { return time.Duration(d.simulated.Load()) }
