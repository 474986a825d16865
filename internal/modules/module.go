package modules

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/danmuck/enginecore/internal/core"
	logs "github.com/danmuck/enginecore/internal/logging"
	"github.com/danmuck/enginecore/internal/thread"
)

var (
	ErrWrongThread  = errors.New("modules: call executed on the wrong thread")
	ErrNotAttached  = errors.New("modules: module has no thread")
	ErrScreenCreate = errors.New("modules: screen creation failed")
)

// base carries the thread binding shared by every module.
type base struct {
	name    string
	t       *thread.Thread
	c       *core.Context
	started atomic.Bool
}

func newBase(name string, t *thread.Thread, c *core.Context) base {
	return base{name: name, t: t, c: c}
}

func (b *base) ModuleName() string     { return b.name }
func (b *base) Thread() *thread.Thread { return b.t }

// Started reports whether the owning loop has begun running.
func (b *base) Started() bool { return b.started.Load() }

func (b *base) OnLoopStart(ctx context.Context) {
	b.started.Store(true)
	logs.Debugf("modules.%s.OnLoopStart thread=%s", b.name, thread.CurrentName(ctx))
}

func (b *base) push(call thread.Call) error {
	if b.t == nil {
		return fmt.Errorf("%w: %s", ErrNotAttached, b.name)
	}
	return b.t.PushCall(call)
}

// on checks that ctx executes on the module's own thread.
func (b *base) on(ctx context.Context) error {
	if b.t == nil || !b.t.IsCurrent(ctx) {
		return fmt.Errorf("%w: module=%s running=%s", ErrWrongThread, b.name, thread.CurrentName(ctx))
	}
	return nil
}

var _ core.ThreadModule = (*base)(nil)
