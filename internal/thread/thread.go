package thread

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	logs "github.com/danmuck/enginecore/internal/logging"
	"github.com/danmuck/enginecore/internal/observability"
)

// Call is one unit of work executed on a thread's loop. ctx carries the
// executing thread (see FromContext).
type Call func(ctx context.Context) error

// Module is subsystem logic bound to exactly one thread.
type Module interface {
	ModuleName() string
	// OnLoopStart runs once, on the owning thread, before the first call.
	OnLoopStart(ctx context.Context)
}

// PanicError wraps a non-terminal panic recovered from a call.
type PanicError struct {
	Thread Identifier
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("thread %s: panic: %v", e.Thread, e.Value)
}

// Thread is one long-lived execution context with a FIFO call queue.
type Thread struct {
	id  Identifier
	typ Type
	reg *Registry

	moduleMu sync.Mutex
	module   Module

	mu      sync.Mutex
	pending []Call
	wake    chan struct{}

	quit     chan struct{}
	quitOnce sync.Once

	startOnce sync.Once
	looping   atomic.Bool

	pauseMu sync.Mutex
	paused  bool
	resume  chan struct{}
}

func newThread(reg *Registry, id Identifier, typ Type) *Thread {
	return &Thread{
		id:   id,
		typ:  typ,
		reg:  reg,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
}

func (t *Thread) ID() Identifier { return t.id }
func (t *Thread) Type() Type     { return t.typ }
func (t *Thread) Name() string   { return t.id.String() }

// Module returns the attached module or nil.
func (t *Thread) Module() Module {
	t.moduleMu.Lock()
	defer t.moduleMu.Unlock()
	return t.module
}

// IsCurrent reports whether ctx is executing on t.
func (t *Thread) IsCurrent(ctx context.Context) bool {
	cur, ok := FromContext(ctx)
	return ok && cur == t
}

// PushCall enqueues call for execution on t. It never blocks on t's loop.
func (t *Thread) PushCall(call Call) error {
	if call == nil {
		return ErrNilCall
	}
	if !t.reg.IsBootstrapped() {
		logs.Warnf("thread.Thread.PushCall rejected thread=%s reason=not_bootstrapped", t.Name())
		return fmt.Errorf("%w: thread=%s", ErrNotBootstrapped, t.Name())
	}
	select {
	case <-t.quit:
		return fmt.Errorf("%w: thread=%s", ErrThreadStopped, t.Name())
	default:
	}

	t.mu.Lock()
	t.pending = append(t.pending, call)
	backlog := len(t.pending)
	t.mu.Unlock()

	if warn := t.reg.cfg.BacklogWarn; warn > 0 && backlog == warn {
		logs.Warnf("thread.Thread.PushCall backlog thread=%s pending=%d", t.Name(), backlog)
	}
	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// Backlog returns the number of calls waiting to run.
func (t *Thread) Backlog() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Quit stops the loop after the call in flight; pending calls are dropped.
func (t *Thread) Quit() {
	t.quitOnce.Do(func() {
		close(t.quit)
		logs.Debugf("thread.Thread.Quit thread=%s", t.Name())
	})
}

// Done is closed once Quit has been called.
func (t *Thread) Done() <-chan struct{} { return t.quit }

// Pause holds the loop before its next call until Resume.
func (t *Thread) Pause() {
	t.pauseMu.Lock()
	defer t.pauseMu.Unlock()
	if t.paused {
		return
	}
	t.paused = true
	t.resume = make(chan struct{})
}

func (t *Thread) Resume() {
	t.pauseMu.Lock()
	defer t.pauseMu.Unlock()
	if !t.paused {
		return
	}
	t.paused = false
	close(t.resume)
}

func (t *Thread) Paused() bool {
	t.pauseMu.Lock()
	defer t.pauseMu.Unlock()
	return t.paused
}

// RunEventLoop runs calls on the main thread until Quit or ctx is done. The
// first failing call ends the loop and its error is returned to the caller.
func (t *Thread) RunEventLoop(ctx context.Context) error {
	if t.typ != TypeMain {
		return fmt.Errorf("%w: thread=%s", ErrNotMainThread, t.Name())
	}
	if !t.reg.IsBootstrapped() {
		return fmt.Errorf("%w: thread=%s", ErrNotBootstrapped, t.Name())
	}
	if !t.looping.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer t.looping.Store(false)

	ctx = WithCurrent(ctx, t)
	t.start(ctx)
	logs.Infof("thread.Thread.RunEventLoop enter thread=%s", t.Name())
	defer logs.Infof("thread.Thread.RunEventLoop exit thread=%s", t.Name())

	for {
		if t.stopped(ctx) {
			return nil
		}
		if call, ok := t.pop(); ok {
			if err := t.invoke(ctx, call); err != nil {
				return err
			}
			continue
		}
		select {
		case <-t.wake:
		case <-t.quit:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// PumpOnce runs the calls pending at entry on the main thread without waiting
// for more. Used where the main loop is driven externally.
func (t *Thread) PumpOnce(ctx context.Context) (int, error) {
	if t.typ != TypeMain {
		return 0, fmt.Errorf("%w: thread=%s", ErrNotMainThread, t.Name())
	}
	if !t.reg.IsBootstrapped() {
		return 0, fmt.Errorf("%w: thread=%s", ErrNotBootstrapped, t.Name())
	}
	ctx = WithCurrent(ctx, t)
	t.start(ctx)

	n := t.Backlog()
	ran := 0
	for ; ran < n; ran++ {
		if t.stopped(ctx) {
			break
		}
		call, ok := t.pop()
		if !ok {
			break
		}
		if err := t.invoke(ctx, call); err != nil {
			return ran + 1, err
		}
	}
	return ran, nil
}

func (t *Thread) runWorker(ctx context.Context) error {
	select {
	case <-t.reg.gate:
	case <-t.quit:
		return nil
	case <-ctx.Done():
		return nil
	}

	ctx = WithCurrent(ctx, t)
	t.start(ctx)
	for {
		if !t.waitIfPaused(ctx) || t.stopped(ctx) {
			return nil
		}
		if call, ok := t.pop(); ok {
			if err := t.invoke(ctx, call); err != nil {
				t.reg.fail(t, err)
			}
			continue
		}
		select {
		case <-t.wake:
		case <-t.quit:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (t *Thread) start(ctx context.Context) {
	t.startOnce.Do(func() {
		if m := t.Module(); m != nil {
			m.OnLoopStart(ctx)
		}
	})
}

func (t *Thread) invoke(ctx context.Context, call Call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if IsTerminal(r) {
				panic(r)
			}
			err = &PanicError{Thread: t.id, Value: r, Stack: debug.Stack()}
		}
		observability.RecordThreadCall(t.Name(), err != nil)
	}()
	return call(ctx)
}

func (t *Thread) pop() (Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return nil, false
	}
	call := t.pending[0]
	t.pending[0] = nil
	t.pending = t.pending[1:]
	return call, true
}

func (t *Thread) stopped(ctx context.Context) bool {
	select {
	case <-t.quit:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// waitIfPaused returns false if the thread was stopped while paused.
func (t *Thread) waitIfPaused(ctx context.Context) bool {
	t.pauseMu.Lock()
	if !t.paused {
		t.pauseMu.Unlock()
		return true
	}
	resume := t.resume
	t.pauseMu.Unlock()

	select {
	case <-resume:
		return true
	case <-t.quit:
		return false
	case <-ctx.Done():
		return false
	}
}

// Terminal panics are raised by the fatal-error path after reporting and must
// pass through every recovery boundary untouched.
type terminal interface {
	Terminal() bool
}

func IsTerminal(v any) bool {
	tv, ok := v.(terminal)
	return ok && tv.Terminal()
}
