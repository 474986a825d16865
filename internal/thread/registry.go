package thread

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	logs "github.com/danmuck/enginecore/internal/logging"
)

var (
	ErrInvalidIdentifier = errors.New("thread: invalid identifier")
	ErrThreadExists      = errors.New("thread: already exists")
	ErrMainThreadExists  = errors.New("thread: main thread already wrapped")
	ErrNilThread         = errors.New("thread: nil thread")
	ErrNilCall           = errors.New("thread: nil call")
	ErrModuleAttached    = errors.New("thread: module already attached")
	ErrNotBootstrapped   = errors.New("thread: not bootstrapped")
	ErrThreadStopped     = errors.New("thread: stopped")
	ErrNotMainThread     = errors.New("thread: not the main thread")
	ErrLoopRunning       = errors.New("thread: event loop already running")
)

// Config tunes registry behavior.
type Config struct {
	// BacklogWarn logs once a queue reaches this many pending calls; 0 disables.
	BacklogWarn int
	// OnFailure receives worker call failures. Main thread failures are returned
	// from RunEventLoop/PumpOnce instead.
	OnFailure func(t *Thread, err error)
}

func DefaultConfig() Config {
	return Config{BacklogWarn: 1024}
}

// Registry owns the fixed set of engine threads.
type Registry struct {
	cfg Config

	mu      sync.RWMutex
	threads map[Identifier]*Thread
	order   []*Thread
	main    *Thread

	gate         chan struct{}
	gateOnce     sync.Once
	bootstrapped atomic.Bool

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRegistry(cfg Config) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	return &Registry{
		cfg:     cfg,
		threads: make(map[Identifier]*Thread),
		gate:    make(chan struct{}),
		group:   group,
		ctx:     gctx,
		cancel:  cancel,
	}
}

// CreateThread registers a thread. TypeMain wraps the calling goroutine (the
// process entry keeps it locked to the initial OS thread); TypeStandard spawns
// a worker locked to its own OS thread whose loop waits for MarkBootstrapped.
func (r *Registry) CreateThread(id Identifier, typ Type) (*Thread, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIdentifier, int(id))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.threads[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrThreadExists, id)
	}
	if typ == TypeMain && r.main != nil {
		return nil, fmt.Errorf("%w: existing=%s", ErrMainThreadExists, r.main.Name())
	}

	t := newThread(r, id, typ)
	r.threads[id] = t
	r.order = append(r.order, t)
	if typ == TypeMain {
		r.main = t
	} else {
		r.group.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			return t.runWorker(r.ctx)
		})
	}
	logs.Debugf("thread.Registry.CreateThread thread=%s type=%s", id, typ)
	return t, nil
}

// AttachModule binds the module produced by build to t.
func AttachModule[M Module](t *Thread, build func(*Thread) (M, error)) (M, error) {
	var zero M
	if t == nil {
		return zero, ErrNilThread
	}
	t.moduleMu.Lock()
	defer t.moduleMu.Unlock()
	if t.module != nil {
		return zero, fmt.Errorf("%w: thread=%s existing=%s", ErrModuleAttached, t.Name(), t.module.ModuleName())
	}
	m, err := build(t)
	if err != nil {
		return zero, fmt.Errorf("thread: attach to %s: %w", t.Name(), err)
	}
	t.module = m
	logs.Debugf("thread.AttachModule thread=%s module=%s", t.Name(), m.ModuleName())
	return m, nil
}

// Thread returns the registered thread for id.
func (r *Registry) Thread(id Identifier) (*Thread, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.threads[id]
	return t, ok
}

// MainThread returns the wrapped main thread, if created.
func (r *Registry) MainThread() (*Thread, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.main, r.main != nil
}

// Threads returns threads in creation order.
func (r *Registry) Threads() []*Thread {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Thread, len(r.order))
	copy(out, r.order)
	return out
}

// MarkBootstrapped opens the gate: pushes are accepted and worker loops start.
func (r *Registry) MarkBootstrapped() {
	r.gateOnce.Do(func() {
		r.bootstrapped.Store(true)
		close(r.gate)
		logs.Debugf("thread.Registry.MarkBootstrapped threads=%d", len(r.Threads()))
	})
}

func (r *Registry) IsBootstrapped() bool {
	return r.bootstrapped.Load()
}

// Shutdown quits every thread and waits for the workers to exit.
func (r *Registry) Shutdown(ctx context.Context) error {
	for _, t := range r.Threads() {
		t.Quit()
	}
	done := make(chan error, 1)
	go func() {
		done <- r.group.Wait()
	}()
	select {
	case err := <-done:
		r.cancel()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) fail(t *Thread, err error) {
	if r.cfg.OnFailure != nil {
		r.cfg.OnFailure(t, err)
		return
	}
	logs.Errorf("thread.Registry.fail thread=%s err=%v", t.Name(), err)
}
