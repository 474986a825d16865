package core

import (
	"sync"
	"sync/atomic"

	"github.com/danmuck/enginecore/internal/clock"
	"github.com/danmuck/enginecore/internal/thread"
)

// Globals is the process-wide state record. Exactly one exists per run.
type Globals struct {
	args []string

	bootstrapped atomic.Bool

	pausableMu sync.Mutex
	pausable   []*thread.Thread

	mainThread atomic.Pointer[thread.Thread]
	clock      *clock.Tracker

	userRanCommands atomic.Bool
	blessingHash    atomic.Pointer[string]
	sessionID       atomic.Pointer[string]
	returnValue     atomic.Int32
}

func NewGlobals(args []string, ticks clock.TickSource) *Globals {
	copied := make([]string, len(args))
	copy(copied, args)
	return &Globals{
		args:  copied,
		clock: clock.NewTracker(ticks),
	}
}

func (g *Globals) Args() []string {
	out := make([]string, len(g.args))
	copy(out, g.args)
	return out
}

func (g *Globals) IsBootstrapped() bool { return g.bootstrapped.Load() }

func (g *Globals) setBootstrapped() { g.bootstrapped.Store(true) }

func (g *Globals) AddPausableThread(t *thread.Thread) {
	g.pausableMu.Lock()
	defer g.pausableMu.Unlock()
	g.pausable = append(g.pausable, t)
}

func (g *Globals) PausableThreads() []*thread.Thread {
	g.pausableMu.Lock()
	defer g.pausableMu.Unlock()
	out := make([]*thread.Thread, len(g.pausable))
	copy(out, g.pausable)
	return out
}

// PauseThreads pauses every pausable worker, e.g. when the app is backgrounded.
func (g *Globals) PauseThreads() {
	for _, t := range g.PausableThreads() {
		t.Pause()
	}
}

func (g *Globals) ResumeThreads() {
	for _, t := range g.PausableThreads() {
		t.Resume()
	}
}

func (g *Globals) SetMainThread(t *thread.Thread) { g.mainThread.Store(t) }

func (g *Globals) MainThread() (*thread.Thread, bool) {
	t := g.mainThread.Load()
	return t, t != nil
}

// RealTime is the monotonic process clock in milliseconds.
func (g *Globals) RealTime() int64 { return g.clock.RealTime() }

func (g *Globals) SetUserRanCommands()   { g.userRanCommands.Store(true) }
func (g *Globals) UserRanCommands() bool { return g.userRanCommands.Load() }

// SetCalculatedBlessingHash records the runtime content hash. The first
// non-empty value wins; it reports whether this call stored it.
func (g *Globals) SetCalculatedBlessingHash(hash string) bool {
	if hash == "" {
		return false
	}
	return g.blessingHash.CompareAndSwap(nil, &hash)
}

// CalculatedBlessingHash is empty until the hash has been computed.
func (g *Globals) CalculatedBlessingHash() string {
	if p := g.blessingHash.Load(); p != nil {
		return *p
	}
	return ""
}

func (g *Globals) setSessionIdentifier(id string) bool {
	return g.sessionID.CompareAndSwap(nil, &id)
}

func (g *Globals) SessionIdentifier() string {
	if p := g.sessionID.Load(); p != nil {
		return *p
	}
	return ""
}

func (g *Globals) ReturnValue() int        { return int(g.returnValue.Load()) }
func (g *Globals) SetReturnValue(code int) { g.returnValue.Store(int32(code)) }
