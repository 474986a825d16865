package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/enginecore/internal/blessing"
	"github.com/danmuck/enginecore/internal/config"
	"github.com/danmuck/enginecore/internal/core"
	"github.com/danmuck/enginecore/internal/fatal"
	"github.com/danmuck/enginecore/internal/foundation"
	logs "github.com/danmuck/enginecore/internal/logging"
	"github.com/danmuck/enginecore/internal/modules"
	"github.com/danmuck/enginecore/internal/observability"
	"github.com/danmuck/enginecore/internal/platform"
	"github.com/danmuck/enginecore/internal/thread"
)

var (
	ErrAlreadyRan = errors.New("bootstrap: orchestrator already ran")
	ErrNotRunning = errors.New("bootstrap: engine not provisioned")
)

const crashTestMessage = "Fatal-Error-Test"

// Options configures one orchestrator. Zero values pick process defaults.
type Options struct {
	Env config.Env
	// NewPlatform is the platform factory; defaults to platform.Create.
	NewPlatform func(env config.Env) (core.Platform, error)
	// Classify builds the blessing classifier over live evidence. A nil
	// evidence means process state does not exist yet.
	Classify func(ev blessing.Evidence) fatal.Classifier
	Handler  fatal.Handler
	// Exit is the clean-exit path; defaults to os.Exit.
	Exit   func(code int)
	Getenv func(key string) string
	// ScreenFactory creates the first screen; defaults to a headless screen.
	ScreenFactory modules.ScreenFactory
	// NetworkListen is the local UDP address of the network-write thread.
	NetworkListen   string
	Context         context.Context
	ShutdownTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.NewPlatform == nil {
		o.NewPlatform = platform.Create
	}
	if o.Classify == nil {
		o.Classify = func(ev blessing.Evidence) fatal.Classifier { return blessing.New(ev) }
	}
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	return o
}

// Orchestrator owns one engine run.
type Orchestrator struct {
	opts     Options
	reporter *fatal.Reporter

	ran atomic.Bool
	ctx atomic.Pointer[core.Context]

	platform core.Platform
	app      core.App

	shutdownOnce sync.Once
	shutdownErr  error
}

// New prepares an orchestrator. The reporter exists before anything else so
// a fatal raised during the earliest phase can still be reported.
func New(opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		opts: opts,
		reporter: fatal.NewReporter(fatal.Options{
			Handler:    opts.Handler,
			Classifier: opts.Classify(nil),
			Exit:       opts.Exit,
			CrashDir:   opts.Env.CrashDir,
		}),
	}
}

// Run executes the orchestrator with default options.
func Run(args []string, opts Options) int {
	return New(opts).Run(args)
}

func (o *Orchestrator) Reporter() *fatal.Reporter { return o.reporter }

// Context returns the process context once provisioning has created it.
func (o *Orchestrator) Context() (*core.Context, bool) {
	c := o.ctx.Load()
	return c, c != nil
}

// Run brings the engine up and returns the process return code. A fatal that
// is not handled either exits through Options.Exit or panics with
// *fatal.Abort, which must be allowed to terminate the process.
func (o *Orchestrator) Run(args []string) int {
	if !o.ran.CompareAndSwap(false, true) {
		logs.Errorf("bootstrap.Orchestrator.Run rejected err=%v", ErrAlreadyRan)
		return 1
	}

	err := o.protected(func() error { return o.run(args) })
	if err != nil && !errors.Is(err, fatal.ErrReported) {
		o.handleTopLevel(err)
	}

	c, provisioned := o.Context()
	if provisioned && (err != nil || o.app == nil || o.app.UsesEventLoop()) {
		if serr := o.Shutdown(context.Background()); serr != nil {
			logs.Warnf("bootstrap.Orchestrator.Run shutdown err=%v", serr)
		}
	}
	if o.platform != nil {
		o.platform.WillExitMain(false)
	}
	if !provisioned {
		if err != nil {
			return 1
		}
		return 0
	}
	if err != nil {
		c.Globals.SetReturnValue(1)
	}
	code := c.Globals.ReturnValue()
	logs.Infof("bootstrap.Orchestrator.Run exit code=%d", code)
	return code
}

func (o *Orchestrator) run(args []string) error {
	if o.opts.Getenv(config.EnvCrashTest) == "1" {
		o.reporter.FatalError(crashTestMessage)
		return fmt.Errorf("crash test: %w", fatal.ErrReported)
	}

	c, err := o.provision(args)
	if err != nil {
		return err
	}
	if err := o.activate(c); err != nil {
		return err
	}
	return o.serve(c)
}

// protected converts a panic in fn into an error. Terminal panics from the
// fatal path are re-raised untouched.
func (o *Orchestrator) protected(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if thread.IsTerminal(r) {
				panic(r)
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// handleTopLevel is the one place a failure escaping Run is reported.
func (o *Orchestrator) handleTopLevel(err error) {
	ctx := context.Background()
	if c, ok := o.Context(); ok {
		if main, ok := c.Globals.MainThread(); ok {
			ctx = thread.WithCurrent(ctx, main)
		}
	}
	o.reporter.TopLevelFatalContext(ctx, "Unhandled exception in Run(): "+err.Error())
}

// Fail reports a failure that kept Run from starting at all, such as an
// unparseable environment. It returns only if a handler intercepted the fatal.
func (o *Orchestrator) Fail(err error) int {
	o.reporter.TopLevelFatalContext(context.Background(), "Startup failed: "+err.Error())
	return 1
}

// onThreadFailure escalates a failed worker call to a runtime fatal.
func (o *Orchestrator) onThreadFailure(t *thread.Thread, err error) {
	if errors.Is(err, fatal.ErrReported) {
		return
	}
	ctx := thread.WithCurrent(context.Background(), t)
	o.reporter.FatalErrorContext(ctx, fmt.Sprintf("thread %s: %v", t.Name(), err))
}

// workerOrder is the creation order of the pausable worker threads.
var workerOrder = []thread.Identifier{
	thread.Media,
	thread.Audio,
	thread.Game,
	thread.NetworkWrite,
}

func (o *Orchestrator) provision(args []string) (*core.Context, error) {
	start := time.Now()
	env := o.opts.Env

	cfg := thread.DefaultConfig()
	if env.BacklogWarn > 0 {
		cfg.BacklogWarn = env.BacklogWarn
	}
	cfg.OnFailure = o.onThreadFailure
	reg := thread.NewRegistry(cfg)

	c := core.NewContext(args, reg, o.reporter)
	o.ctx.Store(c)
	o.reporter.SetRealTime(c.Globals.RealTime)
	o.reporter.SetClassifier(o.opts.Classify(c.BlessingEvidence()))
	logs.SetServerSink(o.reporter)

	p, err := o.opts.NewPlatform(env)
	if err != nil {
		return nil, fmt.Errorf("create platform: %w", err)
	}
	o.platform = p
	if err := c.SetPlatform(p); err != nil {
		return nil, err
	}
	if err := p.PostInit(); err != nil {
		return nil, fmt.Errorf("platform post init: %w", err)
	}

	if err := provisionFoundation(c); err != nil {
		return nil, err
	}

	main, err := reg.CreateThread(thread.Main, thread.TypeMain)
	if err != nil {
		return nil, err
	}
	c.Globals.SetMainThread(main)

	app, err := p.CreateApp(c)
	if err != nil {
		return nil, fmt.Errorf("create app: %w", err)
	}
	o.app = app
	if err := c.SetApp(app); err != nil {
		return nil, err
	}

	threads := make(map[thread.Identifier]*thread.Thread, len(workerOrder))
	for _, id := range workerOrder {
		t, err := reg.CreateThread(id, thread.TypeStandard)
		if err != nil {
			return nil, err
		}
		c.Globals.AddPausableThread(t)
		threads[id] = t
	}

	if err := o.attachModules(c, main, threads); err != nil {
		return nil, err
	}
	if err := p.CreateAuxiliaryModules(c); err != nil {
		return nil, fmt.Errorf("auxiliary modules: %w", err)
	}

	session := c.InitSessionIdentifier(p.UniqueDeviceIdentifier() + "-")
	c.MarkBootstrapped()

	observability.RecordBootstrapPhase("provision", time.Since(start))
	logs.Infof(
		"bootstrap.Orchestrator.provision ready threads=%d session=%s",
		len(reg.Threads()),
		session,
	)
	return c, nil
}

func provisionFoundation(c *core.Context) error {
	if err := c.SetAccount(foundation.NewAccount()); err != nil {
		return err
	}
	if err := c.SetUtils(foundation.NewUtils()); err != nil {
		return err
	}
	types := foundation.NewSceneTypes()
	if err := foundation.RegisterBuiltins(types); err != nil {
		return err
	}
	return c.SetSceneTypes(types)
}

// attachModules binds one module per thread in dependency order: the game
// first, the graphics server on the main thread, audio last.
func (o *Orchestrator) attachModules(c *core.Context, main *thread.Thread, threads map[thread.Identifier]*thread.Thread) error {
	game, err := thread.AttachModule(threads[thread.Game], func(t *thread.Thread) (*modules.Game, error) {
		return modules.NewGame(t, c, o.opts.Env.ConfigPath), nil
	})
	if err != nil {
		return err
	}
	if err := c.SetGame(game); err != nil {
		return err
	}

	netw, err := thread.AttachModule(threads[thread.NetworkWrite], func(t *thread.Thread) (*modules.NetworkWriter, error) {
		return modules.NewNetworkWriter(t, c, o.opts.NetworkListen), nil
	})
	if err != nil {
		return err
	}
	if err := c.SetNetworkWriter(netw); err != nil {
		return err
	}

	media, err := thread.AttachModule(threads[thread.Media], func(t *thread.Thread) (*modules.MediaServer, error) {
		return modules.NewMediaServer(t, c), nil
	})
	if err != nil {
		return err
	}
	if err := c.SetMediaServer(media); err != nil {
		return err
	}

	gfx, err := thread.AttachModule(main, func(t *thread.Thread) (*modules.GraphicsServer, error) {
		return modules.NewGraphicsServer(t, c, o.opts.ScreenFactory), nil
	})
	if err != nil {
		return err
	}
	if err := c.SetGraphicsServer(gfx); err != nil {
		return err
	}

	audio, err := thread.AttachModule(threads[thread.Audio], func(t *thread.Thread) (*modules.AudioServer, error) {
		return modules.NewAudioServer(t, c), nil
	})
	if err != nil {
		return err
	}
	return c.SetAudioServer(audio)
}

func (o *Orchestrator) activate(c *core.Context) error {
	start := time.Now()
	game, err := c.RequireGame(context.Background())
	if err != nil {
		return err
	}
	if err := game.PushApplyConfigCall(); err != nil {
		return err
	}
	if err := o.app.OnBootstrapComplete(c); err != nil {
		return fmt.Errorf("app bootstrap complete: %w", err)
	}
	if err := o.platform.OnBootstrapComplete(c); err != nil {
		return fmt.Errorf("platform bootstrap complete: %w", err)
	}
	observability.RecordBootstrapPhase("activate", time.Since(start))
	return nil
}

func (o *Orchestrator) serve(c *core.Context) error {
	main, _ := c.Globals.MainThread()
	ctx, stop := signal.NotifyContext(o.opts.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	defer func() {
		observability.RecordBootstrapPhase("steady_state", time.Since(start))
	}()

	if !o.app.UsesEventLoop() {
		return o.app.PrimeEventPump(ctx)
	}
	return main.RunEventLoop(ctx)
}

// Pump drives main-thread work for an externally pumped app after Run has
// returned, until ctx is done or the main thread quits. Workers are shut down
// before it returns.
func (o *Orchestrator) Pump(ctx context.Context, interval time.Duration) int {
	c, ok := o.Context()
	if !ok {
		logs.Errorf("bootstrap.Orchestrator.Pump err=%v", ErrNotRunning)
		return 1
	}
	main, _ := c.Globals.MainThread()
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	err := o.protected(func() error {
		for {
			if _, err := main.PumpOnce(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-main.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	if err != nil {
		if !errors.Is(err, fatal.ErrReported) {
			o.handleTopLevel(err)
		}
		c.Globals.SetReturnValue(1)
	}
	if serr := o.Shutdown(context.Background()); serr != nil {
		logs.Warnf("bootstrap.Orchestrator.Pump shutdown err=%v", serr)
	}
	return c.Globals.ReturnValue()
}

// Shutdown quits every thread, waits for the workers, then closes modules
// holding OS resources. It is idempotent.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	c, ok := o.Context()
	if !ok {
		return ErrNotRunning
	}
	o.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, o.opts.ShutdownTimeout)
		defer cancel()
		var errs []error
		if err := c.Threads.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		for _, t := range c.Threads.Threads() {
			if closer, ok := t.Module().(io.Closer); ok {
				if err := closer.Close(); err != nil {
					errs = append(errs, fmt.Errorf("close %s: %w", t.Name(), err))
				}
			}
		}
		o.shutdownErr = errors.Join(errs...)
		logs.SetServerSink(nil)
		logs.Infof("bootstrap.Orchestrator.Shutdown threads=%d err=%v", len(c.Threads.Threads()), o.shutdownErr)
	})
	return o.shutdownErr
}
