package platform

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/danmuck/enginecore/internal/clock"
	"github.com/danmuck/enginecore/internal/config"
	"github.com/danmuck/enginecore/internal/core"
	logs "github.com/danmuck/enginecore/internal/logging"
	"github.com/danmuck/enginecore/internal/modules"
	"github.com/danmuck/enginecore/internal/observability"
	"github.com/danmuck/enginecore/internal/thread"
)

//go:embed assets
var shipped embed.FS

var (
	ErrScriptsDir     = errors.New("platform: scripts dir unusable")
	ErrNotInitialized = errors.New("platform: PostInit not run")
)

// machineIDPaths are probed in order for a stable device id.
var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// Options configures a Desktop platform. Zero values pick process defaults.
type Options struct {
	Env   config.Env
	Ticks clock.TickSource
	// Stdin feeds the stdin reader thread when Env.Stdin is set.
	Stdin io.Reader
	// Content replaces the shipped asset tree when set.
	Content fs.FS
	// DeviceID skips device probing when set.
	DeviceID string
}

// Desktop is the headless-capable desktop platform.
type Desktop struct {
	opts    Options
	ticks   clock.TickSource
	content fs.FS

	deviceOnce sync.Once
	deviceID   string

	metricsCancel context.CancelFunc
	metricsDone   chan struct{}
}

// stdinIsTerminal reports whether the process stdin is an interactive terminal.
var stdinIsTerminal = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Create is the platform factory used by the orchestrator. The stdin reader
// is enabled when stdin is a terminal or ENGINE_STDIN is set.
func Create(env config.Env) (core.Platform, error) {
	env.Stdin = env.Stdin || stdinIsTerminal()
	return New(Options{Env: env, Stdin: os.Stdin})
}

func New(opts Options) (*Desktop, error) {
	ticks := opts.Ticks
	if ticks == nil {
		ticks = clock.Steady()
	}
	return &Desktop{opts: opts, ticks: ticks}, nil
}

// PostInit resolves the content tree: a custom scripts dir when configured,
// otherwise the shipped assets.
func (d *Desktop) PostInit() error {
	switch {
	case d.opts.Env.ScriptsDir != "":
		info, err := os.Stat(d.opts.Env.ScriptsDir)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrScriptsDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrScriptsDir, d.opts.Env.ScriptsDir)
		}
		d.content = os.DirFS(d.opts.Env.ScriptsDir)
	case d.opts.Content != nil:
		d.content = d.opts.Content
	default:
		sub, err := fs.Sub(shipped, "assets")
		if err != nil {
			return err
		}
		d.content = sub
	}
	observability.RegisterMetrics()
	logs.Infof(
		"platform.Desktop.PostInit custom_scripts=%v headless=%v",
		d.UsingCustomScriptsDir(),
		d.headless(),
	)
	return nil
}

// Content is the tree hashed for the blessing check.
func (d *Desktop) Content() fs.FS { return d.content }

func (d *Desktop) CreateApp(c *core.Context) (core.App, error) {
	if d.opts.Env.ExternalPump {
		return NewPumpedApp(c, d.opts.Env.PumpTimeout), nil
	}
	return NewLoopApp(), nil
}

// CreateAuxiliaryModules adds the pausable dynamics thread unless headless,
// and the stdin reader when enabled.
func (d *Desktop) CreateAuxiliaryModules(c *core.Context) error {
	if !d.headless() {
		t, err := c.Threads.CreateThread(thread.Dynamics, thread.TypeStandard)
		if err != nil {
			return err
		}
		c.Globals.AddPausableThread(t)
		dyn, err := thread.AttachModule(t, func(t *thread.Thread) (*modules.Dynamics, error) {
			return modules.NewDynamics(t, c), nil
		})
		if err != nil {
			return err
		}
		if err := c.SetDynamics(dyn); err != nil {
			return err
		}
	}
	if d.opts.Env.Stdin {
		t, err := c.Threads.CreateThread(thread.Stdin, thread.TypeStandard)
		if err != nil {
			return err
		}
		reader, err := thread.AttachModule(t, func(t *thread.Thread) (*modules.StdinReader, error) {
			return modules.NewStdinReader(t, c, d.opts.Stdin), nil
		})
		if err != nil {
			return err
		}
		if err := c.SetStdinReader(reader); err != nil {
			return err
		}
	}
	return nil
}

// OnBootstrapComplete asks the media server to hash the content tree and
// starts the metrics listener when configured.
func (d *Desktop) OnBootstrapComplete(c *core.Context) error {
	if d.content == nil {
		return ErrNotInitialized
	}
	media, ok := c.MediaServer()
	if !ok {
		return fmt.Errorf("%w: media_server", core.ErrSubsystemUnavailable)
	}
	if err := media.PushComputeBlessingHash(d.content); err != nil {
		return err
	}
	if addr := d.opts.Env.MetricsAddr; addr != "" {
		ctx, cancel := context.WithCancel(context.Background())
		d.metricsCancel = cancel
		d.metricsDone = make(chan struct{})
		go func() {
			defer close(d.metricsDone)
			if err := observability.ServeMetrics(ctx, addr); err != nil {
				logs.Errorf("platform.Desktop.metrics serve failed addr=%q err=%v", addr, err)
			}
		}()
	}
	return nil
}

// WillExitMain runs last, right before the orchestrator returns.
func (d *Desktop) WillExitMain(errored bool) {
	if d.metricsCancel != nil {
		d.metricsCancel()
		<-d.metricsDone
		d.metricsCancel = nil
	}
	logs.Infof("platform.Desktop.WillExitMain errored=%v", errored)
}

func (d *Desktop) Ticks() int64 { return d.ticks.Ticks() }

// UniqueDeviceIdentifier prefers the OS machine id, then the hostname, then a
// random id that is stable for the process lifetime.
func (d *Desktop) UniqueDeviceIdentifier() string {
	d.deviceOnce.Do(func() {
		d.deviceID = d.opts.DeviceID
		if d.deviceID == "" {
			d.deviceID = probeDeviceID()
		}
	})
	return d.deviceID
}

func probeDeviceID() string {
	for _, path := range machineIDPaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		return strings.TrimSpace(host)
	}
	return uuid.NewString()
}

func (d *Desktop) UsingCustomScriptsDir() bool { return d.opts.Env.ScriptsDir != "" }

func (d *Desktop) headless() bool { return core.HeadlessBuild || d.opts.Env.Headless }

var _ core.Platform = (*Desktop)(nil)
