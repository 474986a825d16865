package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/enginecore/internal/blessing"
	"github.com/danmuck/enginecore/internal/clock"
	"github.com/danmuck/enginecore/internal/fatal"
	"github.com/danmuck/enginecore/internal/foundation"
	logs "github.com/danmuck/enginecore/internal/logging"
	"github.com/danmuck/enginecore/internal/thread"
)

var (
	ErrSubsystemSet         = errors.New("core: subsystem already set")
	ErrSubsystemUnavailable = errors.New("core: subsystem unavailable")
)

// maxSessionIDLen is the length past which a session id is suspicious.
const maxSessionIDLen = 100

// Context is the explicit process context handed to every component.
type Context struct {
	Globals  *Globals
	Threads  *thread.Registry
	Reporter *fatal.Reporter

	platform   Slot[Platform]
	app        Slot[App]
	account    Slot[*foundation.Account]
	utils      Slot[*foundation.Utils]
	sceneTypes Slot[*foundation.SceneTypes]

	game         Slot[GameModule]
	graphics     Slot[GraphicsServer]
	audio        Slot[AudioServer]
	media        Slot[MediaServer]
	networkWrite Slot[NetworkWriter]
	dynamics     Slot[ThreadModule]
	stdin        Slot[ThreadModule]
}

// NewContext creates Globals whose clock reads the platform slot; it reads
// zero until a platform is set.
func NewContext(args []string, threads *thread.Registry, reporter *fatal.Reporter) *Context {
	c := &Context{Threads: threads, Reporter: reporter}
	c.Globals = NewGlobals(args, clock.TickFunc(func() int64 {
		if p, ok := c.Platform(); ok {
			return p.Ticks()
		}
		return 0
	}))
	return c
}

func (c *Context) SetPlatform(p Platform) error { return setSlot(&c.platform, "platform", p) }
func (c *Context) Platform() (Platform, bool)   { return c.platform.Get() }

func (c *Context) SetApp(a App) error { return setSlot(&c.app, "app", a) }
func (c *Context) App() (App, bool)   { return c.app.Get() }

func (c *Context) SetAccount(a *foundation.Account) error { return setSlot(&c.account, "account", a) }
func (c *Context) Account() (*foundation.Account, bool)   { return c.account.Get() }

func (c *Context) SetUtils(u *foundation.Utils) error { return setSlot(&c.utils, "utils", u) }
func (c *Context) Utils() (*foundation.Utils, bool)   { return c.utils.Get() }

func (c *Context) SetSceneTypes(s *foundation.SceneTypes) error {
	return setSlot(&c.sceneTypes, "scene_types", s)
}
func (c *Context) SceneTypes() (*foundation.SceneTypes, bool) { return c.sceneTypes.Get() }

func (c *Context) SetGame(g GameModule) error { return setSlot(&c.game, "game", g) }
func (c *Context) Game() (GameModule, bool)   { return c.game.Get() }

func (c *Context) SetGraphicsServer(g GraphicsServer) error {
	return setSlot(&c.graphics, "graphics_server", g)
}
func (c *Context) GraphicsServer() (GraphicsServer, bool) { return c.graphics.Get() }

func (c *Context) SetAudioServer(a AudioServer) error { return setSlot(&c.audio, "audio_server", a) }
func (c *Context) AudioServer() (AudioServer, bool)   { return c.audio.Get() }

func (c *Context) SetMediaServer(m MediaServer) error { return setSlot(&c.media, "media_server", m) }
func (c *Context) MediaServer() (MediaServer, bool)   { return c.media.Get() }

func (c *Context) SetNetworkWriter(n NetworkWriter) error {
	return setSlot(&c.networkWrite, "network_write", n)
}
func (c *Context) NetworkWriter() (NetworkWriter, bool) { return c.networkWrite.Get() }

func (c *Context) SetDynamics(d ThreadModule) error { return setSlot(&c.dynamics, "dynamics", d) }
func (c *Context) Dynamics() (ThreadModule, bool)   { return c.dynamics.Get() }

func (c *Context) SetStdinReader(s ThreadModule) error { return setSlot(&c.stdin, "stdin", s) }
func (c *Context) StdinReader() (ThreadModule, bool)   { return c.stdin.Get() }

// RequireGame returns the game module. A missing game after bootstrap is a
// runtime fatal.
func (c *Context) RequireGame(ctx context.Context) (GameModule, error) {
	g, ok := c.Game()
	if ok {
		return g, nil
	}
	return nil, c.unavailable(ctx, "game")
}

func (c *Context) RequireGraphicsServer(ctx context.Context) (GraphicsServer, error) {
	g, ok := c.GraphicsServer()
	if ok {
		return g, nil
	}
	return nil, c.unavailable(ctx, "graphics_server")
}

func (c *Context) unavailable(ctx context.Context, name string) error {
	if c.IsBootstrapped() && c.Reporter != nil {
		c.Reporter.FatalErrorContext(ctx, "subsystem missing after bootstrap: "+name)
		return fmt.Errorf("%w: %s: %w", ErrSubsystemUnavailable, name, fatal.ErrReported)
	}
	return fmt.Errorf("%w: %s", ErrSubsystemUnavailable, name)
}

// MarkBootstrapped flips is_bootstrapped and opens the registry gate. Nothing
// may cross threads before this.
func (c *Context) MarkBootstrapped() {
	c.Globals.setBootstrapped()
	c.Threads.MarkBootstrapped()
}

func (c *Context) IsBootstrapped() bool {
	return c != nil && c.Globals != nil && c.Globals.IsBootstrapped()
}

// InitSessionIdentifier sets the session id once from the device id plus a
// random suffix.
func (c *Context) InitSessionIdentifier(deviceID string) string {
	suffix := ""
	if u, ok := c.Utils(); ok {
		suffix = u.RandomSuffix()
	}
	id := deviceID + suffix
	if !c.Globals.setSessionIdentifier(id) {
		return c.Globals.SessionIdentifier()
	}
	if len(id) >= maxSessionIDLen {
		logs.Warnf("core.Context.InitSessionIdentifier session id longer than it should be len=%d", len(id))
	}
	return id
}

// ScreenMessage shows a transient message via the game thread. Before the game
// exists the message is logged and dropped.
func (c *Context) ScreenMessage(message string, color Color) {
	if g, ok := c.Game(); ok {
		if err := g.PushScreenMessage(message, color); err == nil {
			return
		}
	}
	logs.Log("ScreenMessage before game init (will be lost): '"+message+"'", true, true)
}

// Quit ends the main event loop with the given process return code.
func (c *Context) Quit(code int) {
	c.Globals.SetReturnValue(code)
	if t, ok := c.Globals.MainThread(); ok {
		t.Quit()
	}
}

func (c *Context) InMainThread(ctx context.Context) bool {
	if c == nil || c.Globals == nil {
		return false
	}
	t, ok := c.Globals.MainThread()
	return ok && t.IsCurrent(ctx)
}

func (c *Context) InGameThread(ctx context.Context) bool {
	g, ok := c.Game()
	return ok && onThread(g, ctx)
}

func (c *Context) InGraphicsThread(ctx context.Context) bool {
	g, ok := c.GraphicsServer()
	return ok && onThread(g, ctx)
}

func (c *Context) InAudioThread(ctx context.Context) bool {
	a, ok := c.AudioServer()
	return ok && onThread(a, ctx)
}

func (c *Context) InMediaThread(ctx context.Context) bool {
	m, ok := c.MediaServer()
	return ok && onThread(m, ctx)
}

func (c *Context) InNetworkWriteThread(ctx context.Context) bool {
	n, ok := c.NetworkWriter()
	return ok && onThread(n, ctx)
}

// InDynamicsThread is always false on headless builds.
func (c *Context) InDynamicsThread(ctx context.Context) bool {
	if HeadlessBuild {
		return false
	}
	d, ok := c.Dynamics()
	return ok && onThread(d, ctx)
}

// CurrentThreadName is the diagnostic name of the thread ctx runs on.
func (c *Context) CurrentThreadName(ctx context.Context) string {
	return thread.CurrentName(ctx)
}

func onThread(m ThreadModule, ctx context.Context) bool {
	t := m.Thread()
	return t != nil && t.IsCurrent(ctx)
}

// BlessingEvidence exposes live process state to the blessing classifier.
func (c *Context) BlessingEvidence() blessing.Evidence {
	return evidence{c: c}
}

type evidence struct {
	c *Context
}

func (e evidence) UserRanCommands() bool { return e.c.Globals.UserRanCommands() }

func (e evidence) UsingCustomScriptsDir() bool {
	p, ok := e.c.Platform()
	return ok && p.UsingCustomScriptsDir()
}

func (e evidence) CalculatedBlessingHash() string { return e.c.Globals.CalculatedBlessingHash() }
