package core

import (
	"context"
	"io/fs"

	"github.com/danmuck/enginecore/internal/config"
	"github.com/danmuck/enginecore/internal/thread"
)

// Platform is the OS abstraction. Construction is the platform's Create
// factory; everything else is invoked by the orchestrator in phase order.
type Platform interface {
	PostInit() error
	CreateApp(c *Context) (App, error)
	// CreateAuxiliaryModules creates optional platform threads (dynamics, stdin).
	CreateAuxiliaryModules(c *Context) error
	OnBootstrapComplete(c *Context) error
	WillExitMain(errored bool)
	// Ticks is the raw monotonic millisecond source behind the real-time clock.
	Ticks() int64
	UniqueDeviceIdentifier() string
	UsingCustomScriptsDir() bool
}

// App is the application-level abstraction above the platform.
type App interface {
	OnBootstrapComplete(c *Context) error
	UsesEventLoop() bool
	// PrimeEventPump drives pending main-thread work until the first screen
	// exists. Only called when UsesEventLoop is false.
	PrimeEventPump(ctx context.Context) error
}

// ThreadModule is a module that knows its owning thread.
type ThreadModule interface {
	thread.Module
	Thread() *thread.Thread
}

// Color is a linear RGB triple in [0,1].
type Color struct {
	R, G, B float32
}

var White = Color{R: 1, G: 1, B: 1}

// Screen is the rendering surface created by the graphics server.
type Screen struct {
	Width      int
	Height     int
	Fullscreen bool
	Title      string
	Headless   bool
}

type GameModule interface {
	ThreadModule
	PushApplyConfigCall() error
	PushScreenMessage(message string, color Color) error
	PushScreenCreated(screen Screen) error
	PushCommand(command string) error
}

type GraphicsServer interface {
	ThreadModule
	PushCreateScreen(settings config.ScreenSettings) error
	Screen() (Screen, bool)
}

type AudioServer interface {
	ThreadModule
	PushSetVolume(volume float64) error
}

type MediaServer interface {
	ThreadModule
	PushComputeBlessingHash(content fs.FS) error
}

type NetworkWriter interface {
	ThreadModule
	PushSendTo(addr string, payload []byte) error
}
