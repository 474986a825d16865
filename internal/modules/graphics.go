package modules

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/enginecore/internal/config"
	"github.com/danmuck/enginecore/internal/core"
	logs "github.com/danmuck/enginecore/internal/logging"
	"github.com/danmuck/enginecore/internal/thread"
)

// ScreenFactory creates the rendering surface on the main thread.
type ScreenFactory func(settings config.ScreenSettings) (core.Screen, error)

// HeadlessScreen is the default factory; it allocates nothing.
func HeadlessScreen(settings config.ScreenSettings) (core.Screen, error) {
	return core.Screen{
		Width:      settings.Width,
		Height:     settings.Height,
		Fullscreen: settings.Fullscreen,
		Title:      settings.Title,
		Headless:   true,
	}, nil
}

// GraphicsServer lives on the main thread and owns the screen.
type GraphicsServer struct {
	base
	factory ScreenFactory

	mu     sync.Mutex
	screen *core.Screen
}

func NewGraphicsServer(t *thread.Thread, c *core.Context, factory ScreenFactory) *GraphicsServer {
	if factory == nil {
		factory = HeadlessScreen
	}
	return &GraphicsServer{base: newBase("graphics_server", t, c), factory: factory}
}

// PushCreateScreen creates the screen on the main thread and replies to the
// game thread with PushScreenCreated.
func (s *GraphicsServer) PushCreateScreen(settings config.ScreenSettings) error {
	return s.push(func(ctx context.Context) error {
		if err := s.on(ctx); err != nil {
			return err
		}
		screen, err := s.factory(settings)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrScreenCreate, err)
		}
		s.mu.Lock()
		s.screen = &screen
		s.mu.Unlock()
		logs.Infof(
			"modules.GraphicsServer.CreateScreen width=%d height=%d headless=%v",
			screen.Width,
			screen.Height,
			screen.Headless,
		)

		game, err := s.c.RequireGame(ctx)
		if err != nil {
			return err
		}
		return game.PushScreenCreated(screen)
	})
}

// Screen returns the created screen, if any.
func (s *GraphicsServer) Screen() (core.Screen, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screen == nil {
		return core.Screen{}, false
	}
	return *s.screen, true
}

var _ core.GraphicsServer = (*GraphicsServer)(nil)
