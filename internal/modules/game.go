package modules

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"

	"github.com/danmuck/enginecore/internal/config"
	"github.com/danmuck/enginecore/internal/core"
	"github.com/danmuck/enginecore/internal/foundation"
	logs "github.com/danmuck/enginecore/internal/logging"
	"github.com/danmuck/enginecore/internal/thread"
)

const (
	// maxScreenMessages bounds the on-screen message history.
	maxScreenMessages   = 32
	maxScreenMessageLen = 120
	maxAccountNameLen   = 24
)

// ScreenMessage is one transient message shown by the game.
type ScreenMessage struct {
	Text  string
	Color core.Color
}

// GameStatus is a snapshot of game thread state.
type GameStatus struct {
	ConfigApplied  bool
	Config         config.AppConfig
	ScreenReady    bool
	Screen         core.Screen
	SessionStarted bool
	Messages       []ScreenMessage
	CommandsRun    int
}

// Game is the game-logic module. All state changes happen on the game thread.
type Game struct {
	base
	configPath string

	mu     sync.Mutex
	status GameStatus

	sessionOnce sync.Once
	session     chan struct{}
}

// NewGame binds a game module to t. configPath is the TOML app config applied
// by PushApplyConfigCall.
func NewGame(t *thread.Thread, c *core.Context, configPath string) *Game {
	return &Game{
		base:       newBase("game", t, c),
		configPath: configPath,
		session:    make(chan struct{}),
	}
}

// SessionStarted is closed once the initial session has been kicked off.
func (g *Game) SessionStarted() <-chan struct{} { return g.session }

func (g *Game) Status() GameStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.status
	out.Messages = append([]ScreenMessage(nil), g.status.Messages...)
	return out
}

// PushApplyConfigCall loads the app config on the game thread, forwards audio
// settings and asks the graphics server for the first screen. A missing file
// falls back to defaults.
func (g *Game) PushApplyConfigCall() error {
	return g.push(func(ctx context.Context) error {
		if err := g.on(ctx); err != nil {
			return err
		}
		cfg, err := config.LoadAppConfig(g.configPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			logs.Infof("modules.Game.ApplyConfig using defaults path=%q", g.configPath)
		}

		g.mu.Lock()
		g.status.ConfigApplied = true
		g.status.Config = cfg
		g.mu.Unlock()

		if a, ok := g.c.AudioServer(); ok {
			if err := a.PushSetVolume(cfg.Audio.Volume); err != nil {
				return err
			}
		}
		gfx, err := g.c.RequireGraphicsServer(ctx)
		if err != nil {
			return err
		}
		logs.Infof(
			"modules.Game.ApplyConfig screen=%dx%d fullscreen=%v volume=%.2f",
			cfg.Screen.Width,
			cfg.Screen.Height,
			cfg.Screen.Fullscreen,
			cfg.Audio.Volume,
		)
		return gfx.PushCreateScreen(cfg.Screen)
	})
}

// PushScreenCreated is the graphics server's reply; the game starts the
// initial session on receipt.
func (g *Game) PushScreenCreated(screen core.Screen) error {
	return g.push(func(ctx context.Context) error {
		if err := g.on(ctx); err != nil {
			return err
		}
		g.mu.Lock()
		g.status.ScreenReady = true
		g.status.Screen = screen
		g.mu.Unlock()

		if d, ok := g.c.Dynamics(); ok {
			if stepper, ok := d.(*Dynamics); ok {
				if err := stepper.PushStep(0); err != nil {
					return err
				}
			}
		}
		g.startSession(ctx)
		return nil
	})
}

func (g *Game) startSession(ctx context.Context) {
	g.sessionOnce.Do(func() {
		g.mu.Lock()
		g.status.SessionStarted = true
		g.mu.Unlock()
		logs.Infof(
			"modules.Game.startSession session=%s real_time_ms=%d",
			g.c.Globals.SessionIdentifier(),
			g.c.Globals.RealTime(),
		)
		close(g.session)
	})
}

func (g *Game) PushScreenMessage(message string, color core.Color) error {
	return g.push(func(ctx context.Context) error {
		if err := g.on(ctx); err != nil {
			return err
		}
		g.mu.Lock()
		g.status.Messages = append(g.status.Messages, ScreenMessage{Text: message, Color: color})
		if over := len(g.status.Messages) - maxScreenMessages; over > 0 {
			g.status.Messages = append([]ScreenMessage(nil), g.status.Messages[over:]...)
		}
		g.mu.Unlock()
		logs.Infof("modules.Game.ScreenMessage text=%q", message)
		return nil
	})
}

// PushCommand runs one developer command on the game thread. Any command,
// valid or not, marks the process as user-modified.
func (g *Game) PushCommand(line string) error {
	return g.push(func(ctx context.Context) error {
		if err := g.on(ctx); err != nil {
			return err
		}
		g.c.Globals.SetUserRanCommands()
		g.mu.Lock()
		g.status.CommandsRun++
		g.mu.Unlock()

		cmd, err := ParseCommand(line)
		if err == nil {
			err = cmd.Validate()
		}
		if err != nil {
			logs.Warnf("modules.Game.Command rejected line=%q err=%v", line, err)
			g.c.ScreenMessage(err.Error(), core.White)
			return nil
		}
		return g.runCommand(ctx, cmd)
	})
}

func (g *Game) runCommand(ctx context.Context, cmd Command) error {
	logs.Infof("modules.Game.Command name=%s args=%d", cmd.Name, len(cmd.Args))
	switch cmd.Name {
	case CommandQuit:
		code := 0
		if len(cmd.Args) > 0 {
			if n, err := strconv.Atoi(cmd.Args[0]); err == nil {
				code = n
			}
		}
		g.c.Quit(code)
	case CommandSay:
		g.c.ScreenMessage(g.truncate(cmd.Rest(0), maxScreenMessageLen), core.White)
	case CommandVolume:
		v, err := strconv.ParseFloat(cmd.Args[0], 64)
		if err != nil {
			logs.Warnf("modules.Game.Command bad volume value=%q", cmd.Args[0])
			return nil
		}
		if a, ok := g.c.AudioServer(); ok {
			return a.PushSetVolume(v)
		}
	case CommandSend:
		if n, ok := g.c.NetworkWriter(); ok {
			return n.PushSendTo(cmd.Args[0], []byte(cmd.Rest(1)))
		}
		logs.Warnf("modules.Game.Command network writer unavailable")
	case CommandSignIn:
		a, ok := g.c.Account()
		if !ok {
			logs.Warnf("modules.Game.Command account store unavailable")
			return nil
		}
		a.BeginSignIn()
		a.CompleteSignIn(g.truncate(cmd.Rest(0), maxAccountNameLen))
		_, name := a.State()
		g.c.ScreenMessage("signed in as "+name, core.White)
	case CommandSignOut:
		if a, ok := g.c.Account(); ok {
			a.SignOut()
			g.c.ScreenMessage("signed out", core.White)
		}
	case CommandStatus:
		st := g.Status()
		account := foundation.AccountSignedOut
		if a, ok := g.c.Account(); ok {
			account, _ = a.State()
		}
		g.c.ScreenMessage(
			"session="+g.c.Globals.SessionIdentifier()+
				" screen_ready="+strconv.FormatBool(st.ScreenReady)+
				" account="+account.String(),
			core.White,
		)
	}
	return nil
}

func (g *Game) truncate(s string, max int) string {
	if u, ok := g.c.Utils(); ok {
		return u.Truncate(s, max)
	}
	return s
}

var _ core.GameModule = (*Game)(nil)
