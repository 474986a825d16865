package modules

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/danmuck/enginecore/internal/core"
	"github.com/danmuck/enginecore/internal/fatal"
	"github.com/danmuck/enginecore/internal/foundation"
	"github.com/danmuck/enginecore/internal/thread"
)

type harness struct {
	c        *core.Context
	main     *thread.Thread
	game     *Game
	gfx      *GraphicsServer
	audio    *AudioServer
	media    *MediaServer
	net      *NetworkWriter
	dyn      *Dynamics
	stdin    *StdinReader
	failures chan error
	loop     chan error
	loopDone chan struct{}
}

type harnessOptions struct {
	configPath string
	factory    ScreenFactory
	stdin      io.Reader
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	if opts.configPath == "" {
		opts.configPath = filepath.Join(t.TempDir(), "missing.toml")
	}
	h := &harness{
		failures: make(chan error, 16),
		loop:     make(chan error, 1),
		loopDone: make(chan struct{}),
	}

	cfg := thread.DefaultConfig()
	cfg.OnFailure = func(_ *thread.Thread, err error) { h.failures <- err }
	reg := thread.NewRegistry(cfg)
	h.c = core.NewContext([]string{"test"}, reg, fatal.NewReporter(fatal.Options{}))

	mk := func(id thread.Identifier, typ thread.Type) *thread.Thread {
		th, err := reg.CreateThread(id, typ)
		require.NoError(t, err)
		return th
	}
	h.main = mk(thread.Main, thread.TypeMain)
	h.c.Globals.SetMainThread(h.main)

	var err error
	h.game, err = thread.AttachModule(mk(thread.Game, thread.TypeStandard), func(th *thread.Thread) (*Game, error) {
		return NewGame(th, h.c, opts.configPath), nil
	})
	require.NoError(t, err)
	h.gfx, err = thread.AttachModule(h.main, func(th *thread.Thread) (*GraphicsServer, error) {
		return NewGraphicsServer(th, h.c, opts.factory), nil
	})
	require.NoError(t, err)
	h.audio, err = thread.AttachModule(mk(thread.Audio, thread.TypeStandard), func(th *thread.Thread) (*AudioServer, error) {
		return NewAudioServer(th, h.c), nil
	})
	require.NoError(t, err)
	h.media, err = thread.AttachModule(mk(thread.Media, thread.TypeStandard), func(th *thread.Thread) (*MediaServer, error) {
		return NewMediaServer(th, h.c), nil
	})
	require.NoError(t, err)
	h.net, err = thread.AttachModule(mk(thread.NetworkWrite, thread.TypeStandard), func(th *thread.Thread) (*NetworkWriter, error) {
		return NewNetworkWriter(th, h.c, ""), nil
	})
	require.NoError(t, err)
	h.dyn, err = thread.AttachModule(mk(thread.Dynamics, thread.TypeStandard), func(th *thread.Thread) (*Dynamics, error) {
		return NewDynamics(th, h.c), nil
	})
	require.NoError(t, err)

	require.NoError(t, h.c.SetAccount(foundation.NewAccount()))
	require.NoError(t, h.c.SetUtils(foundation.NewUtils()))
	require.NoError(t, h.c.SetGame(h.game))
	require.NoError(t, h.c.SetGraphicsServer(h.gfx))
	require.NoError(t, h.c.SetAudioServer(h.audio))
	require.NoError(t, h.c.SetMediaServer(h.media))
	require.NoError(t, h.c.SetNetworkWriter(h.net))
	require.NoError(t, h.c.SetDynamics(h.dyn))

	if opts.stdin != nil {
		h.stdin, err = thread.AttachModule(mk(thread.Stdin, thread.TypeStandard), func(th *thread.Thread) (*StdinReader, error) {
			return NewStdinReader(th, h.c, opts.stdin), nil
		})
		require.NoError(t, err)
		require.NoError(t, h.c.SetStdinReader(h.stdin))
	}

	h.c.MarkBootstrapped()
	go func() {
		h.loop <- h.main.RunEventLoop(context.Background())
		close(h.loopDone)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, reg.Shutdown(ctx))
		select {
		case <-h.loopDone:
		case <-ctx.Done():
		}
		require.NoError(t, h.net.Close())
		if h.stdin != nil {
			<-h.stdin.Done()
		}
	})
	return h
}

func (h *harness) waitSession(t *testing.T) {
	t.Helper()
	select {
	case <-h.game.SessionStarted():
	case err := <-h.loop:
		require.Failf(t, "main loop ended before session", "err=%v", err)
	case err := <-h.failures:
		require.Failf(t, "worker failure before session", "err=%v", err)
	case <-time.After(3 * time.Second):
		require.Fail(t, "timed out waiting for session")
	}
}
