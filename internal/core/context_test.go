package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/enginecore/internal/config"
	"github.com/danmuck/enginecore/internal/fatal"
	"github.com/danmuck/enginecore/internal/foundation"
	"github.com/danmuck/enginecore/internal/testutil/testlog"
	"github.com/danmuck/enginecore/internal/thread"
)

type stubModule struct {
	name string
	t    *thread.Thread
}

func (s *stubModule) ModuleName() string              { return s.name }
func (s *stubModule) OnLoopStart(ctx context.Context) {}
func (s *stubModule) Thread() *thread.Thread          { return s.t }

type stubGame struct {
	stubModule
	messages []string
}

func (g *stubGame) PushApplyConfigCall() error { return nil }
func (g *stubGame) PushScreenMessage(message string, color Color) error {
	g.messages = append(g.messages, message)
	return nil
}
func (g *stubGame) PushScreenCreated(Screen) error { return nil }
func (g *stubGame) PushCommand(string) error       { return nil }

type stubGraphics struct{ stubModule }

func (g *stubGraphics) PushCreateScreen(config.ScreenSettings) error { return nil }
func (g *stubGraphics) Screen() (Screen, bool)                       { return Screen{}, false }

type stubAudio struct{ stubModule }

func (a *stubAudio) PushSetVolume(float64) error { return nil }

type stubNet struct{ stubModule }

func (n *stubNet) PushSendTo(string, []byte) error { return nil }

type stubPlatform struct {
	ticks  int64
	custom bool
}

func (p *stubPlatform) PostInit() error                       { return nil }
func (p *stubPlatform) CreateApp(*Context) (App, error)       { return nil, nil }
func (p *stubPlatform) CreateAuxiliaryModules(*Context) error { return nil }
func (p *stubPlatform) OnBootstrapComplete(*Context) error    { return nil }
func (p *stubPlatform) WillExitMain(bool)                     {}
func (p *stubPlatform) Ticks() int64                          { return p.ticks }
func (p *stubPlatform) UniqueDeviceIdentifier() string        { return "device" }
func (p *stubPlatform) UsingCustomScriptsDir() bool           { return p.custom }

func newTestContext(t *testing.T) *Context {
	t.Helper()
	reg := thread.NewRegistry(thread.DefaultConfig())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := reg.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return NewContext([]string{"enginectl"}, reg, fatal.NewReporter(fatal.Options{}))
}

func mustThread(t *testing.T, c *Context, id thread.Identifier, typ thread.Type) *thread.Thread {
	t.Helper()
	th, err := c.Threads.CreateThread(id, typ)
	if err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	return th
}

func TestThreadPredicatesFalseBeforeModulesExist(t *testing.T) {
	testlog.Start(t)
	var nilCtx *Context
	if nilCtx.InMainThread(context.Background()) {
		t.Fatalf("nil context must report false")
	}

	c := newTestContext(t)
	game := mustThread(t, c, thread.Game, thread.TypeStandard)
	ctx := thread.WithCurrent(context.Background(), game)

	checks := map[string]func(context.Context) bool{
		"main":     c.InMainThread,
		"game":     c.InGameThread,
		"graphics": c.InGraphicsThread,
		"audio":    c.InAudioThread,
		"media":    c.InMediaThread,
		"net":      c.InNetworkWriteThread,
		"dynamics": c.InDynamicsThread,
	}
	for name, check := range checks {
		if check(ctx) {
			t.Fatalf("%s predicate true before module attach", name)
		}
	}
}

func TestThreadPredicatesMatchOnlyOwningThread(t *testing.T) {
	testlog.Start(t)
	c := newTestContext(t)
	main := mustThread(t, c, thread.Main, thread.TypeMain)
	game := mustThread(t, c, thread.Game, thread.TypeStandard)
	audio := mustThread(t, c, thread.Audio, thread.TypeStandard)
	netw := mustThread(t, c, thread.NetworkWrite, thread.TypeStandard)
	c.Globals.SetMainThread(main)

	_ = c.SetGame(&stubGame{stubModule: stubModule{name: "game", t: game}})
	_ = c.SetGraphicsServer(&stubGraphics{stubModule{name: "graphics", t: main}})
	_ = c.SetAudioServer(&stubAudio{stubModule{name: "audio", t: audio}})
	_ = c.SetNetworkWriter(&stubNet{stubModule{name: "net", t: netw}})

	type row struct {
		th    *thread.Thread
		check func(context.Context) bool
	}
	rows := map[string]row{
		"main":     {main, c.InMainThread},
		"graphics": {main, c.InGraphicsThread},
		"game":     {game, c.InGameThread},
		"audio":    {audio, c.InAudioThread},
		"net":      {netw, c.InNetworkWriteThread},
	}
	all := []*thread.Thread{main, game, audio, netw}
	for name, r := range rows {
		for _, th := range all {
			got := r.check(thread.WithCurrent(context.Background(), th))
			want := th == r.th
			if got != want {
				t.Fatalf("%s predicate from %s: got=%v want=%v", name, th.Name(), got, want)
			}
		}
		if r.check(context.Background()) {
			t.Fatalf("%s predicate true with no current thread", name)
		}
	}
	if c.InMediaThread(thread.WithCurrent(context.Background(), game)) {
		t.Fatalf("media predicate true without media server")
	}

	// Same answer from inside the real worker loop.
	c.MarkBootstrapped()
	result := make(chan [2]bool, 1)
	_ = game.PushCall(func(ctx context.Context) error {
		result <- [2]bool{c.InGameThread(ctx), c.InAudioThread(ctx)}
		return nil
	})
	select {
	case got := <-result:
		if !got[0] || got[1] {
			t.Fatalf("worker loop predicates wrong: %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out")
	}
}

func TestSlotsArePublishedOnce(t *testing.T) {
	testlog.Start(t)
	c := newTestContext(t)
	if err := c.SetAccount(foundation.NewAccount()); err != nil {
		t.Fatalf("set account: %v", err)
	}
	if err := c.SetAccount(foundation.NewAccount()); !errors.Is(err, ErrSubsystemSet) {
		t.Fatalf("expected ErrSubsystemSet, got %v", err)
	}
	if _, ok := c.Utils(); ok {
		t.Fatalf("utils should be empty")
	}
}

func TestRequireBeforeBootstrapIsSoft(t *testing.T) {
	testlog.Start(t)
	c := newTestContext(t)
	_, err := c.RequireGame(context.Background())
	if !errors.Is(err, ErrSubsystemUnavailable) || errors.Is(err, fatal.ErrReported) {
		t.Fatalf("expected unreported ErrSubsystemUnavailable, got %v", err)
	}
	if c.Reporter.Count() != 0 {
		t.Fatalf("missing subsystem before bootstrap must not be fatal")
	}
}

func TestRequireAfterBootstrapIsFatal(t *testing.T) {
	testlog.Start(t)
	c := newTestContext(t)
	c.Reporter.SetHandler(fatal.HandlerFunc(func(fatal.Report, bool) bool { return true }))
	c.MarkBootstrapped()
	_, err := c.RequireGraphicsServer(context.Background())
	if !errors.Is(err, ErrSubsystemUnavailable) || !errors.Is(err, fatal.ErrReported) {
		t.Fatalf("expected reported ErrSubsystemUnavailable, got %v", err)
	}
	if c.Reporter.Count() != 1 {
		t.Fatalf("expected one fatal report, got %d", c.Reporter.Count())
	}
}

func TestScreenMessageRoutesToGameWhenPresent(t *testing.T) {
	testlog.Start(t)
	c := newTestContext(t)
	c.ScreenMessage("lost", White)

	g := &stubGame{stubModule: stubModule{name: "game"}}
	_ = c.SetGame(g)
	c.ScreenMessage("hello", White)
	if len(g.messages) != 1 || g.messages[0] != "hello" {
		t.Fatalf("unexpected messages: %v", g.messages)
	}
}

func TestSessionIdentifierSetOnce(t *testing.T) {
	testlog.Start(t)
	c := newTestContext(t)
	_ = c.SetUtils(foundation.NewUtils())
	first := c.InitSessionIdentifier("device-")
	if !strings.HasPrefix(first, "device-") || len(first) <= len("device-") {
		t.Fatalf("unexpected session id %q", first)
	}
	if again := c.InitSessionIdentifier("other-"); again != first {
		t.Fatalf("session id changed: %q -> %q", first, again)
	}
	long := newTestContext(t)
	id := long.InitSessionIdentifier(strings.Repeat("x", 120))
	if len(id) != 120 {
		t.Fatalf("long session ids are kept, got len=%d", len(id))
	}
}

func TestBlessingEvidenceReflectsLiveState(t *testing.T) {
	testlog.Start(t)
	c := newTestContext(t)
	ev := c.BlessingEvidence()
	if ev.UserRanCommands() || ev.UsingCustomScriptsDir() || ev.CalculatedBlessingHash() != "" {
		t.Fatalf("unexpected initial evidence")
	}
	p := &stubPlatform{custom: true}
	_ = c.SetPlatform(p)
	c.Globals.SetUserRanCommands()
	if !c.Globals.SetCalculatedBlessingHash("abc") || c.Globals.SetCalculatedBlessingHash("def") {
		t.Fatalf("blessing hash must be first-write-wins")
	}
	if !ev.UserRanCommands() || !ev.UsingCustomScriptsDir() || ev.CalculatedBlessingHash() != "abc" {
		t.Fatalf("evidence not live")
	}
}

func TestGlobalsClockReadsPlatformTicks(t *testing.T) {
	testlog.Start(t)
	c := newTestContext(t)
	if got := c.Globals.RealTime(); got != 0 {
		t.Fatalf("expected zero before platform, got %d", got)
	}
	p := &stubPlatform{ticks: 100}
	_ = c.SetPlatform(p)
	if got := c.Globals.RealTime(); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	p.ticks = 10_000
	if got := c.Globals.RealTime(); got != 350 {
		t.Fatalf("expected sleep clamp to 350, got %d", got)
	}
}

func TestQuitAndPauseThreads(t *testing.T) {
	testlog.Start(t)
	c := newTestContext(t)
	main := mustThread(t, c, thread.Main, thread.TypeMain)
	audio := mustThread(t, c, thread.Audio, thread.TypeStandard)
	c.Globals.SetMainThread(main)
	c.Globals.AddPausableThread(audio)

	c.Globals.PauseThreads()
	if !audio.Paused() {
		t.Fatalf("expected audio paused")
	}
	c.Globals.ResumeThreads()
	if audio.Paused() {
		t.Fatalf("expected audio resumed")
	}

	c.MarkBootstrapped()
	c.Quit(3)
	if err := main.RunEventLoop(context.Background()); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if c.Globals.ReturnValue() != 3 {
		t.Fatalf("unexpected return value %d", c.Globals.ReturnValue())
	}
}
