package main

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/danmuck/enginecore/internal/config"
	"github.com/danmuck/enginecore/internal/core"
	"github.com/danmuck/enginecore/internal/testutil/testlog"
)

const helperEnv = "ENGINECTL_TEST_HELPER"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		os.Exit(execute([]string{}))
	}
	os.Exit(m.Run())
}

// runHelper re-executes the test binary as enginectl with extra env and
// returns its combined output. The process must exit non-zero.
func runHelper(t *testing.T, env ...string) string {
	t.Helper()
	cmd := exec.Command(os.Args[0])
	cmd.Env = append(append(os.Environ(), helperEnv+"=1"), env...)
	var out bytes.Buffer
	cmd.Stderr = &out
	cmd.Stdout = &out

	err := cmd.Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected non-zero exit, got err=%v output=%s", err, out.String())
	}
	if exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code")
	}
	return out.String()
}

func TestCrashTestTerminatesAbnormally(t *testing.T) {
	testlog.Start(t)
	out := runHelper(t, config.EnvCrashTest+"=1", "ENGINE_HEADLESS=1")
	if !strings.Contains(out, "Fatal-Error-Test") {
		t.Fatalf("expected crash-test report in output: %s", out)
	}
}

func TestCrashTestFiresBeforeEnvParsing(t *testing.T) {
	testlog.Start(t)
	out := runHelper(t, config.EnvCrashTest+"=1", "ENGINE_HEADLESS=maybe")
	if !strings.Contains(out, "Fatal-Error-Test") {
		t.Fatalf("crash-test report missing with a malformed env: %s", out)
	}
	if strings.Contains(out, "parse env") {
		t.Fatalf("env was parsed ahead of the crash-test hook: %s", out)
	}
}

func TestMalformedEnvIsReportedAsFatal(t *testing.T) {
	testlog.Start(t)
	out := runHelper(t, "ENGINE_HEADLESS=maybe")
	if !strings.Contains(out, "FATAL ERROR: Startup failed: parse env") {
		t.Fatalf("expected a fatal report for the env failure: %s", out)
	}
	if strings.Count(out, "FATAL ERROR:") != 1 {
		t.Fatalf("expected exactly one fatal report: %s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	testlog.Start(t)
	code := 0
	root := newRootCmd(&code)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), core.AppVersion) {
		t.Fatalf("unexpected version output %q", out.String())
	}
	if !strings.Contains(out.String(), "blessed=false") {
		t.Fatalf("unstamped builds are not blessed: %q", out.String())
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	testlog.Start(t)
	code := 0
	root := newRootCmd(&code)
	if err := root.ParseFlags([]string{"--config", "alt.toml", "--headless"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	env := applyFlags(root, config.DefaultEnv(), flags{config: "alt.toml", headless: true})
	if env.ConfigPath != "alt.toml" || !env.Headless {
		t.Fatalf("flags not applied: %+v", env)
	}
	if env.ScriptsDir != "" || env.Stdin {
		t.Fatalf("unset flags must keep env values: %+v", env)
	}
}
