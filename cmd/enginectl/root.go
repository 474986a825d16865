package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danmuck/enginecore/internal/blessing"
	"github.com/danmuck/enginecore/internal/bootstrap"
	"github.com/danmuck/enginecore/internal/config"
	"github.com/danmuck/enginecore/internal/core"
	logs "github.com/danmuck/enginecore/internal/logging"
)

// errStartup marks a failure already reported through the fatal path.
var errStartup = errors.New("enginectl: startup failed")

type flags struct {
	config       string
	scriptsDir   string
	metricsAddr  string
	headless     bool
	stdin        bool
	externalPump bool
}

func newRootCmd(code *int) *cobra.Command {
	var f flags
	var env config.Env

	root := &cobra.Command{
		Use:           "enginectl",
		Short:         "Run the engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logs.ConfigureRuntime()
			loaded, err := config.LoadEnv()
			if err != nil {
				*code = bootstrap.New(bootstrap.Options{Env: config.DefaultEnv()}).Fail(err)
				return fmt.Errorf("%w: %w", errStartup, err)
			}
			env = applyFlags(cmd, loaded, f)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = runEngine(env, append([]string{cmd.CommandPath()}, args...))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&f.config, "config", "", "path to the app config (TOML)")
	root.PersistentFlags().StringVar(&f.scriptsDir, "scripts-dir", "", "load scripts from this directory instead of the shipped content")
	root.PersistentFlags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	root.PersistentFlags().BoolVar(&f.headless, "headless", false, "run without the dynamics thread")
	root.PersistentFlags().BoolVar(&f.stdin, "stdin", false, "read developer commands from stdin")
	root.PersistentFlags().BoolVar(&f.externalPump, "external-pump", false, "drive the main thread by pumping instead of the blocking loop")

	root.AddCommand(newVersionCmd())
	return root
}

// applyFlags overlays explicitly set flags onto the environment.
func applyFlags(cmd *cobra.Command, env config.Env, f flags) config.Env {
	pf := cmd.Flags()
	if pf.Changed("config") {
		env.ConfigPath = f.config
	}
	if pf.Changed("scripts-dir") {
		env.ScriptsDir = f.scriptsDir
	}
	if pf.Changed("metrics-addr") {
		env.MetricsAddr = f.metricsAddr
	}
	if pf.Changed("headless") {
		env.Headless = f.headless
	}
	if pf.Changed("stdin") {
		env.Stdin = f.stdin
	}
	if pf.Changed("external-pump") {
		env.ExternalPump = f.externalPump
	}
	return env
}

func runEngine(env config.Env, args []string) int {
	o := bootstrap.New(bootstrap.Options{Env: env})
	code := o.Run(args)
	if env.ExternalPump && code == 0 {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		code = o.Pump(ctx, 10*time.Millisecond)
	}
	return code
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version, build number and blessing state",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(
				cmd.OutOrStdout(),
				"enginectl %s (build %d) blessed=%v\n",
				core.AppVersion,
				core.AppBuildNumber,
				blessing.New(nil).IsUnmodifiedBlessedBuild(),
			)
			return err
		},
	}
}

func execute(args []string) int {
	// The crash-test hook fires before flags, env parsing or logging exist.
	if os.Getenv(config.EnvCrashTest) == "1" {
		return bootstrap.Run(args, bootstrap.Options{Env: config.DefaultEnv()})
	}
	code := 0
	root := newRootCmd(&code)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if errors.Is(err, errStartup) {
			return code
		}
		fmt.Fprintf(os.Stderr, "enginectl: %v\n", err)
		return 1
	}
	return code
}
