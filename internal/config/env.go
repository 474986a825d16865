package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvCrashTest set to "1" raises a fatal error before anything else exists.
// It is read directly by the orchestrator, ahead of Env parsing.
const EnvCrashTest = "ENGINE_CRASH_TEST"

// Env is the process environment surface.
type Env struct {
	ConfigPath   string        `env:"ENGINE_CONFIG" envDefault:"enginecore.toml"`
	ScriptsDir   string        `env:"ENGINE_SCRIPTS_DIR"`
	CrashDir     string        `env:"ENGINE_CRASH_DIR"`
	MetricsAddr  string        `env:"ENGINE_METRICS_ADDR"`
	BacklogWarn  int           `env:"ENGINE_THREAD_BACKLOG_WARN" envDefault:"1024"`
	Headless     bool          `env:"ENGINE_HEADLESS"`
	Stdin        bool          `env:"ENGINE_STDIN"`
	ExternalPump bool          `env:"ENGINE_EXTERNAL_PUMP"`
	PumpTimeout  time.Duration `env:"ENGINE_PUMP_TIMEOUT" envDefault:"5s"`
}

// LoadEnv parses Env from the process environment.
func LoadEnv() (Env, error) {
	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// DefaultEnv is Env with every default applied and nothing read from the process.
func DefaultEnv() Env {
	var cfg Env
	// Only envDefault tags apply with an empty environment map.
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	return cfg
}
