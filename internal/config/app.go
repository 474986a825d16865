package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

var ErrInvalidAppConfig = errors.New("config: invalid app config")

// ScreenSettings describes the initial rendering surface.
type ScreenSettings struct {
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
	Fullscreen bool   `toml:"fullscreen"`
	VSync      string `toml:"vsync"`
	Title      string `toml:"title"`
}

type AudioSettings struct {
	Volume      float64 `toml:"volume"`
	MusicVolume float64 `toml:"music_volume"`
}

// AppConfig is the persisted user configuration the game thread loads and applies.
type AppConfig struct {
	Screen     ScreenSettings `toml:"screen"`
	Audio      AudioSettings  `toml:"audio"`
	PlayerName string         `toml:"player_name"`
}

func DefaultAppConfig() AppConfig {
	return AppConfig{
		Screen: ScreenSettings{
			Width:  1280,
			Height: 720,
			VSync:  "auto",
			Title:  "engine",
		},
		Audio: AudioSettings{
			Volume:      1.0,
			MusicVolume: 1.0,
		},
	}
}

// LoadAppConfig decodes path over DefaultAppConfig, so keys absent from the
// file keep their defaults. When the file does not exist the defaults are
// returned with an error wrapping os.ErrNotExist so callers can treat it as
// soft.
func LoadAppConfig(path string) (AppConfig, error) {
	cfg := DefaultAppConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppConfig(), fmt.Errorf("load app config %s: %w", path, err)
		}
		return AppConfig{}, fmt.Errorf("load app config %s: %w", path, err)
	}
	cfg.Screen.VSync = strings.ToLower(strings.TrimSpace(cfg.Screen.VSync))
	cfg.Screen.Title = strings.TrimSpace(cfg.Screen.Title)
	cfg.PlayerName = strings.TrimSpace(cfg.PlayerName)

	if err := ValidateAppConfig(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func ValidateAppConfig(cfg AppConfig) error {
	if cfg.Screen.Width <= 0 || cfg.Screen.Height <= 0 {
		return fmt.Errorf("%w: screen size %dx%d", ErrInvalidAppConfig, cfg.Screen.Width, cfg.Screen.Height)
	}
	switch cfg.Screen.VSync {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("%w: vsync %q", ErrInvalidAppConfig, cfg.Screen.VSync)
	}
	if !unitInterval(cfg.Audio.Volume) {
		return fmt.Errorf("%w: volume %v", ErrInvalidAppConfig, cfg.Audio.Volume)
	}
	if !unitInterval(cfg.Audio.MusicVolume) {
		return fmt.Errorf("%w: music_volume %v", ErrInvalidAppConfig, cfg.Audio.MusicVolume)
	}
	return nil
}

// unitInterval reports whether v is in [0, 1]. NaN is not.
func unitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// SaveAppConfig writes cfg to path, creating parent directories.
func SaveAppConfig(path string, cfg AppConfig) error {
	if err := ValidateAppConfig(cfg); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save app config %s: %w", path, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save app config %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("save app config %s: %w", path, err)
	}
	return nil
}
