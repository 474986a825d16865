package modules

import (
	"context"
	"math"
	"sync"

	"github.com/danmuck/enginecore/internal/core"
	logs "github.com/danmuck/enginecore/internal/logging"
	"github.com/danmuck/enginecore/internal/thread"
)

type AudioServer struct {
	base

	mu     sync.Mutex
	volume float64
}

func NewAudioServer(t *thread.Thread, c *core.Context) *AudioServer {
	return &AudioServer{base: newBase("audio_server", t, c), volume: 1}
}

// PushSetVolume sets the master volume, clamped to [0,1].
func (a *AudioServer) PushSetVolume(volume float64) error {
	return a.push(func(ctx context.Context) error {
		if err := a.on(ctx); err != nil {
			return err
		}
		if math.IsNaN(volume) {
			volume = 0
		}
		volume = math.Min(1, math.Max(0, volume))
		a.mu.Lock()
		a.volume = volume
		a.mu.Unlock()
		logs.Debugf("modules.AudioServer.SetVolume volume=%.2f", volume)
		return nil
	})
}

func (a *AudioServer) Volume() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volume
}

var _ core.AudioServer = (*AudioServer)(nil)
