package modules

import (
	"context"
	"io/fs"

	"github.com/danmuck/enginecore/internal/blessing"
	"github.com/danmuck/enginecore/internal/core"
	logs "github.com/danmuck/enginecore/internal/logging"
	"github.com/danmuck/enginecore/internal/thread"
)

// MediaServer owns media decoding; here it only hashes shipped content.
type MediaServer struct {
	base
}

func NewMediaServer(t *thread.Thread, c *core.Context) *MediaServer {
	return &MediaServer{base: newBase("media_server", t, c)}
}

// PushComputeBlessingHash hashes content on the media thread and records the
// result in Globals. Only the first computed hash is kept.
func (m *MediaServer) PushComputeBlessingHash(content fs.FS) error {
	return m.push(func(ctx context.Context) error {
		if err := m.on(ctx); err != nil {
			return err
		}
		sum, err := blessing.ComputeHash(content)
		if err != nil {
			return err
		}
		stored := m.c.Globals.SetCalculatedBlessingHash(sum)
		logs.Infof("modules.MediaServer.ComputeBlessingHash hash=%s stored=%v", sum, stored)
		return nil
	})
}

var _ core.MediaServer = (*MediaServer)(nil)
