package modules

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/danmuck/enginecore/internal/core"
	logs "github.com/danmuck/enginecore/internal/logging"
	"github.com/danmuck/enginecore/internal/thread"
)

// StdinReader forwards developer command lines to the game thread. The
// blocking read runs on a helper goroutine; each line is handed to the stdin
// thread, which relays it to the game.
type StdinReader struct {
	base
	in io.Reader

	startOnce sync.Once
	done      chan struct{}
}

func NewStdinReader(t *thread.Thread, c *core.Context, in io.Reader) *StdinReader {
	return &StdinReader{base: newBase("stdin", t, c), in: in, done: make(chan struct{})}
}

// Done is closed when the input is exhausted or the thread stops.
func (s *StdinReader) Done() <-chan struct{} { return s.done }

func (s *StdinReader) OnLoopStart(ctx context.Context) {
	s.base.OnLoopStart(ctx)
	s.startOnce.Do(func() {
		go s.scan()
	})
}

func (s *StdinReader) scan() {
	defer close(s.done)
	if s.in == nil {
		return
	}
	sc := bufio.NewScanner(s.in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := s.push(func(ctx context.Context) error {
			game, err := s.c.RequireGame(ctx)
			if err != nil {
				return err
			}
			return game.PushCommand(line)
		}); err != nil {
			logs.Debugf("modules.StdinReader.scan stop err=%v", err)
			return
		}
	}
	if err := sc.Err(); err != nil {
		logs.Warnf("modules.StdinReader.scan read failed err=%v", err)
	}
}
