package logging

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// historyLimit bounds the in-memory copy of recent diagnostics attached to crash reports.
const historyLimit = 64

// ServerSink receives diagnostics flagged for upload.
type ServerSink interface {
	Submit(message string)
}

var (
	sinkMu sync.RWMutex
	sink   ServerSink

	historyMu sync.Mutex
	history   []string
)

// SetServerSink installs the destination for to_server diagnostics; nil removes it.
func SetServerSink(s ServerSink) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = s
}

// Log is the human-visible diagnostic passthrough. Every message is kept in the
// recent history; toStdout routes it to the console logger and toServer to the
// installed sink.
func Log(message string, toStdout, toServer bool) {
	remember(message)
	if toStdout {
		log.Info().Msg(message)
	}
	if toServer {
		sinkMu.RLock()
		s := sink
		sinkMu.RUnlock()
		if s != nil {
			s.Submit(message)
		}
	}
}

// RecentHistory returns a copy of the most recent diagnostics, oldest first.
func RecentHistory() []string {
	historyMu.Lock()
	defer historyMu.Unlock()
	out := make([]string, len(history))
	copy(out, history)
	return out
}

func remember(message string) {
	historyMu.Lock()
	defer historyMu.Unlock()
	if len(history) == historyLimit {
		copy(history, history[1:])
		history = history[:historyLimit-1]
	}
	history = append(history, message)
}

func Debugf(format string, args ...any) {
	log.Debug().Msgf(format, args...)
}

func Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	remember(msg)
	log.Info().Msg(msg)
}

func Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	remember(msg)
	log.Warn().Msg(msg)
}

func Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	remember(msg)
	log.Error().Msg(msg)
}

// Logf writes an unleveled line; used by tests to annotate what they exercised.
func Logf(format string, args ...any) {
	log.Log().Msgf(format, args...)
}
