// Package fatal is the single choke point for unrecoverable conditions.
//
// Ownership boundary:
// - fatal report format
//
// - crash file emission
//
// - clean-exit vs abnormal-termination decision
//
// Every fatal condition, whether raised at runtime or caught at the top-level
// bootstrap boundary, is reported exactly once through a Reporter.
package fatal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	logs "github.com/danmuck/enginecore/internal/logging"
	"github.com/danmuck/enginecore/internal/observability"
	"github.com/danmuck/enginecore/internal/thread"
)

const (
	OriginRuntime  = "runtime"
	OriginTopLevel = "top_level"
)

// ErrReported marks an error whose fatal condition has already been reported.
// Boundaries that see it must not report again.
var ErrReported = errors.New("fatal: already reported")

// Report is one fatal condition as recorded by ReportFatalError.
type Report struct {
	ID         string    `toml:"id"`
	Message    string    `toml:"message"`
	Origin     string    `toml:"origin"`
	Thread     string    `toml:"thread"`
	RealTimeMS int64     `toml:"real_time_ms"`
	Time       time.Time `toml:"time"`
	Stack      string    `toml:"stack"`
	RecentLogs []string  `toml:"recent_logs"`
	ServerLog  []string  `toml:"server_log"`
}

// serverLogLimit bounds the diagnostics kept for upload with the next report.
const serverLogLimit = 32

// Handler gets a chance to intercept a reported fatal error (user dialog,
// telemetry upload). Returning true means the handler took care of it.
type Handler interface {
	HandleFatalError(report Report, exitCleanly bool) bool
}

type HandlerFunc func(report Report, exitCleanly bool) bool

func (f HandlerFunc) HandleFatalError(report Report, exitCleanly bool) bool {
	return f(report, exitCleanly)
}

// Classifier decides whether a clean exit is allowed.
type Classifier interface {
	IsUnmodifiedBlessedBuild() bool
}

// Abort is the panic value used for abnormal termination. It is terminal:
// recovery boundaries re-raise it without reporting again.
type Abort struct {
	Report Report
}

func (a *Abort) Error() string {
	return "fatal: abnormal termination: " + a.Report.Message
}

func (a *Abort) Terminal() bool { return true }

type Options struct {
	Handler    Handler
	Classifier Classifier
	// Exit defaults to os.Exit.
	Exit func(code int)
	// CrashDir receives one crash-<id>.toml per report when set.
	CrashDir string
	// RealTime stamps reports with process real time when set.
	RealTime func() int64
}

type Reporter struct {
	mu         sync.Mutex
	handler    Handler
	classifier Classifier
	exit       func(code int)
	crashDir   string
	realTime   func() int64
	last       *Report
	count      int
	serverLog  []string
}

func NewReporter(opts Options) *Reporter {
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	return &Reporter{
		handler:    opts.Handler,
		classifier: opts.Classifier,
		exit:       opts.Exit,
		crashDir:   opts.CrashDir,
		realTime:   opts.RealTime,
	}
}

// SetClassifier replaces the classifier once richer process state exists.
func (r *Reporter) SetClassifier(c Classifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifier = c
}

func (r *Reporter) SetRealTime(fn func() int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.realTime = fn
}

func (r *Reporter) SetHandler(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Submit keeps a diagnostic flagged for the server so the next report carries
// it. A Reporter installed with logging.SetServerSink receives every
// to_server message.
func (r *Reporter) Submit(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.serverLog) == serverLogLimit {
		r.serverLog = append(r.serverLog[:0], r.serverLog[1:]...)
	}
	r.serverLog = append(r.serverLog, message)
}

// Blessed reports whether a clean exit is allowed. No classifier means no.
func (r *Reporter) Blessed() bool {
	r.mu.Lock()
	c := r.classifier
	r.mu.Unlock()
	return c != nil && c.IsUnmodifiedBlessedBuild()
}

func (r *Reporter) ReportFatalError(message string, inTopLevelHandler bool) Report {
	return r.ReportFatalErrorContext(context.Background(), message, inTopLevelHandler)
}

// ReportFatalErrorContext records and emits one report. It never exits.
func (r *Reporter) ReportFatalErrorContext(ctx context.Context, message string, inTopLevelHandler bool) Report {
	origin := OriginRuntime
	if inTopLevelHandler {
		origin = OriginTopLevel
	}
	rep := Report{
		ID:         uuid.NewString(),
		Message:    message,
		Origin:     origin,
		Thread:     thread.CurrentName(ctx),
		Time:       time.Now().UTC(),
		Stack:      string(debug.Stack()),
		RecentLogs: logs.RecentHistory(),
	}

	r.mu.Lock()
	if r.realTime != nil {
		rep.RealTimeMS = r.realTime()
	}
	rep.ServerLog = append([]string(nil), r.serverLog...)
	r.last = &rep
	r.count++
	crashDir := r.crashDir
	r.mu.Unlock()

	// WithLevel does not exit, unlike log.Fatal.
	log.WithLevel(zerolog.FatalLevel).
		Str("report_id", rep.ID).
		Str("origin", rep.Origin).
		Str("thread", rep.Thread).
		Int64("real_time_ms", rep.RealTimeMS).
		Msg("FATAL ERROR: " + rep.Message)
	observability.RecordFatalReport(origin)

	if crashDir != "" {
		if path, err := writeCrashFile(crashDir, rep); err != nil {
			logs.Errorf("fatal.Reporter.ReportFatalError crash file failed dir=%q err=%v", crashDir, err)
		} else {
			logs.Infof("fatal.Reporter.ReportFatalError crash file written path=%q", path)
		}
	}
	return rep
}

// HandleFatalError offers the last report to the installed handler.
func (r *Reporter) HandleFatalError(exitCleanly, inTopLevelHandler bool) bool {
	r.mu.Lock()
	rep := r.last
	r.mu.Unlock()
	if rep == nil {
		return false
	}
	return r.handle(*rep, exitCleanly, inTopLevelHandler)
}

func (r *Reporter) handle(rep Report, exitCleanly, inTopLevelHandler bool) bool {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h == nil {
		return false
	}
	handled := h.HandleFatalError(rep, exitCleanly)
	logs.Debugf(
		"fatal.Reporter.HandleFatalError report_id=%s handled=%v exit_cleanly=%v top_level=%v",
		rep.ID,
		handled,
		exitCleanly,
		inTopLevelHandler,
	)
	return handled
}

func (r *Reporter) FatalError(message string) {
	r.FatalErrorContext(context.Background(), message)
}

// FatalErrorContext is the runtime fatal entry point. It returns only if a
// handler intercepted the error or the configured exit function returned.
func (r *Reporter) FatalErrorContext(ctx context.Context, message string) {
	r.fatal(ctx, message, false)
}

// TopLevelFatalContext is FatalErrorContext for a failure caught at the
// outermost boundary.
func (r *Reporter) TopLevelFatalContext(ctx context.Context, message string) {
	r.fatal(ctx, message, true)
}

// fatal hands the handler the report it just made, never r.last, so an
// interleaved fatal from another thread cannot swap it out.
func (r *Reporter) fatal(ctx context.Context, message string, inTopLevelHandler bool) {
	rep := r.ReportFatalErrorContext(ctx, message, inTopLevelHandler)
	exitCleanly := r.Blessed()
	if r.handle(rep, exitCleanly, inTopLevelHandler) {
		return
	}
	r.Terminate(rep, exitCleanly)
}

// Terminate applies the exit decision: exit(1) when clean, otherwise an
// Abort panic.
func (r *Reporter) Terminate(rep Report, exitCleanly bool) {
	if exitCleanly {
		r.mu.Lock()
		exit := r.exit
		r.mu.Unlock()
		exit(1)
		return
	}
	panic(&Abort{Report: rep})
}

// Count returns the number of reports emitted.
func (r *Reporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// LastReport returns the most recent report.
func (r *Reporter) LastReport() (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Report{}, false
	}
	return *r.last, true
}

func writeCrashFile(dir string, rep Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.toml", rep.ID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(rep); err != nil {
		return "", err
	}
	return path, nil
}
