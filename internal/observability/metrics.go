package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logs "github.com/danmuck/enginecore/internal/logging"
)

var (
	registerOnce sync.Once

	threadCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "thread",
			Name:      "calls_total",
			Help:      "Calls executed by a thread event loop.",
		},
		[]string{"thread"},
	)
	threadCallFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "thread",
			Name:      "call_failures_total",
			Help:      "Calls that returned an error or panicked.",
		},
		[]string{"thread"},
	)
	fatalReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "fatal",
			Name:      "reports_total",
			Help:      "Fatal error reports by origin.",
		},
		[]string{"origin"},
	)
	bootstrapPhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "engine",
			Subsystem: "bootstrap",
			Name:      "phase_duration_seconds",
			Help:      "Wall time spent in each bootstrap phase.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"phase"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(threadCalls, threadCallFailures, fatalReports, bootstrapPhaseDuration)
	})
}

func RecordThreadCall(thread string, failed bool) {
	RegisterMetrics()
	threadCalls.WithLabelValues(thread).Inc()
	if failed {
		threadCallFailures.WithLabelValues(thread).Inc()
	}
}

func RecordFatalReport(origin string) {
	RegisterMetrics()
	fatalReports.WithLabelValues(origin).Inc()
}

func RecordBootstrapPhase(phase string, duration time.Duration) {
	RegisterMetrics()
	bootstrapPhaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// ServeMetrics exposes the default registry on addr until ctx is cancelled.
func ServeMetrics(ctx context.Context, addr string) error {
	RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logs.Infof("observability.ServeMetrics listening addr=%q", addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
