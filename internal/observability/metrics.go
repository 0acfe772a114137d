// Package observability exposes the pipeline's operational counters on an
// OpenMetrics endpoint.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure kinds recorded on the failures counter.
const (
	FailureDecode        = "unable_to_decode_message"
	FailurePublish       = "publish_failed"
	FailureQueueOverflow = "send_queue_overflow"
	FailureFrame         = "frame_abandoned"
)

// Message kinds recorded on the received counter.
const (
	MessageTrace      = "trace"
	MessageUnexpected = "unexpected"
)

// Metrics is the counter set of the detector subcommands; the simulate
// subcommand does not create one.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived  *prometheus.CounterVec
	MessagesProcessed prometheus.Counter
	Failures          *prometheus.CounterVec
	EventsFound       *prometheus.CounterVec
}

// New registers the counter set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsetrace_messages_received_total",
			Help: "Number of messages received, by kind.",
		}, []string{"kind"}),
		MessagesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pulsetrace_messages_processed_total",
			Help: "Number of messages fully processed and published.",
		}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsetrace_failures_total",
			Help: "Number of failures encountered, by kind.",
		}, []string{"kind"}),
		EventsFound: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsetrace_events_found_total",
			Help: "Number of detector events found, by digitiser.",
		}, []string{"digitiser_id"}),
	}
}

// Serve exposes the metrics endpoint until the context is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
