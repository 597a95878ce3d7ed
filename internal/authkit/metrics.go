package authkit

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricAuthLoginSuccess        = "auth.login.success"
	metricAuthLoginFailure        = "auth.login.failure"
	metricAuthRefreshSuccess      = "auth.refresh.success"
	metricAuthRefreshFailure      = "auth.refresh.failure"
	metricAuthLogoutSuccess       = "auth.logout.success"
	metricAuthLogoutRejected      = "auth.logout.rejected"
	metricAuthRequestIdentified   = "auth.request.identified"
	metricAuthRequestAnonymous    = "auth.request.anonymous"
	metricAuthHandshakeAccepted   = "auth.handshake.accepted"
	metricAuthHandshakeRejected   = "auth.handshake.rejected"
	metricAuthRevocationLookupErr = "auth.revocation.lookup_error"
)

// MetricsRecorder increments counters for auth events.
type MetricsRecorder interface {
	Increment(event string)
}

type noopMetrics struct{}

func (noopMetrics) Increment(string) {}

// PrometheusMetrics exports auth events as a labelled Prometheus counter.
type PrometheusMetrics struct {
	events *prometheus.CounterVec
}

// NewPrometheusMetrics registers the auth event counter on registerer (the default registerer when nil).
// Registering twice reuses the existing collector.
func NewPrometheusMetrics(registerer prometheus.Registerer) (*PrometheusMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokengate_auth_events_total",
		Help: "Authentication lifecycle events by outcome",
	}, []string{"event"})
	if err := registerer.Register(events); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if !errors.As(err, &alreadyRegistered) {
			return nil, err
		}
		existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		events = existing
	}
	return &PrometheusMetrics{events: events}, nil
}

// Increment increases the counter for the given event.
func (recorder *PrometheusMetrics) Increment(event string) {
	recorder.events.WithLabelValues(event).Inc()
}
