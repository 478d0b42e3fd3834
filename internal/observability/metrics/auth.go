// Package metrics exposes Prometheus instruments for the session layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	obserrors "github.com/target/quiz-ui/internal/observability/errors"
	"github.com/target/quiz-ui/internal/observability/statsd"
)

// Result constants for metric labels.
const (
	ResultSuccess    = "success"
	ResultError      = "error"
	ResultSuperseded = "superseded"
)

// Auth operation names.
const (
	OpLogin        = "login"
	OpRegister     = "register"
	OpRefresh      = "refresh"
	OpLogout       = "logout"
	OpUnauthorized = "unauthorized"
)

// AuthMetrics tracks auth operation outcomes and session transitions.
// A nil *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	SessionCleared    *prometheus.CounterVec
	Authenticated     prometheus.Gauge
	StorageEvents     prometheus.Counter

	// Mirror, when set, receives every measurement as well.
	Mirror statsd.Sink
}

// NewAuthMetrics registers the auth instruments with reg. A nil reg uses the default registerer.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &AuthMetrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_ui_auth_operations_total",
			Help: "Auth operations by operation, result and error class",
		}, []string{"op", "result", "error_class"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quiz_ui_auth_operation_duration_seconds",
			Help:    "Duration of auth backend round trips",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		SessionCleared: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_ui_session_cleared_total",
			Help: "Session clears by reason",
		}, []string{"reason"}),
		Authenticated: f.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_ui_session_authenticated",
			Help: "1 when this instance holds an identity, 0 otherwise",
		}),
		StorageEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "quiz_ui_storage_events_total",
			Help: "Storage change events received from other instances",
		}),
	}
}

// ObserveOperation records one auth operation started at start.
func (m *AuthMetrics) ObserveOperation(op string, start time.Time, result string, err error) {
	if m == nil {
		return
	}
	class := ""
	if err != nil && result == ResultError {
		class = obserrors.Classify(err)
	}
	elapsed := time.Since(start)
	m.Operations.WithLabelValues(op, result, class).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())

	if m.Mirror != nil {
		tags := map[string]string{"op": op, "result": result}
		if class != "" {
			tags["error_class"] = class
		}
		m.Mirror.Count("auth.operation", 1, tags)
		m.Mirror.Timing("auth.operation.duration", elapsed, map[string]string{"op": op})
	}
}

// SessionClearedBy records a session clear.
func (m *AuthMetrics) SessionClearedBy(reason string) {
	if m == nil {
		return
	}
	m.SessionCleared.WithLabelValues(reason).Inc()
	if m.Mirror != nil {
		m.Mirror.Count("session.cleared", 1, map[string]string{"reason": reason})
	}
}

// SetAuthenticated records whether an identity is present.
func (m *AuthMetrics) SetAuthenticated(ok bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	m.Authenticated.Set(v)
	if m.Mirror != nil {
		m.Mirror.Gauge("session.authenticated", v, nil)
	}
}

// StorageEvent records one cross-instance storage event.
func (m *AuthMetrics) StorageEvent() {
	if m == nil {
		return
	}
	m.StorageEvents.Inc()
	if m.Mirror != nil {
		m.Mirror.Count("storage.events", 1, nil)
	}
}
