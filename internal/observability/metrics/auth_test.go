package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/quiz-ui/internal/errors"
)

type recordedSample struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

// recordingSink captures mirrored measurements.
type recordingSink struct {
	samples []recordedSample
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.samples = append(r.samples, recordedSample{kind: "c", name: name, value: float64(value), tags: tags})
}

func (r *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	r.samples = append(r.samples, recordedSample{kind: "g", name: name, value: value, tags: tags})
}

func (r *recordingSink) Timing(name string, _ time.Duration, tags map[string]string) {
	r.samples = append(r.samples, recordedSample{kind: "ms", name: name, tags: tags})
}

func TestAuthMetrics_ObserveOperation(t *testing.T) {
	m := NewAuthMetrics(prometheus.NewRegistry())

	m.ObserveOperation(OpLogin, time.Now(), ResultSuccess, nil)
	m.ObserveOperation(OpLogin, time.Now(), ResultError, apperrors.InvalidCredentials("bad"))
	m.ObserveOperation(OpLogin, time.Now(), ResultError, apperrors.InvalidCredentials("bad"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.Operations.WithLabelValues(OpLogin, ResultSuccess, "")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Operations.WithLabelValues(OpLogin, ResultError, "invalid_credentials")), 0)
}

func TestAuthMetrics_Gauges(t *testing.T) {
	m := NewAuthMetrics(prometheus.NewRegistry())

	m.SetAuthenticated(true)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Authenticated), 0)
	m.SetAuthenticated(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Authenticated), 0)

	m.SessionClearedBy("logout")
	m.StorageEvent()
	assert.InDelta(t, 1, testutil.ToFloat64(m.SessionCleared.WithLabelValues("logout")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StorageEvents), 0)
}

func TestAuthMetrics_NilIsNoop(t *testing.T) {
	var m *AuthMetrics
	require.NotPanics(t, func() {
		m.ObserveOperation(OpRefresh, time.Now(), ResultError, nil)
		m.SessionClearedBy("x")
		m.SetAuthenticated(true)
		m.StorageEvent()
	})
}

func TestAuthMetrics_Mirror(t *testing.T) {
	sink := &recordingSink{}
	m := NewAuthMetrics(prometheus.NewRegistry())
	m.Mirror = sink

	m.ObserveOperation(OpLogin, time.Now(), ResultError, apperrors.Network(nil, "down"))
	m.SessionClearedBy("unauthorized")
	m.SetAuthenticated(true)
	m.StorageEvent()

	require.Len(t, sink.samples, 5)
	assert.Equal(t, recordedSample{
		kind: "c", name: "auth.operation", value: 1,
		tags: map[string]string{"op": OpLogin, "result": ResultError, "error_class": "network"},
	}, sink.samples[0])
	assert.Equal(t, "auth.operation.duration", sink.samples[1].name)
	assert.Equal(t, map[string]string{"reason": "unauthorized"}, sink.samples[2].tags)
	assert.Equal(t, recordedSample{kind: "g", name: "session.authenticated", value: 1}, sink.samples[3])
	assert.Equal(t, "storage.events", sink.samples[4].name)
}
