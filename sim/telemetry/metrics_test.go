package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveDial(t *testing.T) {
	m := New()

	m.ObserveDial("DIALXFREE", 4)
	m.ObserveDial("DIALXFREE", 0)
	m.ObserveDial("DIALONE", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DialDecisions.WithLabelValues("DIALXFREE")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CallsDialed.WithLabelValues("DIALXFREE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsDialed.WithLabelValues("DIALONE")))
}

func TestMetrics_ObserveFlags(t *testing.T) {
	m := New()

	m.ObserveFlags(true, false, true)
	m.ObserveFlags(true, false, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoutingFlag.WithLabelValues("outbound_to_inbound")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RoutingFlag.WithLabelValues("inbound_to_outbound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlagChanges))
}

func TestMetrics_ObserveStopAndReplication(t *testing.T) {
	m := New()

	m.ObserveStop("threshold-inside-interval", 0.12)
	m.ObserveStop("threshold-outside-interval", 0.03)
	m.ObserveReplication(20 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StopChecks.WithLabelValues("threshold-outside-interval")))
	assert.InDelta(t, 0.03, testutil.ToFloat64(m.IntervalHalfWidth), 1e-12)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReplicationsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ReplicationDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveDial("DIALONE", 1)
	m.ObserveFlags(true, true, true)
	m.ObserveStop("max-reps", 0)
	m.ObserveReplication(time.Second)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveDial("DIAL2XFREE", 8)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `contactsim_dialer_calls_dialed_total{policy="DIAL2XFREE"} 8`)
}
