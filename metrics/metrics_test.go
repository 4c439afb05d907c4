package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Decision("pending")
	m.Decision("pending")
	m.Decision("waitlist")
	m.StoreConflict()
	m.ReportRun("delivered")
	m.ObserveHTTP(http.MethodPost, "/api/requests", 201, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AdmissionDecisions.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdmissionDecisions.WithLabelValues("waitlist")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportRuns.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/requests", "201")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Decision("rejected")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `planner_admission_decisions_total{outcome="rejected"} 1`))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// two instances must not collide on registration
	a, b := New(), New()
	a.StoreConflict()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.StoreConflicts))
}
