package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperationCountsByOutcome(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.RecordOperation("plant", "update", "ok")
	m.RecordOperation("plant", "update", "ok")
	m.RecordOperation("plant", "update", "conflict")

	assert.InDelta(t, 2, testutil.ToFloat64(m.operationsTotal.WithLabelValues("plant", "update", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operationsTotal.WithLabelValues("plant", "update", "conflict")), 0)
}

func TestHandlerExposesRequests(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.ObserveRequest(http.MethodGet, "/plants", http.StatusOK, 20*time.Millisecond)
	m.RecordDecision("plant", "create", "forbidden")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `plantcare_http_requests_total{method="GET",route="/plants",status_code="200"} 1`)
	assert.Contains(t, rec.Body.String(), `plantcare_access_decisions_total{decision="forbidden",entity="plant",operation="create"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
		m.RecordOperation("plant", "create", "ok")
		m.RecordDecision("plant", "create", "allowed")
	})
}
