package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCounters(t *testing.T) {
	m := New()

	m.ObserveTurn("completed", 2*time.Second)
	m.ObserveTurn("completed", time.Second)
	m.ObserveTurn("rate_limited", time.Second)
	m.ObserveTool("list_offers", "ok", 10*time.Millisecond)
	m.ObserveStructured("marketing_copy", "schema_validation_error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("list_offers", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.structured.WithLabelValues("marketing_copy", "schema_validation_error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("completed", time.Second)
	m.ObserveProviderRequest("ok")
	m.ObserveTool("x", "ok", time.Millisecond)
	m.ObserveStructured("s", "ok")
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveProviderRequest("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "twin_provider_requests_total"))
}
