package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Save("cloud")
	m.Save("local_fallback")
	m.Synced(true)
	m.Synced(false)
	m.ObserveRemote("read", time.Now(), nil)
	m.ObserveRemote("replace", time.Now(), errors.New("boom"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `quizsync_save_outcomes_total{source="local_fallback"} 1`)
	assert.Contains(t, text, `quizsync_sync_records_total{result="failed"} 1`)
	assert.Contains(t, text, `quizsync_remote_request_duration_seconds_count{op="replace",status="error"} 1`)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Save("cloud")
		m.Synced(true)
		m.ObserveRemote("read", time.Now(), nil)
	})
}
