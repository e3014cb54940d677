package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harryosmar/log-visibility/pkg/filter"
	"github.com/harryosmar/log-visibility/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(zap.NewNop(), prometheus.NewRegistry())
}

func TestObserveDecision(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveDecision(models.NewRecord("a", "INFO"), true)
	m.ObserveDecision(models.NewRecord("b", "DEBUG"), false)
	m.ObserveDecision(models.Record{Force: true}, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsPassed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsForced))
}

func TestObservePolicy(t *testing.T) {
	m := newTestMetrics(t)

	f := filter.NewVisibilityFilter()
	f.HideAll()
	f.AlsoShow("ERROR")
	f.AlsoShow("WARN")
	m.ObservePolicy(f.Snapshot())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyChanges))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PolicyExceptions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyHideAll))

	f.ShowAll()
	m.ObservePolicy(f.Snapshot())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PolicyExceptions))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PolicyHideAll))
}

func TestSetPolicy_DoesNotCountChange(t *testing.T) {
	m := newTestMetrics(t)

	f := filter.NewVisibilityFilter()
	f.HideAll()
	f.AlsoShow("ERROR")
	m.SetPolicy(f.Snapshot())

	assert.Equal(t, 0.0, testutil.ToFloat64(m.PolicyChanges))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyExceptions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyHideAll))
}

func TestHandler_Endpoints(t *testing.T) {
	m := newTestMetrics(t)
	m.IncLinesProcessed()
	m.SetControlHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "logger_lines_total 1")

	resp, err = http.Get(srv.URL + "/api/policy")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}
