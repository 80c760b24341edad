package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
)

func TestContainer(t *testing.T) {
	c := NewContainer()
	assert.Same(t, c, NewContainer())

	sweeps := testutil.ToFloat64(c.Sweeps)
	deleted := testutil.ToFloat64(c.Messages.WithLabelValues("deleted"))
	dropped := testutil.ToFloat64(c.Messages.WithLabelValues("dropped"))
	corrupt := testutil.ToFloat64(c.CorruptDocuments)

	var observer app.Observer = c
	observer.ObserveSweep(app.SweepResult{Due: 3, Deleted: 2, Dropped: 1})
	observer.ObserveSweep(app.SweepResult{})
	observer.ObserveCorruptDocument()

	assert.Equal(t, sweeps+2, testutil.ToFloat64(c.Sweeps))
	assert.Equal(t, deleted+2, testutil.ToFloat64(c.Messages.WithLabelValues("deleted")))
	assert.Equal(t, dropped+1, testutil.ToFloat64(c.Messages.WithLabelValues("dropped")))
	assert.Equal(t, corrupt+1, testutil.ToFloat64(c.CorruptDocuments))

	rec := httptest.NewRecorder()
	NewPrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "autodelete_sweeps_total")
}
