package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_ObserveRun(t *testing.T) {
	r := New()
	r.ObserveRun("M1", "E1", "complete")
	r.ObserveRun("M1", "E1", "complete")
	r.ObserveRun("M1", "E1", "SchemaMismatch")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("M1", "E1", "complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("M1", "E1", "SchemaMismatch")))
	assert.Greater(t, testutil.ToFloat64(r.lastSuccess), 0.0)
}

func TestRecorder_ArtifactAndStage(t *testing.T) {
	r := New()
	r.ObserveArtifact("M1", "E1", 6000)
	assert.Equal(t, 6000.0, testutil.ToFloat64(r.artifactBytes.WithLabelValues("M1", "E1")))

	r.ObserveStage("full", 2*time.Second)
	done := r.Time("canary")
	done()
	assert.Equal(t, 2, testutil.CollectAndCount(r.stageDuration))
}

func TestRecorder_Push(t *testing.T) {
	var hits atomic.Int32
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		assert.True(t, strings.HasPrefix(req.URL.Path, "/metrics/job/corvil_extract"))
		data, _ := io.ReadAll(req.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.ObserveRun("M1", "E1", "complete")
	require.NoError(t, r.Push(context.Background(), srv.URL, "corvil_extract"))
	assert.Equal(t, int32(1), hits.Load())
	assert.NotEmpty(t, body)
}

func TestRecorder_PushDisabled(t *testing.T) {
	assert.NoError(t, New().Push(context.Background(), "", "job"))
}

func TestRecorder_PushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "corvil_extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics: push")
}
