package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTrack(t *testing.T) {
	before := testutil.ToFloat64(trackedFrames.WithLabelValues("ready"))
	ObserveTrack(5*time.Millisecond, true, true)
	assert.InDelta(t, before+1, testutil.ToFloat64(trackedFrames.WithLabelValues("ready")), 1e-9)

	before = testutil.ToFloat64(trackedFrames.WithLabelValues("unsnapped"))
	ObserveTrack(time.Millisecond, false, false)
	assert.InDelta(t, before+1, testutil.ToFloat64(trackedFrames.WithLabelValues("unsnapped")), 1e-9)
}

func TestObserveIterationAndPoints(t *testing.T) {
	before := testutil.ToFloat64(optimizerIterations.WithLabelValues("2", "reject"))
	ObserveIteration(2, false)
	ObserveIteration(2, true)
	assert.InDelta(t, before+1, testutil.ToFloat64(optimizerIterations.WithLabelValues("2", "reject")), 1e-9)

	SetGoodPoints(0, 1234)
	assert.InDelta(t, 1234, testutil.ToFloat64(goodPoints.WithLabelValues("0")), 1e-9)
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveAnchor()
	ObserveTrack(time.Millisecond, true, false)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "vioinit_tracked_frames_total")
	assert.Contains(t, string(body), "vioinit_anchor_frames_total")
	assert.Contains(t, string(body), "go_goroutines")
}
