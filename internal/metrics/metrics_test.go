package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncAppended("audio")
	m.IncAppended("audio")
	m.IncDropped("video", ReasonNotReady)
	m.IncSessions(ResultCompleted)
	m.SetRecording(true)

	body := scrape(t, m)
	assert.Contains(t, body, `recorder_samples_appended_total{kind="audio"} 2`)
	assert.Contains(t, body, `recorder_samples_dropped_total{kind="video",reason="not_ready"} 1`)
	assert.Contains(t, body, `recorder_sessions_total{result="completed"} 1`)
	assert.Contains(t, body, "recorder_recording 1")

	m.SetRecording(false)
	assert.Contains(t, scrape(t, m), "recorder_recording 0")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncAppended("audio")
		m.IncDropped("audio", ReasonRemap)
		m.IncSessions(ResultFailed)
		m.SetRecording(true)
		m.ObserveFinalize(time.Second)
	})
}

func TestFinalizeHistogram(t *testing.T) {
	m := New()
	m.ObserveFinalize(50 * time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, "recorder_finalize_seconds_count 1")
	assert.NotNil(t, m.Registry())
}
