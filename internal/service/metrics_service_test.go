package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceCountsPipelineEvents(t *testing.T) {
	m := NewMetricsService()

	m.RecordChatTurn(turnModeStream, turnOutcomeOK)
	m.RecordChatTurn(turnModeStream, turnOutcomeOK)
	m.RecordGateDecision("intent", "fallback")
	m.ObserveGeneration("ollama", "gpt-oss:20b", "chat", 2*time.Second, errors.New("boom"))
	m.RecordUpload("ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.chatTurns.WithLabelValues("stream", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateDecisions.WithLabelValues("intent", "fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("ok")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "eagledocs_generation_duration_seconds_count{backend=\"ollama\",operation=\"chat\",status=\"error\"} 1"))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordChatTurn("blocking", "ok")
	m.ObserveHTTPRequest(http.MethodGet, "/health", 200, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
