package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")
}

func TestStatsUpdater_IncrDecr(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	for _, m := range Metrics {
		su.RegisterMetric(m)
	}
	su.Run()
	defer su.Stop()

	su.Incr(NumSessions)
	su.Incr(NumSessions)
	su.Decr(NumSessions)
	su.Incr(NumActiveCalls)

	assert.Eventually(t, func() bool {
		return su.Value(NumSessions) == 1 && su.Value(NumActiveCalls) == 1
	}, time.Second, 10*time.Millisecond, "expected counters to be updated")
	assert.Equal(t, int64(0), su.Value("unknown"), "expected unknown metric to read as 0")
}

func TestStatsUpdater_expvarHandler(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.RegisterMetric(NumOnlineUsers)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/vars", nil)
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	var body map[string]any
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Contains(t, body, NumOnlineUsers, "expected registered metric in output")
	assert.Contains(t, body, "Uptime", "expected uptime in output")
}
