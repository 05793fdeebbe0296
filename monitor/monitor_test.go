package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMonitor() *Monitor {
	reg := prometheus.NewRegistry()
	return NewMonitorWith("durak", reg, reg)
}

func TestMonitor_Counters(t *testing.T) {
	m := newTestMonitor()

	m.IncOnlinePlayers()
	m.IncOnlinePlayers()
	m.DecOnlinePlayers()
	m.SetActiveRooms(3)
	m.IncGamesStarted()
	m.IncRejected("player_is_not_attacker")
	m.IncRejected("player_is_not_attacker")
	m.IncRejected("invalid_stage")

	metrics := m.Metrics()
	if got := testutil.ToFloat64(metrics.OnlinePlayers); got != 1 {
		t.Errorf("Expected 1 online player, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.ActiveRooms); got != 3 {
		t.Errorf("Expected 3 active rooms, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.GamesStarted); got != 1 {
		t.Errorf("Expected 1 game started, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.RejectedEvents.WithLabelValues("player_is_not_attacker")); got != 2 {
		t.Errorf("Expected 2 rejections, got %v", got)
	}
	if got := testutil.CollectAndCount(metrics.RejectedEvents); got != 2 {
		t.Errorf("Expected 2 rejection codes, got %d", got)
	}
}

func TestMonitor_Handler(t *testing.T) {
	m := newTestMonitor()
	m.ObserveEvent("player_action", 2*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `durak_event_latency_seconds_count{event="player_action"} 1`) {
		t.Errorf("Expected the latency histogram in the output, got:\n%s", rec.Body.String())
	}
}
