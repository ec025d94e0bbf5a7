package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Counters(t *testing.T) {
	m := NewMonitor("cards_test")

	m.IncOnlinePlayers()
	m.IncOnlinePlayers()
	m.DecOnlinePlayers()
	m.SetActiveRooms(3)
	m.IncMessagesReceived("submitCard")
	m.IncMessagesReceived("submitCard")
	m.IncRoundsStarted()
	m.IncGamesFinished("win")
	m.IncRejected("not_judge")
	m.ObserveMessageLatency(time.Millisecond)

	mt := m.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.OnlinePlayers))
	assert.Equal(t, 3.0, testutil.ToFloat64(mt.ActiveRooms))
	assert.Equal(t, 2.0, testutil.ToFloat64(mt.MessagesReceived.WithLabelValues("submitCard")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.RoundsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.GamesFinished.WithLabelValues("win")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.Rejected.WithLabelValues("not_judge")))
}

func TestMonitor_NilSafe(t *testing.T) {
	var m *Monitor
	assert.NotPanics(t, func() {
		m.IncOnlinePlayers()
		m.SetActiveRooms(1)
		m.IncRejected("x")
		m.ObserveMessageLatency(time.Second)
	})
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor("cards_test")
	m.SetActiveRooms(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "cards_test_active_rooms 2"))
}
