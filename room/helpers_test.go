package room

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/cardserver/cards"
	"github.com/wfunc/cardserver/models"
)

// sent is one outbound event seen by MockBroadcaster. To is set for
// point-to-point sends, Group for room broadcasts.
type sent struct {
	To      string
	Group   string
	Event   string
	Payload any
}

// MockBroadcaster records every send and tracks group membership.
type MockBroadcaster struct {
	mu     sync.Mutex
	groups map[string]map[string]bool
	closed []string
	events []sent
}

func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{groups: make(map[string]map[string]bool)}
}

func (m *MockBroadcaster) JoinGroup(connID, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.groups[group] == nil {
		m.groups[group] = make(map[string]bool)
	}
	m.groups[group][connID] = true
}

func (m *MockBroadcaster) LeaveGroup(connID, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups[group], connID)
}

func (m *MockBroadcaster) CloseGroup(group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, group)
	m.closed = append(m.closed, group)
}

func (m *MockBroadcaster) SendTo(connID, event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, sent{To: connID, Event: event, Payload: payload})
}

func (m *MockBroadcaster) BroadcastToRoom(group, event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, sent{Group: group, Event: event, Payload: payload})
}

// To returns the payloads sent directly to connID for event.
func (m *MockBroadcaster) To(connID, event string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, e := range m.events {
		if e.To == connID && e.Event == event {
			out = append(out, e.Payload)
		}
	}
	return out
}

// Broadcasts returns the payloads broadcast to group for event.
func (m *MockBroadcaster) Broadcasts(group, event string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, e := range m.events {
		if e.Group == group && e.Event == event {
			out = append(out, e.Payload)
		}
	}
	return out
}

func (m *MockBroadcaster) InGroup(connID, group string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups[group][connID]
}

func (m *MockBroadcaster) Closed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.closed...)
}

func (m *MockBroadcaster) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// MockScheduler holds callbacks until Fire is called.
type MockScheduler struct {
	mu    sync.Mutex
	next  int64
	tasks map[int64]func()
}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{tasks: make(map[int64]func())}
}

func (s *MockScheduler) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.tasks[s.next] = callback
	return s.next
}

func (s *MockScheduler) RemoveTimer(timerId int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, timerId)
}

func (s *MockScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Fire runs every pending callback in scheduling order.
func (s *MockScheduler) Fire() {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	callbacks := make([]func(), 0, len(ids))
	for _, id := range ids {
		callbacks = append(callbacks, s.tasks[id])
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// MockRecorder keeps finished games in memory.
type MockRecorder struct {
	mu      sync.Mutex
	records []models.GameRecord
}

func (m *MockRecorder) RecordGame(record models.GameRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
}

func (m *MockRecorder) Records() []models.GameRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.GameRecord(nil), m.records...)
}

type harness struct {
	manager   *Manager
	out       *MockBroadcaster
	scheduler *MockScheduler
	recorder  *MockRecorder
}

var testArgon2 = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func testDeck(t *testing.T, answers int) *cards.Catalog {
	t.Helper()
	pool := make([]string, answers)
	for i := range pool {
		pool[i] = fmt.Sprintf("answer %02d", i)
	}
	deck, err := cards.New([]string{"Why am I sticky?", "What ended my last relationship?"}, pool)
	require.NoError(t, err)
	return deck
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	h := &harness{
		out:       NewMockBroadcaster(),
		scheduler: NewMockScheduler(),
		recorder:  &MockRecorder{},
	}
	h.manager = NewManager(Options{
		Settings:    settings,
		Argon2:      testArgon2,
		Deck:        testDeck(t, 40),
		Broadcaster: h.out,
		Recorder:    h.recorder,
		Scheduler:   h.scheduler,
	})
	h.manager.newCode = func() (string, error) { return "ABCD", nil }
	t.Cleanup(h.manager.Close)
	return h
}

// threePlayers opens room ABCD with P1 (host, c1), P2 (c2) and P3 (c3).
func (h *harness) threePlayers(t *testing.T) {
	t.Helper()
	code, err := h.manager.Create("c1", "P1", 3, "pw")
	require.NoError(t, err)
	require.Equal(t, "ABCD", code)
	require.NoError(t, h.manager.Join("c2", "ABCD", "P2", "pw"))
	require.NoError(t, h.manager.Join("c3", "ABCD", "P3", "pw"))
}

func (h *harness) snapshot(t *testing.T) Snapshot {
	t.Helper()
	r, err := h.manager.Get("ABCD")
	require.NoError(t, err)
	s, err := r.Snapshot()
	require.NoError(t, err)
	return s
}

func (h *harness) player(t *testing.T, name string) PlayerSnapshot {
	t.Helper()
	p, ok := h.snapshot(t).Player(name)
	require.True(t, ok, "player %s", name)
	return p
}

// judgeConn returns the connection id of the current judge.
func (h *harness) judgeConn(t *testing.T) string {
	t.Helper()
	s := h.snapshot(t)
	require.NotEmpty(t, s.JudgeName, "no active judge")
	return h.player(t, s.JudgeName).ID
}

// submitAll submits the first card of every expected submitter.
func (h *harness) submitAll(t *testing.T) {
	t.Helper()
	s := h.snapshot(t)
	for _, p := range s.Players {
		if contains(s.RoundSubmitters, p.ID) && !p.Submitted {
			require.NoError(t, h.manager.SubmitCard(p.ID, "ABCD", p.Hand[0]))
		}
	}
}

// playRound starts a round from starter, submits for everyone and lets the
// judge pick winner's card.
func (h *harness) playRound(t *testing.T, starter, winner string) {
	t.Helper()
	require.NoError(t, h.manager.StartRound(starter, "ABCD"))
	h.submitAll(t)
	require.NoError(t, h.manager.PickWinner(h.judgeConn(t), "ABCD", h.player(t, winner).ID))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
