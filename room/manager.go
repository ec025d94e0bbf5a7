package room

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/wfunc/cardserver/logger"
	"github.com/wfunc/cardserver/monitor"
	"github.com/wfunc/cardserver/state"
	"github.com/wfunc/cardserver/timer"
)

const (
	codeLength   = 4
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeAttempts = 64
)

// Options wires a Manager to its collaborators. Deck and Broadcaster are
// required; a nil Scheduler gets a private timer manager.
type Options struct {
	Settings    Settings
	MaxRooms    int
	Argon2      *argon2id.Params
	Deck        Deck
	Broadcaster Broadcaster
	Recorder    GameRecorder
	Scheduler   Scheduler
	Monitor     *monitor.Monitor
}

// Summary is the lobby view of one room.
type Summary struct {
	Code      string
	Phase     state.Phase
	Players   int
	Connected int
	Rounds    int
	CreatedAt time.Time
}

// Manager is the room registry. Its lock only guards the maps; it is never held
// while a room is working.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	conns map[string]map[string]struct{}

	opts       Options
	ownTimers  *timer.TimerManager
	newCode    func() (string, error)
	closedOnce sync.Once
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		rooms:   make(map[string]*Room),
		conns:   make(map[string]map[string]struct{}),
		opts:    opts,
		newCode: randomCode,
	}
	if m.opts.Scheduler == nil {
		m.ownTimers = timer.NewTimerManager(0)
		m.opts.Scheduler = m.ownTimers
	}
	if m.opts.Argon2 == nil {
		m.opts.Argon2 = argon2id.DefaultParams
	}
	if m.opts.Settings.HandSize <= 0 || m.opts.Settings.WinScore <= 0 {
		m.opts.Settings = DefaultSettings()
	}
	return m
}

func randomCode() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create opens a room with the caller as host and returns its code.
func (m *Manager) Create(connID, name string, count int, password string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	if count <= 0 {
		return "", ErrInvalidCount
	}
	hash, err := argon2id.CreateHash(password, m.opts.Argon2)
	if err != nil {
		return "", fmt.Errorf("hash room password: %w", err)
	}

	m.mu.Lock()
	if m.opts.MaxRooms > 0 && len(m.rooms) >= m.opts.MaxRooms {
		m.mu.Unlock()
		return "", ErrTooManyRooms
	}
	code := ""
	for i := 0; i < codeAttempts && code == ""; i++ {
		c, err := m.newCode()
		if err != nil {
			m.mu.Unlock()
			return "", fmt.Errorf("room code: %w", err)
		}
		if _, taken := m.rooms[c]; !taken {
			code = c
		}
	}
	if code == "" {
		m.mu.Unlock()
		return "", ErrTooManyRooms
	}
	r := newRoom(code, hash, count, deps{
		settings:  m.opts.Settings,
		deck:      m.opts.Deck,
		out:       m.opts.Broadcaster,
		recorder:  m.opts.Recorder,
		scheduler: m.opts.Scheduler,
		monitor:   m.opts.Monitor,
		release:   m.remove,
	})
	m.rooms[code] = r
	active := len(m.rooms)
	m.mu.Unlock()

	m.opts.Monitor.SetActiveRooms(active)
	if err := r.do(func() error { r.addHost(name, connID); return nil }); err != nil {
		return "", err
	}
	m.track(connID, code)
	logger.Log.Infow("room created", "room", code, "host", name, "expected", count)
	return code, nil
}

// Join checks the password and adds (or restores) name in the room.
func (m *Manager) Join(connID, code, name, password string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	r, err := m.Get(code)
	if err != nil {
		return err
	}
	ok, err := argon2id.ComparePasswordAndHash(password, r.passwordHash)
	if err != nil {
		return fmt.Errorf("check room password: %w", err)
	}
	if !ok {
		return ErrWrongPassword
	}
	if err := r.do(func() error { return r.join(name, connID) }); err != nil {
		return err
	}
	m.track(connID, r.Code)
	return nil
}

// Rejoin restores a known player without a password.
func (m *Manager) Rejoin(connID, code, name string) error {
	r, err := m.Get(code)
	if err != nil {
		return err
	}
	if err := r.do(func() error { return r.rejoin(strings.TrimSpace(name), connID) }); err != nil {
		return err
	}
	m.track(connID, r.Code)
	return nil
}

func (m *Manager) StartGame(connID, code string) error {
	return m.with(code, func(r *Room) error { return r.startGame(connID) })
}

func (m *Manager) StartRound(connID, code string) error {
	return m.with(code, func(r *Room) error { return r.startRound(connID) })
}

func (m *Manager) SubmitCard(connID, code, card string) error {
	card = strings.TrimSpace(card)
	return m.with(code, func(r *Room) error { return r.submitCard(connID, card) })
}

func (m *Manager) PickWinner(connID, code, playerID string) error {
	return m.with(code, func(r *Room) error { return r.pickWinner(connID, playerID) })
}

func (m *Manager) StopGame(connID, code string) error {
	return m.with(code, func(r *Room) error { return r.stopGame(connID) })
}

func (m *Manager) CloseRoom(connID, code string) error {
	return m.with(code, func(r *Room) error { return r.closeRoom(connID) })
}

// Disconnect tells every room the connection was seen in that it is gone.
func (m *Manager) Disconnect(connID string) {
	m.mu.Lock()
	codes := make([]string, 0, len(m.conns[connID]))
	for code := range m.conns[connID] {
		codes = append(codes, code)
	}
	delete(m.conns, connID)
	m.mu.Unlock()

	for _, code := range codes {
		err := m.with(code, func(r *Room) error { return r.disconnect(connID) })
		if err != nil {
			logger.Log.Debugw("disconnect ignored", "room", code, "conn", connID, "error", err)
		}
	}
}

func (m *Manager) with(code string, fn func(*Room) error) error {
	r, err := m.Get(code)
	if err != nil {
		return err
	}
	return r.do(func() error { return fn(r) })
}

func (m *Manager) Get(code string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[normalize(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Summaries lists live rooms ordered by code. Rooms that close meanwhile are skipped.
func (m *Manager) Summaries() []Summary {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(rooms))
	for _, r := range rooms {
		s, err := r.Snapshot()
		if err != nil {
			continue
		}
		out = append(out, Summary{
			Code:      s.Code,
			Phase:     s.Phase,
			Players:   len(s.Players),
			Connected: s.ConnectedCount(),
			Rounds:    s.RoundsPlayed,
			CreatedAt: s.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Close shuts every room down.
func (m *Manager) Close() {
	m.closedOnce.Do(func() {
		m.mu.RLock()
		rooms := make([]*Room, 0, len(m.rooms))
		for _, r := range m.rooms {
			rooms = append(rooms, r)
		}
		m.mu.RUnlock()

		for _, r := range rooms {
			r.Close()
		}
		if m.ownTimers != nil {
			m.ownTimers.Stop()
		}
	})
}

func (m *Manager) track(connID, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[code]; !ok {
		return
	}
	set, ok := m.conns[connID]
	if !ok {
		set = make(map[string]struct{})
		m.conns[connID] = set
	}
	set[code] = struct{}{}
}

// remove is the release hook of every room; it runs on the room's goroutine.
func (m *Manager) remove(r *Room) {
	m.mu.Lock()
	if m.rooms[r.Code] == r {
		delete(m.rooms, r.Code)
	}
	for connID, set := range m.conns {
		delete(set, r.Code)
		if len(set) == 0 {
			delete(m.conns, connID)
		}
	}
	active := len(m.rooms)
	m.mu.Unlock()

	m.opts.Broadcaster.CloseGroup(r.Code)
	m.opts.Monitor.SetActiveRooms(active)
	logger.Log.Infow("room removed", "room", r.Code)
}
