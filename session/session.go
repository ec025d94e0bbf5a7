// session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wfunc/cardserver/network"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// Session is one live connection. Its ID is the volatile connection identity a
// player is bound to until the next reconnect.
type Session struct {
	ID        string
	Conn      network.Connection
	CreatedAt time.Time

	send      chan network.Envelope
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter

	mutex      sync.RWMutex
	lastActive time.Time
}

type Options struct {
	SendBuffer int
	PerSecond  float64
	Burst      int
}

func NewSession(id string, conn network.Connection, opts Options) *Session {
	if id == "" {
		id = uuid.New().String()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	limit := rate.Inf
	if opts.PerSecond > 0 {
		limit = rate.Limit(opts.PerSecond)
	}
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		send:       make(chan network.Envelope, opts.SendBuffer),
		done:       make(chan struct{}),
		limiter:    rate.NewLimiter(limit, max(opts.Burst, 1)),
	}
}

func (s *Session) GetID() string {
	return s.ID
}

// Allow reports whether another inbound event fits in the rate budget.
func (s *Session) Allow() bool {
	return s.limiter.Allow()
}

func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

// Send queues an event without blocking. A client that cannot keep up is closed.
func (s *Session) Send(event string, payload any) error {
	env, err := network.Encode(event, payload)
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- env:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		s.Close()
		return ErrSendQueueFull
	}
}

// WritePump drains the send queue onto the connection and pings every
// heartbeat. It returns when the session closes or a write fails.
func (s *Session) WritePump(heartbeat time.Duration) {
	var tick <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer s.Close()

	for {
		select {
		case env := <-s.send:
			if err := s.Conn.WriteEnvelope(env); err != nil {
				return
			}
		case <-tick:
			if err := s.Conn.Ping(); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.Conn.Close()
	})
	return err
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns the live sessions in no particular order.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
