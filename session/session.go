// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/durak/network"
)

// Session 是一条连接，Addr 是认证后的玩家地址
type Session struct {
	ID         string
	Addr       string
	Conn       network.Connection
	RoomID     string
	CreatedAt  time.Time
	LastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(id, addr string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Addr:       addr,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
	}
}

// Idle reports how long the session has been silent at now.
func (s *Session) Idle(now time.Time) time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return now.Sub(s.LastActive)
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.Touch()
	return s.Conn.Send(msgID, data)
}

func (s *Session) Touch() {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) SetRoom(roomID string) {
	s.mutex.Lock()
	s.RoomID = roomID
	s.mutex.Unlock()
}

func (s *Session) Room() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.RoomID
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
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

// GetByAddr 返回同一玩家的所有连接
func (m *Manager) GetByAddr(addr string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.Addr == addr {
			result = append(result, session)
		}
	}
	return result
}

func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
