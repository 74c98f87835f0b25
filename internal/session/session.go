package session

import "sync"

// Session is per-user conversation state between updates.
type Session struct {
	// AwaitingAward is set after a bare /award: the next plain text message
	// in DraftChatID is read as "mentions | medal | reason".
	AwaitingAward bool
	DraftChatID   int64
}

func (s *Session) StartDraft(chatID int64) {
	s.AwaitingAward = true
	s.DraftChatID = chatID
}

func (s *Session) Reset() {
	s.AwaitingAward = false
	s.DraftChatID = 0
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[int64]*Session),
	}
}

func (m *Manager) Get(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessions[userID]
	if s == nil {
		s = &Session{}
		m.sessions[userID] = s
	}
	return s
}

// Peek returns the session without creating one.
func (m *Manager) Peek(userID int64) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	return s, ok
}
