package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"contract-analyzer/web/types"
)

type sessionEntry struct {
	session *types.ChatSession
	// inFlight serializes message handling within one session; history order
	// is append order.
	inFlight sync.Mutex
}

// ChatStore holds chat sessions in memory. Sessions are append-only; expiry
// is handled by the retention sweeper alongside their job.
type ChatStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*sessionEntry
}

func NewChatStore() *ChatStore {
	return &ChatStore{sessions: make(map[uuid.UUID]*sessionEntry)}
}

// Create opens a session bound to a completed job.
func (s *ChatStore) Create(jobID uuid.UUID) uuid.UUID {
	now := time.Now().UTC()
	session := &types.ChatSession{
		SessionID:  uuid.New(),
		JobID:      jobID,
		CreatedAt:  now,
		LastActive: now,
	}

	s.mu.Lock()
	s.sessions[session.SessionID] = &sessionEntry{session: session}
	s.mu.Unlock()
	return session.SessionID
}

// Get returns a snapshot of the session with a copied message slice.
func (s *ChatStore) Get(id uuid.UUID) (types.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[id]
	if !ok {
		return types.ChatSession{}, false
	}
	snapshot := *entry.session
	snapshot.Messages = append([]types.ChatMessage(nil), entry.session.Messages...)
	return snapshot, true
}

// Append adds one message to the session history.
func (s *ChatStore) Append(id uuid.UUID, role, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return false
	}
	entry.session.Messages = append(entry.session.Messages, types.ChatMessage{Role: role, Content: content})
	entry.session.LastActive = time.Now().UTC()
	return true
}

// Acquire locks the session for one in-flight handler. The returned release
// function must be called when handling completes; ok is false for unknown
// sessions.
func (s *ChatStore) Acquire(id uuid.UUID) (release func(), ok bool) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	entry.inFlight.Lock()
	return entry.inFlight.Unlock, true
}

func (s *ChatStore) Delete(id uuid.UUID) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// DeleteByJob removes every session bound to the job. Used when the job is
// swept.
func (s *ChatStore) DeleteByJob(jobID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.sessions {
		if entry.session.JobID == jobID {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *ChatStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
