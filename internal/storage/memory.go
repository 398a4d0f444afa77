package storage

import (
	"context"
	"sync"
	"time"

	"github.com/authfront/authfront/internal/log"
	"github.com/authfront/authfront/internal/session"
)

// DefaultCleanupInterval is how often expired sessions are swept
const DefaultCleanupInterval = 1 * time.Minute

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process session store. Sessions disappear on restart,
// which is acceptable for single-instance deployments and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*session.Session
	stopCleanup chan struct{}
	wg          sync.WaitGroup
	now         func() time.Time
}

// NewMemoryStore creates a memory store and starts its expiry sweep
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		sessions:    make(map[string]*session.Session),
		stopCleanup: make(chan struct{}),
		now:         time.Now,
	}

	s.wg.Add(1)
	go s.cleanupLoop(DefaultCleanupInterval)

	return s
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	now := s.now()

	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		log.LogTraceWithFields("storage", "Swept expired sessions", map[string]any{
			"removed": removed,
		})
	}
}

// Get returns a copy of the stored session, so callers can mutate it freely
// before committing with Put.
func (s *MemoryStore) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || s.now().After(sess.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	return copySession(sess), nil
}

// Put stores a copy of the session
func (s *MemoryStore) Put(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	s.sessions[sess.ID] = copySession(sess)
	s.mu.Unlock()
	return nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// List returns all unexpired sessions
func (s *MemoryStore) List(_ context.Context) ([]*session.Session, error) {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			continue
		}
		sessions = append(sessions, copySession(sess))
	}
	return sessions, nil
}

// Close stops the expiry sweep
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	s.wg.Wait()
	return nil
}

func copySession(sess *session.Session) *session.Session {
	out := *sess
	if sess.Grant != nil {
		grant := *sess.Grant
		out.Grant = &grant
	}
	return &out
}
