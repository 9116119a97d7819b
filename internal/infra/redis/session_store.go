package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quizsync/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions live in process memory; Redis holds a liveness marker per session
// that expires with the session's time limit plus grace. A session whose marker
// is gone is treated as abandoned.
type SessionStore struct {
	client   *redis.Client
	prefix   string
	grace    time.Duration
	now      func() time.Time
	mu       sync.Mutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, prefix string, grace time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		prefix:   prefix,
		grace:    grace,
		now:      time.Now,
		sessions: make(map[string]*app.Session),
	}
}

// Save stores the session and evicts sessions abandoned past their deadline plus grace.
func (s *SessionStore) Save(session *app.Session) {
	s.mu.Lock()
	stale := s.sweepLocked()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	ctx := context.Background()
	if len(stale) > 0 {
		_ = s.client.Del(ctx, stale...).Err()
	}
	// best-effort liveness marker
	_ = s.client.Set(ctx, s.key(session.ID()), session.QuizID(), session.TimeLimit()+s.grace).Err()
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	if !s.alive(sessionID) {
		s.Take(sessionID)
		return nil, false
	}
	return session, true
}

func (s *SessionStore) Take(sessionID string) (*app.Session, bool) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	alive := s.alive(sessionID)
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
	return session, alive
}

// alive reports false only when Redis confirms the marker is gone.
func (s *SessionStore) alive(sessionID string) bool {
	n, err := s.client.Exists(context.Background(), s.key(sessionID)).Result()
	return err != nil || n > 0
}

func (s *SessionStore) sweepLocked() []string {
	now := s.now()
	var stale []string
	for id, session := range s.sessions {
		if now.After(session.Deadline().Add(s.grace)) {
			delete(s.sessions, id)
			stale = append(stale, s.key(id))
		}
	}
	return stale
}

func (s *SessionStore) key(sessionID string) string {
	return s.prefix + "session:" + sessionID
}
