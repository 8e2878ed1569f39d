package redis

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"coptic-quiz-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Play state stays in a local map because rounds are bound to the connection
// that serves them; Redis only carries a liveness marker per user with a
// jittered TTL, refreshed on every answer, so operators and other instances
// can see who is mid-activity.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.PlaySession
	rnd      *rand.Rand
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.PlaySession),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SessionStore) GetOrCreate(userID string) *app.PlaySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[userID]; ok {
		return session
	}
	session := app.NewPlaySession(userID)
	s.sessions[userID] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(userID), "1", s.ttlWithJitter()).Err()
	return session
}

func (s *SessionStore) Get(userID string) (*app.PlaySession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	return session, ok
}

// Touch pushes the liveness marker's expiry out again so a long activity
// stays visible. It recreates the marker if it already expired.
func (s *SessionStore) Touch(userID string) {
	s.mu.Lock()
	_, ok := s.sessions[userID]
	ttl := s.ttlWithJitter()
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = s.client.Set(context.Background(), s.key(userID), "1", ttl).Err()
}

func (s *SessionStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		return
	}
	session.Retire()
	delete(s.sessions, userID)
	_ = s.client.Del(context.Background(), s.key(userID)).Err()
}

func (s *SessionStore) key(userID string) string {
	return "activity:session:" + userID
}

// ttlWithJitter spreads expiries by up to 10%. Called with s.mu held.
func (s *SessionStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
