package memory

import (
	"context"
	"fmt"

	"coptic-quiz-service/internal/domain"
)

// ProfileStore is an in-memory implementation of app.ProfileRepository.
type ProfileStore struct {
	db *DB
}

func NewProfileStore(db *DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) CreateIfAbsent(_ context.Context, p domain.UserProfile) (domain.UserProfile, bool, error) {
	s.db.mu.Lock()
	if existing, ok := s.db.users[p.ID]; ok {
		s.db.mu.Unlock()
		return *existing, false, nil
	}
	stored := p
	s.db.users[p.ID] = &stored
	s.db.userOrder = append(s.db.userOrder, p.ID)
	s.db.mu.Unlock()

	s.db.profileChanges.notify()
	return p, true, nil
}

func (s *ProfileStore) Get(_ context.Context, id string) (domain.UserProfile, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if p, ok := s.db.users[id]; ok {
		return *p, nil
	}
	return domain.UserProfile{}, fmt.Errorf("get profile %s: %w", id, domain.ErrProfileNotFound)
}

func (s *ProfileStore) Update(_ context.Context, id string, mutate func(*domain.UserProfile) error) (domain.UserProfile, error) {
	s.db.mu.Lock()
	current, ok := s.db.users[id]
	if !ok {
		s.db.mu.Unlock()
		return domain.UserProfile{}, fmt.Errorf("update profile %s: %w", id, domain.ErrProfileNotFound)
	}
	next := *current
	if err := mutate(&next); err != nil {
		s.db.mu.Unlock()
		return domain.UserProfile{}, err
	}
	if next.OrganizationID != current.OrganizationID && next.OrganizationID != "" {
		// checked under the same lock DeleteIfUnused takes
		if _, ok := s.db.orgs[next.OrganizationID]; !ok {
			s.db.mu.Unlock()
			return domain.UserProfile{}, fmt.Errorf("update profile %s: %w", id, domain.ErrOrganizationNotFound)
		}
	}
	changed := next != *current
	*current = next
	s.db.mu.Unlock()

	if changed {
		s.db.profileChanges.notify()
	}
	return next, nil
}

func (s *ProfileStore) List(_ context.Context, scope domain.Scope) ([]domain.UserProfile, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := make([]domain.UserProfile, 0, len(s.db.userOrder))
	for _, id := range s.db.userOrder {
		if p := s.db.users[id]; scope.Includes(*p) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *ProfileStore) CountMembers(_ context.Context, organizationID string) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.db.countMembersLocked(organizationID), nil
}

func (s *ProfileStore) Watch(_ context.Context) (<-chan struct{}, func(), error) {
	ch, cancel := s.db.profileChanges.watch()
	return ch, cancel, nil
}

func (db *DB) countMembersLocked(organizationID string) int {
	n := 0
	for _, p := range db.users {
		if p.OrganizationID == organizationID {
			n++
		}
	}
	return n
}
