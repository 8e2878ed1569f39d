package memory

import (
	"context"
	"fmt"

	"coptic-quiz-service/internal/domain"
)

// OrganizationStore is an in-memory implementation of app.OrganizationRepository.
type OrganizationStore struct {
	db *DB
}

func NewOrganizationStore(db *DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

func (s *OrganizationStore) Create(_ context.Context, org domain.Organization) error {
	s.db.mu.Lock()
	if _, ok := s.db.orgs[org.ID]; ok {
		s.db.mu.Unlock()
		return fmt.Errorf("organization %s already exists", org.ID)
	}
	stored := org
	s.db.orgs[org.ID] = &stored
	s.db.orgOrder = append(s.db.orgOrder, org.ID)
	s.db.mu.Unlock()

	s.db.orgChanges.notify()
	return nil
}

func (s *OrganizationStore) Get(_ context.Context, id string) (domain.Organization, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if org, ok := s.db.orgs[id]; ok {
		return *org, nil
	}
	return domain.Organization{}, fmt.Errorf("get organization %s: %w", id, domain.ErrOrganizationNotFound)
}

func (s *OrganizationStore) List(_ context.Context) ([]domain.Organization, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := make([]domain.Organization, 0, len(s.db.orgOrder))
	for _, id := range s.db.orgOrder {
		out = append(out, *s.db.orgs[id])
	}
	return out, nil
}

func (s *OrganizationStore) Update(_ context.Context, org domain.Organization) error {
	s.db.mu.Lock()
	current, ok := s.db.orgs[org.ID]
	if !ok {
		s.db.mu.Unlock()
		return fmt.Errorf("update organization %s: %w", org.ID, domain.ErrOrganizationNotFound)
	}
	*current = org
	s.db.mu.Unlock()

	s.db.orgChanges.notify()
	return nil
}

func (s *OrganizationStore) DeleteIfUnused(_ context.Context, id string) error {
	s.db.mu.Lock()
	if _, ok := s.db.orgs[id]; !ok {
		s.db.mu.Unlock()
		return fmt.Errorf("delete organization %s: %w", id, domain.ErrOrganizationNotFound)
	}
	if s.db.countMembersLocked(id) > 0 {
		s.db.mu.Unlock()
		return domain.ErrOrganizationInUse
	}
	delete(s.db.orgs, id)
	s.db.orgOrder = removeID(s.db.orgOrder, id)
	s.db.mu.Unlock()

	s.db.orgChanges.notify()
	return nil
}

func (s *OrganizationStore) Watch(_ context.Context) (<-chan struct{}, func(), error) {
	ch, cancel := s.db.orgChanges.watch()
	return ch, cancel, nil
}
