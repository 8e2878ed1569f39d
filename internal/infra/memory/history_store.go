package memory

import (
	"context"
	"slices"

	"coptic-quiz-service/internal/domain"
)

// HistoryStore is an in-memory implementation of app.HistoryRepository.
type HistoryStore struct {
	db *DB
}

func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) Append(_ context.Context, userID string, rec domain.ActivityRecord) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	records := append([]domain.ActivityRecord{rec}, s.db.history[userID]...)
	if len(records) > domain.HistoryLimit {
		records = records[:domain.HistoryLimit]
	}
	s.db.history[userID] = records
	return nil
}

func (s *HistoryStore) List(_ context.Context, userID string) ([]domain.ActivityRecord, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	records := slices.Clone(s.db.history[userID])
	if records == nil {
		records = []domain.ActivityRecord{}
	}
	return records, nil
}
