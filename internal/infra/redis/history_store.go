package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"coptic-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// HistoryStore keeps the capped activity history as a JSON list per user.
type HistoryStore struct {
	client *redis.Client
}

func NewHistoryStore(client *redis.Client) *HistoryStore {
	return &HistoryStore{client: client}
}

func (s *HistoryStore) Append(ctx context.Context, userID string, rec domain.ActivityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode activity record: %w", err)
	}
	key := historyKey(userID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, domain.HistoryLimit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append activity for %s: %w", userID, err)
	}
	return nil
}

func (s *HistoryStore) List(ctx context.Context, userID string) ([]domain.ActivityRecord, error) {
	raw, err := s.client.LRange(ctx, historyKey(userID), 0, domain.HistoryLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list activity for %s: %w", userID, err)
	}
	out := make([]domain.ActivityRecord, 0, len(raw))
	for _, item := range raw {
		var rec domain.ActivityRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode activity record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
