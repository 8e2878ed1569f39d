package postgres

import (
	"context"
	"fmt"

	"coptic-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// HistoryStore appends to activity_log and prunes rows beyond the cap.
type HistoryStore struct {
	pool *pgxpool.Pool
}

func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

func (s *HistoryStore) Append(ctx context.Context, userID string, rec domain.ActivityRecord) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO activity_log (user_id, activity, xp_earned, created_at) VALUES ($1, $2, $3, $4)`,
			userID, string(rec.Activity), rec.XPEarned, rec.Timestamp)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			DELETE FROM activity_log
			WHERE user_id = $1 AND id NOT IN (
				SELECT id FROM activity_log WHERE user_id = $1 ORDER BY id DESC LIMIT $2
			)`, userID, domain.HistoryLimit)
		return err
	})
	if err != nil {
		return fmt.Errorf("append activity for %s: %w", userID, err)
	}
	return nil
}

func (s *HistoryStore) List(ctx context.Context, userID string) ([]domain.ActivityRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT activity, xp_earned, created_at FROM activity_log
		WHERE user_id = $1 ORDER BY id DESC LIMIT $2`, userID, domain.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list activity for %s: %w", userID, err)
	}
	defer rows.Close()

	out := []domain.ActivityRecord{}
	for rows.Next() {
		var (
			rec      domain.ActivityRecord
			activity string
		)
		if err := rows.Scan(&activity, &rec.XPEarned, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		rec.Activity = domain.ActivityKind(activity)
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
