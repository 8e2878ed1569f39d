package postgres

import (
	"context"
	"errors"
	"fmt"

	"coptic-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const profileColumns = `id, display_name, email, avatar_url, COALESCE(organization_id, ''),
	organization_name, COALESCE(admin_organization_id, ''), xp, level, created_at, last_active_at`

// ProfileStore keeps profiles in the users table. Updates lock the row with
// SELECT ... FOR UPDATE for the whole read-modify-write.
type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

func (s *ProfileStore) CreateIfAbsent(ctx context.Context, p domain.UserProfile) (domain.UserProfile, bool, error) {
	var created bool
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO users (id, display_name, email, avatar_url, organization_id, organization_name,
				admin_organization_id, xp, level, created_at, last_active_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING`,
			p.ID, p.DisplayName, p.Email, p.AvatarURL, p.OrganizationID, p.OrganizationName,
			p.AdminOrganizationID, p.XP, p.Level, p.CreatedAt, p.LastActiveAt)
		if err != nil {
			return err
		}
		created = tag.RowsAffected() == 1
		if created {
			_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, profileChannel, p.ID)
		}
		return err
	})
	if err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("create profile %s: %w", p.ID, err)
	}
	stored, err := s.Get(ctx, p.ID)
	if err != nil {
		return domain.UserProfile{}, false, err
	}
	return stored, created, nil
}

func (s *ProfileStore) Get(ctx context.Context, id string) (domain.UserProfile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM users WHERE id = $1`, id)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserProfile{}, fmt.Errorf("get profile %s: %w", id, domain.ErrProfileNotFound)
	}
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("get profile %s: %w", id, err)
	}
	return p, nil
}

func (s *ProfileStore) Update(ctx context.Context, id string, mutate func(*domain.UserProfile) error) (domain.UserProfile, error) {
	var updated domain.UserProfile
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
		current, err := scanProfile(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrProfileNotFound
		}
		if err != nil {
			return err
		}
		next := current
		if err := mutate(&next); err != nil {
			return err
		}
		if next == current {
			updated = next
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE users SET display_name = $2, email = $3, avatar_url = $4,
				organization_id = NULLIF($5, ''), organization_name = $6,
				admin_organization_id = NULLIF($7, ''), xp = $8, level = $9, last_active_at = $10
			WHERE id = $1`,
			id, next.DisplayName, next.Email, next.AvatarURL, next.OrganizationID, next.OrganizationName,
			next.AdminOrganizationID, next.XP, next.Level, next.LastActiveAt)
		if sqlState(err) == foreignKeyViolation {
			return domain.ErrOrganizationNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, profileChannel, id); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("update profile %s: %w", id, err)
	}
	return updated, nil
}

func (s *ProfileStore) List(ctx context.Context, scope domain.Scope) ([]domain.UserProfile, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if scope.IsGlobal() {
		rows, err = s.pool.Query(ctx, `SELECT `+profileColumns+` FROM users ORDER BY seq`)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+profileColumns+` FROM users WHERE organization_id = $1 ORDER BY seq`,
			scope.OrganizationID)
	}
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	out := []domain.UserProfile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *ProfileStore) CountMembers(ctx context.Context, organizationID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE organization_id = $1`, organizationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members of %s: %w", organizationID, err)
	}
	return n, nil
}

func (s *ProfileStore) Watch(ctx context.Context) (<-chan struct{}, func(), error) {
	return listen(ctx, s.pool, profileChannel)
}

func scanProfile(row pgx.Row) (domain.UserProfile, error) {
	var p domain.UserProfile
	err := row.Scan(&p.ID, &p.DisplayName, &p.Email, &p.AvatarURL, &p.OrganizationID, &p.OrganizationName,
		&p.AdminOrganizationID, &p.XP, &p.Level, &p.CreatedAt, &p.LastActiveAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.LastActiveAt = p.LastActiveAt.UTC()
	return p, err
}
