package postgres

import (
	"context"
	"errors"
	"fmt"

	"coptic-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// OrganizationStore keeps organizations in their own table. The users
// foreign key backs the in-use check on delete.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{pool: pool}
}

func (s *OrganizationStore) Create(ctx context.Context, org domain.Organization) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO organizations (id, name, description) VALUES ($1, $2, $3)`,
			org.ID, org.Name, org.Description)
		if sqlState(err) == uniqueViolation {
			return fmt.Errorf("organization %s already exists", org.ID)
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, organizationChannel, org.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (s *OrganizationStore) Get(ctx context.Context, id string) (domain.Organization, error) {
	org := domain.Organization{ID: id}
	err := s.pool.QueryRow(ctx, `SELECT name, description FROM organizations WHERE id = $1`, id).
		Scan(&org.Name, &org.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Organization{}, fmt.Errorf("get organization %s: %w", id, domain.ErrOrganizationNotFound)
	}
	if err != nil {
		return domain.Organization{}, fmt.Errorf("get organization %s: %w", id, err)
	}
	return org, nil
}

func (s *OrganizationStore) List(ctx context.Context) ([]domain.Organization, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description FROM organizations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	out := []domain.Organization{}
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.Description); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

func (s *OrganizationStore) Update(ctx context.Context, org domain.Organization) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE organizations SET name = $2, description = $3 WHERE id = $1`,
			org.ID, org.Name, org.Description)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrOrganizationNotFound
		}
		_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, organizationChannel, org.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("update organization %s: %w", org.ID, err)
	}
	return nil
}

func (s *OrganizationStore) DeleteIfUnused(ctx context.Context, id string) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM organizations
			WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM users WHERE organization_id = $1)`, id)
		if sqlState(err) == foreignKeyViolation {
			// a member was assigned between the check and the delete
			return domain.ErrOrganizationInUse
		}
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM organizations WHERE id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return domain.ErrOrganizationInUse
			}
			return domain.ErrOrganizationNotFound
		}
		_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, organizationChannel, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete organization %s: %w", id, err)
	}
	return nil
}

func (s *OrganizationStore) Watch(ctx context.Context) (<-chan struct{}, func(), error) {
	return listen(ctx, s.pool, organizationChannel)
}
