package redis

import (
	"context"
	"fmt"

	"coptic-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// OrganizationStore keeps organizations as Redis hashes.
type OrganizationStore struct {
	client *redis.Client
}

func NewOrganizationStore(client *redis.Client) *OrganizationStore {
	return &OrganizationStore{client: client}
}

func (s *OrganizationStore) Create(ctx context.Context, org domain.Organization) error {
	key := orgKey(org.ID)
	err := withRetry(func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("organization %s already exists", org.ID)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, "name", org.Name, "description", org.Description)
				pipe.RPush(ctx, orgsOrderKey, org.ID)
				pipe.Publish(ctx, organizationsChannel, org.ID)
				return nil
			})
			return err
		}, key)
	})
	if err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (s *OrganizationStore) Get(ctx context.Context, id string) (domain.Organization, error) {
	fields, err := s.client.HGetAll(ctx, orgKey(id)).Result()
	if err != nil {
		return domain.Organization{}, fmt.Errorf("get organization %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.Organization{}, fmt.Errorf("get organization %s: %w", id, domain.ErrOrganizationNotFound)
	}
	return domain.Organization{ID: id, Name: fields["name"], Description: fields["description"]}, nil
}

func (s *OrganizationStore) List(ctx context.Context) ([]domain.Organization, error) {
	ids, err := s.client.LRange(ctx, orgsOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, orgKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	out := make([]domain.Organization, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		out = append(out, domain.Organization{ID: id, Name: fields["name"], Description: fields["description"]})
	}
	return out, nil
}

func (s *OrganizationStore) Update(ctx context.Context, org domain.Organization) error {
	key := orgKey(org.ID)
	err := withRetry(func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return domain.ErrOrganizationNotFound
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, "name", org.Name, "description", org.Description)
				pipe.Publish(ctx, organizationsChannel, org.ID)
				return nil
			})
			return err
		}, key)
	})
	if err != nil {
		return fmt.Errorf("update organization %s: %w", org.ID, err)
	}
	return nil
}

// DeleteIfUnused watches the member set so an assignment racing the delete
// aborts the transaction.
func (s *OrganizationStore) DeleteIfUnused(ctx context.Context, id string) error {
	key, members := orgKey(id), membersKey(id)
	err := withRetry(func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return domain.ErrOrganizationNotFound
			}
			count, err := tx.SCard(ctx, members).Result()
			if err != nil {
				return err
			}
			if count > 0 {
				return domain.ErrOrganizationInUse
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.LRem(ctx, orgsOrderKey, 0, id)
				pipe.Publish(ctx, organizationsChannel, id)
				return nil
			})
			return err
		}, key, members)
	})
	if err != nil {
		return fmt.Errorf("delete organization %s: %w", id, err)
	}
	return nil
}

func (s *OrganizationStore) Watch(ctx context.Context) (<-chan struct{}, func(), error) {
	return watchChannel(ctx, s.client, organizationsChannel)
}
