package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"coptic-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ProfileStore keeps profiles as Redis hashes. Writes run inside
// WATCH/MULTI/EXEC so concurrent XP awards never lose an update.
type ProfileStore struct {
	client *redis.Client
}

func NewProfileStore(client *redis.Client) *ProfileStore {
	return &ProfileStore{client: client}
}

func (s *ProfileStore) CreateIfAbsent(ctx context.Context, p domain.UserProfile) (domain.UserProfile, bool, error) {
	key := userKey(p.ID)
	var (
		stored  domain.UserProfile
		created bool
	)
	err := withRetry(func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			fields, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			if len(fields) > 0 {
				stored, err = decodeProfile(p.ID, fields)
				created = false
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, encodeProfile(p))
				pipe.RPush(ctx, usersOrderKey, p.ID)
				if p.OrganizationID != "" {
					pipe.SAdd(ctx, membersKey(p.OrganizationID), p.ID)
				}
				pipe.Publish(ctx, profilesChannel, p.ID)
				return nil
			})
			stored, created = p, err == nil
			return err
		}, key)
	})
	if err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("create profile %s: %w", p.ID, err)
	}
	return stored, created, nil
}

func (s *ProfileStore) Get(ctx context.Context, id string) (domain.UserProfile, error) {
	fields, err := s.client.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("get profile %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.UserProfile{}, fmt.Errorf("get profile %s: %w", id, domain.ErrProfileNotFound)
	}
	return decodeProfile(id, fields)
}

func (s *ProfileStore) Update(ctx context.Context, id string, mutate func(*domain.UserProfile) error) (domain.UserProfile, error) {
	key := userKey(id)
	var updated domain.UserProfile
	err := withRetry(func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			fields, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			if len(fields) == 0 {
				return domain.ErrProfileNotFound
			}
			current, err := decodeProfile(id, fields)
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

			moved := next.OrganizationID != current.OrganizationID
			if moved && next.OrganizationID != "" {
				// a concurrent delete of the target organization aborts this transaction
				if err := tx.Watch(ctx, orgKey(next.OrganizationID)).Err(); err != nil {
					return err
				}
				n, err := tx.Exists(ctx, orgKey(next.OrganizationID)).Result()
				if err != nil {
					return err
				}
				if n == 0 {
					return domain.ErrOrganizationNotFound
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, encodeProfile(next))
				if moved {
					if current.OrganizationID != "" {
						pipe.SRem(ctx, membersKey(current.OrganizationID), id)
					}
					if next.OrganizationID != "" {
						pipe.SAdd(ctx, membersKey(next.OrganizationID), id)
					}
				}
				pipe.Publish(ctx, profilesChannel, id)
				return nil
			})
			updated = next
			return err
		}, key)
	})
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("update profile %s: %w", id, err)
	}
	return updated, nil
}

func (s *ProfileStore) List(ctx context.Context, scope domain.Scope) ([]domain.UserProfile, error) {
	ids, err := s.client.LRange(ctx, usersOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, userKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	out := make([]domain.UserProfile, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		p, err := decodeProfile(id, fields)
		if err != nil {
			return nil, err
		}
		if scope.Includes(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *ProfileStore) CountMembers(ctx context.Context, organizationID string) (int, error) {
	n, err := s.client.SCard(ctx, membersKey(organizationID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count members of %s: %w", organizationID, err)
	}
	return int(n), nil
}

func (s *ProfileStore) Watch(ctx context.Context) (<-chan struct{}, func(), error) {
	return watchChannel(ctx, s.client, profilesChannel)
}

func encodeProfile(p domain.UserProfile) map[string]interface{} {
	return map[string]interface{}{
		"display_name":          p.DisplayName,
		"email":                 p.Email,
		"avatar_url":            p.AvatarURL,
		"organization_id":       p.OrganizationID,
		"organization_name":     p.OrganizationName,
		"admin_organization_id": p.AdminOrganizationID,
		"xp":                    p.XP,
		"level":                 p.Level,
		"created_at":            p.CreatedAt.UTC().Format(time.RFC3339Nano),
		"last_active_at":        p.LastActiveAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeProfile(id string, fields map[string]string) (domain.UserProfile, error) {
	p := domain.UserProfile{
		ID:                  id,
		DisplayName:         fields["display_name"],
		Email:               fields["email"],
		AvatarURL:           fields["avatar_url"],
		OrganizationID:      fields["organization_id"],
		OrganizationName:    fields["organization_name"],
		AdminOrganizationID: fields["admin_organization_id"],
	}
	var err error
	if p.XP, err = strconv.Atoi(fields["xp"]); err != nil {
		return domain.UserProfile{}, fmt.Errorf("decode profile %s xp: %w", id, err)
	}
	if p.Level, err = strconv.Atoi(fields["level"]); err != nil {
		return domain.UserProfile{}, fmt.Errorf("decode profile %s level: %w", id, err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return domain.UserProfile{}, fmt.Errorf("decode profile %s created_at: %w", id, err)
	}
	if p.LastActiveAt, err = time.Parse(time.RFC3339Nano, fields["last_active_at"]); err != nil {
		return domain.UserProfile{}, fmt.Errorf("decode profile %s last_active_at: %w", id, err)
	}
	return p, nil
}
