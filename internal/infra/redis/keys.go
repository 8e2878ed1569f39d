package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Key layout:
//
//	user:{id}               hash of profile fields
//	users:order             list of user ids in creation order
//	org:{id}                hash with name and description
//	orgs:order              list of organization ids in creation order
//	org:{id}:members        set of user ids assigned to the organization
//	user:{id}:activity      list of JSON activity records, newest first
const (
	usersOrderKey = "users:order"
	orgsOrderKey  = "orgs:order"

	profilesChannel      = "profiles:changed"
	organizationsChannel = "organizations:changed"
)

// maxTxRetries bounds optimistic WATCH/MULTI/EXEC retries under contention.
const maxTxRetries = 10

func userKey(id string) string       { return "user:" + id }
func orgKey(id string) string        { return "org:" + id }
func membersKey(orgID string) string { return "org:" + orgID + ":members" }
func historyKey(id string) string    { return "user:" + id + ":activity" }

// withRetry re-runs an optimistic transaction until it commits without a
// concurrent write to the watched keys.
func withRetry(fn func() error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := fn()
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxTxRetries, redis.TxFailedErr)
}

// watchChannel turns a pub/sub channel into coalescing change signals.
func watchChannel(ctx context.Context, client *redis.Client, channel string) (<-chan struct{}, func(), error) {
	pubsub := client.Subscribe(ctx, channel)
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan struct{}, 1)
	msgs := pubsub.Channel()
	go func() {
		defer close(out)
		for range msgs {
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, func() { _ = pubsub.Close() }, nil
}
