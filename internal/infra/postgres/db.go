package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"
)

// NOTIFY channels; payload is the changed row id.
const (
	profileChannel      = "profile_changes"
	organizationChannel = "organization_changes"
)

// SQLSTATE codes mapped onto domain errors.
const (
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"
)

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// listen holds a pooled connection on LISTEN channel and signals each
// notification. Signals coalesce while the reader is busy.
func listen(ctx context.Context, pool *pgxpool.Pool, channel string) (<-chan struct{}, func(), error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	listenCtx, stop := context.WithCancel(context.Background())
	out := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		for {
			if _, err := conn.Conn().WaitForNotification(listenCtx); err != nil {
				if listenCtx.Err() == nil {
					log.Printf("listen %s: %v", channel, err)
				}
				break
			}
			select {
			case out <- struct{}{}:
			default:
			}
		}
		// a cancelled wait leaves the connection unusable for the pool
		if listenCtx.Err() != nil {
			_ = conn.Conn().Close(context.Background())
		} else if _, err := conn.Exec(context.Background(), "UNLISTEN "+channel); err != nil {
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}()

	cancel := func() {
		stop()
		<-done
	}
	return out, cancel, nil
}
