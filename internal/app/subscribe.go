package app

import (
	"context"
	"log"
	"sync"
)

type watchFunc func(ctx context.Context) (<-chan struct{}, func(), error)

// subscribe streams projections of store state. The watch starts before the
// initial load so no change between the two is missed. Every change triggers a
// full reload; a snapshot equal to the last delivered one is skipped. The
// channel holds at most one snapshot: a slow reader always gets the newest.
// The caller must invoke the returned cancel function to avoid leaks; once it
// returns nothing more is delivered and the channel is closed.
func subscribe[T any](ctx context.Context, watch watchFunc, load func(context.Context) (T, error), equal func(a, b T) bool) (<-chan T, func(), error) {
	ctx, stopCtx := context.WithCancel(ctx)

	changes, stopWatch, err := watch(ctx)
	if err != nil {
		stopCtx()
		return nil, nil, err
	}
	last, err := load(ctx)
	if err != nil {
		stopWatch()
		stopCtx()
		return nil, nil, err
	}

	out := make(chan T, 1)
	out <- last
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)
		defer stopWatch()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				snap, err := load(ctx)
				if err != nil {
					if ctx.Err() == nil {
						log.Printf("subscription reload failed: %v", err)
					}
					continue
				}
				if equal(last, snap) {
					continue
				}
				last = snap
				select {
				case out <- snap:
				default:
					// drop the stale snapshot the reader has not taken yet
					select {
					case <-out:
					default:
					}
					out <- snap
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stopCtx()
			<-done
			for range out {
			}
		})
	}
	return out, cancel, nil
}
