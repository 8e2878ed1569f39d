package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubscribeSlowReaderGetsNewestSnapshot(t *testing.T) {
	changes := make(chan struct{})
	watch := func(context.Context) (<-chan struct{}, func(), error) {
		return changes, func() {}, nil
	}
	var version atomic.Int64
	load := func(context.Context) (int64, error) { return version.Load(), nil }

	ch, cancel, err := subscribe(context.Background(), watch, load, func(a, b int64) bool { return a == b })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	for i := 1; i <= 3; i++ {
		version.Store(int64(i))
		changes <- struct{}{}
	}
	// the third send only returns once the second reload finished
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-ch:
			if v == 3 {
				return
			}
		case <-deadline:
			t.Fatalf("never observed the newest snapshot")
		}
	}
}

func TestSubscribeStopsOnContextCancel(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	watch := func(context.Context) (<-chan struct{}, func(), error) {
		return make(chan struct{}), func() { close(stopped) }, nil
	}
	load := func(context.Context) (string, error) { return "snapshot", nil }

	ch, cancel, err := subscribe(ctx, watch, load, func(a, b string) bool { return a == b })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if v := <-ch; v != "snapshot" {
		t.Fatalf("expected initial snapshot, got %q", v)
	}

	cancelCtx()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("watch not released after context cancel")
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed")
	}
}
