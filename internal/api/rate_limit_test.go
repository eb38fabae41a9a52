package api

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRateCounter struct {
	counts      map[string]int64
	expires     map[string]time.Duration
	expireCalls int
}

func newFakeRateCounter() *fakeRateCounter {
	return &fakeRateCounter{
		counts:  make(map[string]int64),
		expires: make(map[string]time.Duration),
	}
}

func (f *fakeRateCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeRateCounter) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expires[key] = ttl
	f.expireCalls++
	return redis.NewBoolResult(true, nil)
}

func TestBumpImportCountSetsWindowOnce(t *testing.T) {
	counter := newFakeRateCounter()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := bumpImportCount(ctx, counter, 7)
		if err != nil {
			t.Fatalf("bump %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("count: got %d want %d", got, want)
		}
	}

	key := "rate:import:7"
	if _, ok := counter.counts[key]; !ok {
		t.Fatalf("counter keyed per user, got keys %v", counter.counts)
	}
	if ttl := counter.expires[key]; ttl != importRateWindow {
		t.Fatalf("window ttl: got %v want %v", ttl, importRateWindow)
	}
	if counter.expireCalls != 1 {
		t.Fatalf("ttl must be set only on the first count, got %d calls", counter.expireCalls)
	}
}

func TestBumpImportCountIsPerUser(t *testing.T) {
	counter := newFakeRateCounter()
	ctx := context.Background()

	if _, err := bumpImportCount(ctx, counter, 1); err != nil {
		t.Fatalf("bump user 1: %v", err)
	}
	got, err := bumpImportCount(ctx, counter, 2)
	if err != nil {
		t.Fatalf("bump user 2: %v", err)
	}
	if got != 1 {
		t.Fatalf("users must not share a window, got %d", got)
	}
}
