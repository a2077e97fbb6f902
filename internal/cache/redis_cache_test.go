package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisCache_StoreSent_Success(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	cache := NewRedisCache(rdb, 10*time.Second)

	ctx := context.Background()
	sentAt := time.Date(2026, 2, 2, 18, 0, 0, 0, time.UTC)

	if err := cache.StoreSent(ctx, "msg-42", "wamid.123", sentAt); err != nil {
		t.Fatalf("StoreSent() error: %v", err)
	}

	key := "wamsg:wamid.123"
	if !mr.Exists(key) {
		t.Fatalf("expected key %q to exist", key)
	}
	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttl)
	}

	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("failed to get key %q: %v", key, err)
	}
	var got sentValue
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("failed to unmarshal value: %v", err)
	}
	if got.MessageID != "msg-42" {
		t.Fatalf("expected MessageID %q, got %q", "msg-42", got.MessageID)
	}
	if !got.SentAt.Equal(sentAt) {
		t.Fatalf("expected SentAt %v, got %v", sentAt, got.SentAt)
	}
}

func TestRedisCache_LookupSent(t *testing.T) {
	t.Parallel()

	_, rdb := newTestRedis(t)
	cache := NewRedisCache(rdb, time.Minute)
	ctx := context.Background()

	if _, ok, err := cache.LookupSent(ctx, "wamid.unknown"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := cache.StoreSent(ctx, "first", "wamid.1", time.Now()); err != nil {
		t.Fatalf("StoreSent() error: %v", err)
	}
	if err := cache.StoreSent(ctx, "second", "wamid.1", time.Now()); err != nil {
		t.Fatalf("StoreSent() error: %v", err)
	}

	id, ok, err := cache.LookupSent(ctx, "wamid.1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if id != "second" {
		t.Fatalf("expected overwritten id %q, got %q", "second", id)
	}
}

func TestRedisCache_StoreSent_ContextCanceled(t *testing.T) {
	t.Parallel()

	_, rdb := newTestRedis(t)
	cache := NewRedisCache(rdb, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cache.StoreSent(ctx, "1", "x", time.Now()); err == nil {
		t.Fatalf("expected error due to canceled context, got nil")
	}
}

func TestRedisLocker_ExclusiveUntilReleased(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	locker := NewRedisLocker(rdb)
	ctx := context.Background()

	lock, ok, err := locker.Acquire(ctx, "process-due", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	if _, ok, err := locker.Acquire(ctx, "process-due", time.Minute); err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("lock:process-due") {
		t.Fatalf("expected lock key to be deleted")
	}

	if _, ok, err := locker.Acquire(ctx, "process-due", time.Minute); err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLocker_ReleaseDoesNotStealForeignLock(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	locker := NewRedisLocker(rdb)
	ctx := context.Background()

	lock, ok, err := locker.Acquire(ctx, "job", time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	// lock expired and someone else took it
	mr.FastForward(2 * time.Second)
	if err := mr.Set("lock:job", "other-owner"); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, err := mr.Get("lock:job")
	if err != nil || got != "other-owner" {
		t.Fatalf("foreign lock was removed: %q %v", got, err)
	}
}
