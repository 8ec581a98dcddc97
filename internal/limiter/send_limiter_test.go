package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestSendLimiter_FixedWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewSendLimiter(client, 3, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ok, err := l.Allow(ctx, "jane@example.com")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("Allow #%d should be within the limit", i)
		}
	}

	ok, err := l.Allow(ctx, "jane@example.com")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("fourth send should be throttled")
	}

	ok, _ = l.Allow(ctx, "john@example.com")
	if !ok {
		t.Fatal("other addresses have their own window")
	}

	mr.FastForward(time.Minute + time.Second)

	ok, err = l.Allow(ctx, "jane@example.com")
	if err != nil || !ok {
		t.Fatalf("window should reset after expiry, got ok=%v err=%v", ok, err)
	}
}

func TestSendLimiter_KeysAreHashed(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewSendLimiter(client, 5, time.Minute)

	if _, err := l.Allow(context.Background(), "jane@example.com"); err != nil {
		t.Fatalf("Allow: %v", err)
	}

	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one key, got %v", keys)
	}
	if strings.Contains(keys[0], "jane") || !strings.HasPrefix(keys[0], keyPrefix) {
		t.Fatalf("unexpected key %q", keys[0])
	}
	if ttl := mr.TTL(keys[0]); ttl != time.Minute {
		t.Fatalf("expected window ttl, got %v", ttl)
	}
}

func TestSendLimiter_Disabled(t *testing.T) {
	l := NewSendLimiter(nil, 0, time.Minute)

	ok, err := l.Allow(context.Background(), "jane@example.com")
	if err != nil || !ok {
		t.Fatalf("disabled limiter must allow, got ok=%v err=%v", ok, err)
	}
}

func TestSendLimiter_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	l := NewSendLimiter(client, 3, time.Minute)

	_, err = l.Allow(context.Background(), "jane@example.com")
	if !errors.Is(err, ErrLimiterUnavailable) {
		t.Fatalf("expected ErrLimiterUnavailable, got %v", err)
	}
}

func TestSendLimiter_RestoresMissingWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewSendLimiter(client, 3, time.Minute)
	ctx := context.Background()

	// Counter left over limit with no expiry, as after a failed EXPIRE
	redisKey := sendKey("jane@example.com")
	if err := mr.Set(redisKey, "7"); err != nil {
		t.Fatalf("seed key: %v", err)
	}
	if ttl := mr.TTL(redisKey); ttl != 0 {
		t.Fatalf("seeded key should have no ttl, got %v", ttl)
	}

	ok, err := l.Allow(ctx, "jane@example.com")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("send over the limit should be throttled")
	}
	if ttl := mr.TTL(redisKey); ttl != time.Minute {
		t.Fatalf("expected window ttl to be restored, got %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)

	ok, err = l.Allow(ctx, "jane@example.com")
	if err != nil || !ok {
		t.Fatalf("address should recover after the window, got ok=%v err=%v", ok, err)
	}
}

func TestSendLimiter_KeepsRunningWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewSendLimiter(client, 5, time.Minute)
	ctx := context.Background()

	if _, err := l.Allow(ctx, "jane@example.com"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	mr.FastForward(20 * time.Second)
	if _, err := l.Allow(ctx, "jane@example.com"); err != nil {
		t.Fatalf("Allow: %v", err)
	}

	if ttl := mr.TTL(sendKey("jane@example.com")); ttl != 40*time.Second {
		t.Fatalf("second send must not extend the window, got %v", ttl)
	}
}
