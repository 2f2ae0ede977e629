package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"yuzu/rendezvous/internal/types"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T, clock *fakeClock, opts ...Option) Store {
		_, client := newTestRedis(t)
		return NewRedis(client, "test:", testTTL, append([]Option{WithClock(clock.Now)}, opts...)...)
	})
}

func TestRedisStoreLayout(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	st := NewRedis(client, "rv:", testTTL)

	sess, err := st.Create(ctx, "1234")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key := "rv:session:" + sess.ID
	if !mr.Exists(key) {
		t.Fatalf("expected key %s, have %v", key, mr.Keys())
	}
	if got := mr.HGet(key, "pin"); got != "1234" {
		t.Fatalf("pin field = %q", got)
	}
	if ttl := mr.TTL(key); ttl <= testTTL {
		t.Fatalf("key ttl %v should exceed session ttl %v", ttl, testTTL)
	}

	if _, err := st.BindRole(ctx, sess.ID, "1234", types.RoleReceiver, "conn-9"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if got := mr.HGet(key, "role:receiver"); got != "conn-9" {
		t.Fatalf("role field = %q", got)
	}
}

func TestRedisStoreIgnoresForeignKeys(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	st := NewRedis(client, "rv:", testTTL)
	_ = mr.Set("other:thing", "x")
	if _, err := st.Create(ctx, "1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	n, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 session, got %d", n)
	}
}

func TestRedisStorePingFailure(t *testing.T) {
	mr, client := newTestRedis(t)
	st := NewRedis(client, "rv:", testTTL)
	mr.Close()
	if err := st.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error after server shutdown")
	}
	if _, err := st.Get(context.Background(), "x"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestRedisStoreDeadlineMatchesStoredValue(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	// A clock that is not on a millisecond boundary.
	clock := &fakeClock{now: time.Now().UTC().Truncate(time.Millisecond).Add(123456 * time.Nanosecond)}
	st := NewRedis(client, "rv:", testTTL, WithClock(clock.Now))

	sess, err := st.Create(ctx, "1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := st.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Fatalf("stored deadline %v differs from returned %v", got.ExpiresAt, sess.ExpiresAt)
	}

	clock.Advance(sess.ExpiresAt.Sub(clock.Now()))
	if _, err := st.BindRole(ctx, sess.ID, "1", types.RoleEmitter, "c1"); err != nil {
		t.Fatalf("bind at now == expiresAt: %v", err)
	}
}
