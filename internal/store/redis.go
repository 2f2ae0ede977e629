package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"yuzu/rendezvous/internal/types"
)

const (
	fieldPIN       = "pin"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	rolePrefix     = "role:"

	// keyGrace keeps the Redis key around a little past expiresAt so that
	// expiry is always decided by Session.Expired, never by Redis alone.
	keyGrace = time.Minute
)

// bindScript runs the existence, expiry, pin and vacancy checks and the
// role write as one atomic step.
//
// KEYS[1] session key; ARGV pin, role, connID, now (unix ms).
var bindScript = redis.NewScript(`
local key = KEYS[1]
local exp = redis.call('HGET', key, 'expires_at')
if not exp then
  return 'NO_SESSION'
end
if tonumber(ARGV[4]) > tonumber(exp) then
  redis.call('DEL', key)
  return 'NO_SESSION'
end
if redis.call('HGET', key, 'pin') ~= ARGV[1] then
  return 'BAD_PIN'
end
if redis.call('HSETNX', key, 'role:' .. ARGV[2], ARGV[3]) == 0 then
  return 'TAKEN'
end
return 'OK'
`)

// RedisStore keeps one hash per session so several processes can share the
// session table. Relay scopes stay local to each process.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	opts   options
}

func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration, opts ...Option) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix + "session:",
		ttl:    ttl,
		opts:   buildOptions(opts),
	}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Create(ctx context.Context, pin string) (types.Session, error) {
	id, err := r.opts.newID()
	if err != nil {
		return types.Session{}, err
	}
	// Deadlines are persisted in milliseconds.
	now := r.opts.now().Truncate(time.Millisecond)
	sess := types.Session{
		ID:        id,
		PIN:       pin,
		Roles:     map[types.Role]string{},
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	key := r.key(id)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldPIN, pin,
			fieldCreatedAt, sess.CreatedAt.UnixMilli(),
			fieldExpiresAt, sess.ExpiresAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, key, sess.ExpiresAt.Add(keyGrace))
		return nil
	})
	if err != nil {
		return types.Session{}, fmt.Errorf("redis create session: %w", err)
	}
	return sess, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (types.Session, error) {
	sess, err := r.load(ctx, id)
	if err != nil {
		return types.Session{}, err
	}
	if sess.Expired(r.opts.now()) {
		if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
			return types.Session{}, fmt.Errorf("redis evict session: %w", err)
		}
		return types.Session{}, ErrNotFound
	}
	return sess, nil
}

func (r *RedisStore) BindRole(ctx context.Context, id, pin string, role types.Role, connID string) (types.Session, error) {
	now := strconv.FormatInt(r.opts.now().UnixMilli(), 10)
	res, err := bindScript.Run(ctx, r.client, []string{r.key(id)}, pin, string(role), connID, now).Text()
	if err != nil {
		return types.Session{}, fmt.Errorf("redis bind role: %w", err)
	}
	switch res {
	case "OK":
	case "NO_SESSION":
		return types.Session{}, ErrNotFound
	case "BAD_PIN":
		return types.Session{}, ErrBadPIN
	case "TAKEN":
		return types.Session{}, ErrRoleTaken
	default:
		return types.Session{}, fmt.Errorf("redis bind role: unexpected reply %q", res)
	}
	return r.load(ctx, id)
}

func (r *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete session: %w", err)
	}
	return n > 0, nil
}

func (r *RedisStore) DeleteExpired(ctx context.Context) ([]string, error) {
	now := r.opts.now()
	var out []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.HGet(ctx, key, fieldExpiresAt).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("redis sweep: %w", err)
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || !now.After(time.UnixMilli(ms)) {
			continue
		}
		n, err := r.client.Del(ctx, key).Result()
		if err != nil {
			return out, fmt.Errorf("redis sweep: %w", err)
		}
		if n > 0 {
			out = append(out, strings.TrimPrefix(key, r.prefix))
		}
	}
	if err := iter.Err(); err != nil {
		return out, fmt.Errorf("redis sweep: %w", err)
	}
	return out, nil
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis count: %w", err)
	}
	return n, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) load(ctx context.Context, id string) (types.Session, error) {
	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return types.Session{}, fmt.Errorf("redis get session: %w", err)
	}
	if len(fields) == 0 {
		return types.Session{}, ErrNotFound
	}
	return decodeSession(id, fields)
}

func decodeSession(id string, fields map[string]string) (types.Session, error) {
	created, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return types.Session{}, fmt.Errorf("session %s: bad %s: %w", id, fieldCreatedAt, err)
	}
	expires, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return types.Session{}, fmt.Errorf("session %s: bad %s: %w", id, fieldExpiresAt, err)
	}
	sess := types.Session{
		ID:        id,
		PIN:       fields[fieldPIN],
		Roles:     map[types.Role]string{},
		CreatedAt: time.UnixMilli(created).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
	}
	for k, v := range fields {
		if role, ok := strings.CutPrefix(k, rolePrefix); ok {
			sess.Roles[types.Role(role)] = v
		}
	}
	return sess, nil
}
