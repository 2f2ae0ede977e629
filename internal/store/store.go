package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"yuzu/rendezvous/internal/types"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrBadPIN    = errors.New("pin mismatch")
	ErrRoleTaken = errors.New("role already taken")
)

// Store owns session records. Implementations must make BindRole a single
// atomic check-and-set so that each role has at most one holder.
type Store interface {
	Create(ctx context.Context, pin string) (types.Session, error)
	// Get reports expired sessions as ErrNotFound and evicts them.
	Get(ctx context.Context, id string) (types.Session, error)
	// BindRole checks existence, pin and vacancy, in that order, and binds
	// connID to role only if all three pass.
	BindRole(ctx context.Context, id, pin string, role types.Role, connID string) (types.Session, error)
	// Delete is idempotent. It reports whether a record was removed.
	Delete(ctx context.Context, id string) (bool, error)
	DeleteExpired(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

type options struct {
	now   func() time.Time
	newID func() (string, error)
}

// Option customises a store. Mostly useful in tests.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(o *options) { o.newID = gen }
}

func buildOptions(opts []Option) options {
	o := options{
		now:   func() time.Time { return time.Now().UTC() },
		newID: randomID,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func randomID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return id.String(), nil
}
