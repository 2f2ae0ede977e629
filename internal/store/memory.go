package store

import (
	"context"
	"sync"
	"time"

	"yuzu/rendezvous/internal/types"
)

// MemoryStore keeps sessions in a process-local map.
type MemoryStore struct {
	ttl  time.Duration
	opts options

	mu       sync.Mutex
	sessions map[string]*types.Session
}

func NewMemory(ttl time.Duration, opts ...Option) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		opts:     buildOptions(opts),
		sessions: make(map[string]*types.Session),
	}
}

func (s *MemoryStore) Create(_ context.Context, pin string) (types.Session, error) {
	id, err := s.opts.newID()
	if err != nil {
		return types.Session{}, err
	}
	now := s.opts.now()
	sess := &types.Session{
		ID:        id,
		PIN:       pin,
		Roles:     map[types.Role]string{},
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = sess
	return sess.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.liveLocked(id)
	if err != nil {
		return types.Session{}, err
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) BindRole(_ context.Context, id, pin string, role types.Role, connID string) (types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.liveLocked(id)
	if err != nil {
		return types.Session{}, err
	}
	if sess.PIN != pin {
		return types.Session{}, ErrBadPIN
	}
	if sess.Roles[role] != "" {
		return types.Session{}, ErrRoleTaken
	}
	sess.Roles[role] = connID
	return sess.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context) ([]string, error) {
	now := s.opts.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// liveLocked returns the stored record, evicting it if it has expired.
func (s *MemoryStore) liveLocked(id string) (*types.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Expired(s.opts.now()) {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	return sess, nil
}
