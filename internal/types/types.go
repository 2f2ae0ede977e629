package types

import "time"

// Role is a participant kind inside a session.
type Role string

const (
	RoleEmitter  Role = "emitter"
	RoleReceiver Role = "receiver"
)

// Valid reports whether r is one of the two recognised roles.
func (r Role) Valid() bool {
	return r == RoleEmitter || r == RoleReceiver
}

// Other returns the counterpart role. Unknown roles have no counterpart.
func (r Role) Other() Role {
	switch r {
	case RoleEmitter:
		return RoleReceiver
	case RoleReceiver:
		return RoleEmitter
	}
	return ""
}

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusConnected Status = "connected"
)

// Session is a rendezvous record. Roles maps a role to the id of the
// connection holding it.
type Session struct {
	ID        string          `json:"session_id"`
	PIN       string          `json:"-"`
	Roles     map[Role]string `json:"roles"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Status is derived from Roles on every call and never stored.
func (s Session) Status() Status {
	if s.Roles[RoleEmitter] != "" && s.Roles[RoleReceiver] != "" {
		return StatusConnected
	}
	return StatusWaiting
}

// Expired is the single expiry predicate shared by lookups, relays and the
// sweeper.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Holder returns the connection id bound to role, or "".
func (s Session) Holder(role Role) string {
	return s.Roles[role]
}

// Clone returns a copy whose Roles map can be mutated independently.
func (s Session) Clone() Session {
	out := s
	out.Roles = make(map[Role]string, len(s.Roles))
	for k, v := range s.Roles {
		out.Roles[k] = v
	}
	return out
}
