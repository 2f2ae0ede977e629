package types

import (
	"testing"
	"time"
)

func TestStatusDerivedFromRoles(t *testing.T) {
	s := Session{ID: "s1", Roles: map[Role]string{}}
	if s.Status() != StatusWaiting {
		t.Fatalf("empty session: expected waiting, got %q", s.Status())
	}
	s.Roles[RoleEmitter] = "c1"
	if s.Status() != StatusWaiting {
		t.Fatalf("emitter only: expected waiting, got %q", s.Status())
	}
	s.Roles[RoleReceiver] = "c2"
	if s.Status() != StatusConnected {
		t.Fatalf("both roles: expected connected, got %q", s.Status())
	}
}

func TestExpiredIsStrictlyAfter(t *testing.T) {
	exp := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Session{ExpiresAt: exp}
	if s.Expired(exp) {
		t.Fatalf("now == expiresAt must not be expired")
	}
	if !s.Expired(exp.Add(time.Millisecond)) {
		t.Fatalf("now > expiresAt must be expired")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := Session{Roles: map[Role]string{RoleEmitter: "c1"}}
	c := s.Clone()
	c.Roles[RoleReceiver] = "c2"
	if _, ok := s.Roles[RoleReceiver]; ok {
		t.Fatalf("clone mutation leaked into original")
	}
}

func TestRoleValid(t *testing.T) {
	cases := map[Role]bool{
		RoleEmitter:  true,
		RoleReceiver: true,
		"viewer":     false,
		"":           false,
	}
	for r, want := range cases {
		if got := r.Valid(); got != want {
			t.Errorf("Role(%q).Valid() = %v, want %v", r, got, want)
		}
	}
	if RoleEmitter.Other() != RoleReceiver || RoleReceiver.Other() != RoleEmitter {
		t.Fatalf("Other() mismatch")
	}
}
