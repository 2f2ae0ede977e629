// Package health reports whether the session store is reachable.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Store is the part of the session store liveness depends on.
type Store interface {
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

type Status struct {
	OK        bool      `json:"ok"`
	Sessions  int       `json:"sessions"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"-"`
}

func (s Status) String() string {
	if !s.OK {
		return fmt.Sprintf("Health: FAIL - %s", s.Error)
	}
	return fmt.Sprintf("Health: OK (%d sessions)", s.Sessions)
}

// Check counts the stored sessions. Expired records the sweeper has not
// reached yet are included.
func Check(ctx context.Context, st Store) Status {
	n, err := st.Count(ctx)
	if err != nil {
		return Status{Error: err.Error(), CheckedAt: time.Now().UTC()}
	}
	return Status{OK: true, Sessions: n, CheckedAt: time.Now().UTC()}
}

// Handler serves Check as JSON: 200 {ok, sessions} or 503 {ok, error}.
func Handler(st Store, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		s := Check(ctx, st)

		w.Header().Set("Content-Type", "application/json")
		if !s.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": s.Error})
			return
		}
		_ = json.NewEncoder(w).Encode(s)
	})
}
