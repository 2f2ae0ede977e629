package signal

import (
	"errors"

	"yuzu/rendezvous/internal/store"
	"yuzu/rendezvous/internal/types"
)

// Code is the error string surfaced to clients in an ack.
type Code string

const (
	CodeNoSession     Code = "NO_SESSION"
	CodeBadPIN        Code = "BAD_PIN"
	CodeEmitterTaken  Code = "EMITTER_TAKEN"
	CodeReceiverTaken Code = "RECEIVER_TAKEN"
	CodeCreateFailed  Code = "CREATE_FAILED"
	CodeBadRole       Code = "BAD_ROLE"
	CodeAlreadyJoined Code = "ALREADY_JOINED"
	CodeInternal      Code = "INTERNAL_ERROR"
)

var (
	ErrCreateFailed  = errors.New("create session failed")
	ErrBadRole       = errors.New("unknown role")
	ErrAlreadyJoined = errors.New("connection already joined a session")
)

// CodeOf maps an error from CreateSession or Join to its wire code. role
// picks between the two *_TAKEN codes.
func CodeOf(err error, role types.Role) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, store.ErrNotFound):
		return CodeNoSession
	case errors.Is(err, store.ErrBadPIN):
		return CodeBadPIN
	case errors.Is(err, store.ErrRoleTaken):
		if role == types.RoleReceiver {
			return CodeReceiverTaken
		}
		return CodeEmitterTaken
	case errors.Is(err, ErrBadRole):
		return CodeBadRole
	case errors.Is(err, ErrAlreadyJoined):
		return CodeAlreadyJoined
	case errors.Is(err, ErrCreateFailed):
		return CodeCreateFailed
	default:
		return CodeInternal
	}
}
