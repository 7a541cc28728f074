package container

import (
	"errors"
	"fmt"
)

// Sentinel errors for every result code the engine can surface. Handlers map
// these onto HTTP statuses; the engine itself never speaks HTTP.
var (
	ErrNotFound          = errors.New("not_found")
	ErrNotMember         = errors.New("not_member")
	ErrNotHost           = errors.New("not_host")
	ErrNotAdmin          = errors.New("not_admin")
	ErrFull              = errors.New("full")
	ErrAlreadyInLobby    = errors.New("already_in_lobby")
	ErrAlreadyInParty    = errors.New("already_in_party")
	ErrAlreadyMember     = errors.New("already_member")
	ErrMaxMembersTooLow  = errors.New("max_members_too_low")
	ErrCannotKickSelf    = errors.New("cannot_kick_self")
	ErrCannotPromoteSelf = errors.New("cannot_promote_self")
	ErrCannotDemoteSelf  = errors.New("cannot_demote_self")
	ErrLastAdmin         = errors.New("last_admin")
	ErrPasswordRequired  = errors.New("password_required")
	ErrInvalidPassword   = errors.New("invalid_password")
	ErrRequestRequired   = errors.New("request_required")
	ErrRequestPending    = errors.New("request_pending")
	ErrInvalidAttrs      = errors.New("invalid_attrs")
)

// HookRejectedError is returned when a before-hook vetoes a transition.
// The reason is application-defined and passed through verbatim.
type HookRejectedError struct {
	Hook   string
	Reason string
}

func (e *HookRejectedError) Error() string {
	return fmt.Sprintf("hook_rejected: %s (hook %s)", e.Reason, e.Hook)
}
