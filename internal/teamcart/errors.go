package teamcart

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
)

// ErrStaleVersion marks an optimistic write that lost the race; command
// handlers reload and retry on it.
var ErrStaleVersion = errors.New("team cart version changed")

// Precondition messages surfaced to clients.
const (
	MsgNotHost           = "not host"
	MsgNotMember         = "not a member of this cart"
	MsgNoItems           = "cart has no items"
	MsgNoGuests          = "no members besides host"
	MsgNotLocked         = "cart is not locked"
	MsgNotOpen           = "cart is not open"
	MsgNotFullySettled   = "not fully settled"
	MsgAlreadyConverted  = "already converted"
	MsgSettlementStarted = "settlement already started"
	MsgDeadlinePassed    = "team cart deadline passed"
	MsgShareTokenExpired = "share token expired"
	MsgNotAcceptingJoins = "team cart is no longer accepting members"
)

func staleVersion() error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrStaleVersion, "team cart was modified concurrently")
}

// IsStaleVersion reports whether err came from a failed version check.
func IsStaleVersion(err error) bool {
	return errors.Is(err, ErrStaleVersion)
}

func terminalError(status enums.TeamCartStatus) error {
	return pkgerrors.Newf(pkgerrors.CodeInvalidState, "cart is %s", status).
		WithDetails(map[string]any{"status": status})
}

func validation(format string, args ...any) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf(format, args...))
}

func invalidState(message string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidState, message)
}

func forbidden(message string) error {
	return pkgerrors.New(pkgerrors.CodeForbidden, message)
}

func expired(message string) error {
	return pkgerrors.New(pkgerrors.CodeExpired, message)
}
