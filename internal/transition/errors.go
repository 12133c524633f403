package transition

import (
	"context"
	"errors"
	"fmt"

	dErrors "stagegate/pkg/domain-errors"
	"stagegate/pkg/platform/sentinel"
)

// BlockedError is returned when a validator refuses a transition. It unwraps
// to a coded domain error, so dErrors.HasCode and CodeOf see VALIDATION_REJECTED,
// TERMINAL_STATE_VIOLATION or GOVERNANCE_REQUIRED.
type BlockedError struct {
	Code             dErrors.Code
	Reason           string
	RequiresApproval bool
	GateRequirements []string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *BlockedError) Unwrap() error {
	return dErrors.New(e.Code, e.Reason)
}

func (e *BlockedError) ApprovalRequired() bool { return e.RequiresApproval }

func (e *BlockedError) Requirements() []string { return e.GateRequirements }

// AsBlocked extracts a BlockedError from err's chain.
func AsBlocked(err error) (*BlockedError, bool) {
	var be *BlockedError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// wrapStoreErr translates store sentinels and deadline errors into coded
// domain errors. The cause is always preserved.
func wrapStoreErr(err error, kind, id, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("%s %s not found", kind, id))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict,
			fmt.Sprintf("%s %s changed concurrently; reread and retry", kind, id))
	case errors.Is(err, sentinel.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, fmt.Sprintf("%s timed out", op))
	default:
		return dErrors.Wrap(err, dErrors.CodeStoreError, fmt.Sprintf("%s failed", op))
	}
}

func outcomeFor(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound:
		return OutcomeNotFound
	case dErrors.CodeConflict:
		return OutcomeConflict
	case dErrors.CodeTimeout:
		return OutcomeTimeout
	default:
		return OutcomeStoreError
	}
}
