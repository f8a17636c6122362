package delegation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yesselate/mandate/pkg/authorize"
	"github.com/yesselate/mandate/pkg/contracts"
)

var (
	// ErrNotExtendable rejects extend on a delegation created without
	// extension rights.
	ErrNotExtendable = errors.New("delegation: not extendable")
	// ErrExtensionExhausted rejects extend past the granted maximum.
	ErrExtensionExhausted = errors.New("delegation: extensions exhausted")
	// ErrAlreadyTerminal rejects mutations of revoked or expired delegations.
	ErrAlreadyTerminal = errors.New("delegation: already in a terminal state")
	// ErrNotYetExpired is the no-op outcome of markExpired before endsAt.
	ErrNotYetExpired = errors.New("delegation: validity window has not ended")
	// ErrConflict surfaces after bounded retries of a racing ledger append.
	ErrConflict = errors.New("delegation: concurrent modification, retries exhausted")
)

// ValidationError reports malformed input, surfaced immediately and
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("delegation: invalid %s: %s", e.Field, e.Reason)
}

// IllegalTransitionError reports a lifecycle rule violation.
type IllegalTransitionError struct {
	From      contracts.Status
	Operation string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("delegation: cannot %s from %s", e.Operation, e.From)
}

// NotAuthorizedError carries the evaluator's violations when a usage is
// recorded without a passing authorization.
type NotAuthorizedError struct {
	Violations []authorize.Violation
}

func (e *NotAuthorizedError) Error() string {
	codes := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		codes[i] = string(v.Code)
	}
	return "delegation: usage not authorized: " + strings.Join(codes, ", ")
}
