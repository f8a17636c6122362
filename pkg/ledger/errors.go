package ledger

import (
	"errors"
	"fmt"
)

// ErrConcurrentAppend signals that another append won the race for the
// same head hash. The caller owns the retry.
var ErrConcurrentAppend = errors.New("ledger: concurrent append on stale head")

// ErrNotFound signals an unknown delegation chain.
var ErrNotFound = errors.New("ledger: no entries for delegation")

// TamperError reports the first entry at which a chain fails to
// reproduce. It is fatal to trust in that delegation's history and is
// never auto-repaired.
type TamperError struct {
	DelegationID string
	Sequence     uint64
	Reason       string
}

func (e *TamperError) Error() string {
	return fmt.Sprintf("ledger: chain for %s tampered at entry %d: %s", e.DelegationID, e.Sequence, e.Reason)
}
