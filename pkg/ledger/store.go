package ledger

import (
	"context"

	"github.com/yesselate/mandate/pkg/contracts"
)

// Head is the current tip of a delegation's chain. The zero value means
// no entries exist yet.
type Head struct {
	Hash     string
	Sequence uint64
}

// Store is the durable port for ledger entries. Implementations must
// honor the optimistic-append contract: Append commits the entry only if
// the stored head still equals expectedHead (empty string for a new
// chain), returning ErrConcurrentAppend otherwise. Entries are never
// rewritten or deleted; ReadAll returns a consistent snapshot in
// sequence order.
type Store interface {
	Append(ctx context.Context, entry contracts.LedgerEntry, expectedHead string) error
	ReadAll(ctx context.Context, delegationID string) ([]contracts.LedgerEntry, error)
	ReadHead(ctx context.Context, delegationID string) (Head, error)
}
