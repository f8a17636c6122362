package authorize

import (
	"context"
	"errors"
	"time"

	"github.com/yesselate/mandate/pkg/contracts"
	"github.com/yesselate/mandate/pkg/ledger"
)

// LedgerWindow derives usage counts by replaying USED entries from the
// delegation's chain. The chain stays the single source of truth;
// RecordOp is a no-op because the aggregate's USED append already is the
// record.
type LedgerWindow struct {
	ledger *ledger.Service
}

func NewLedgerWindow(l *ledger.Service) *LedgerWindow {
	return &LedgerWindow{ledger: l}
}

func (w *LedgerWindow) CountOps(ctx context.Context, delegationID string, at time.Time) (UsageCounts, error) {
	entries, err := w.ledger.Export(ctx, delegationID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return UsageCounts{}, nil
		}
		return UsageCounts{}, err
	}

	ref := at.UTC()
	var counts UsageCounts
	for _, e := range entries {
		if e.EventType != contracts.EventUsed {
			continue
		}
		ts := e.Timestamp.UTC()
		if ts.Year() == ref.Year() && ts.Month() == ref.Month() {
			counts.Monthly++
			if ts.Day() == ref.Day() {
				counts.Daily++
			}
		}
	}
	return counts, nil
}

func (w *LedgerWindow) RecordOp(ctx context.Context, delegationID string, at time.Time) error {
	return nil
}
