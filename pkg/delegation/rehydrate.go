package delegation

import (
	"fmt"

	"github.com/yesselate/mandate/pkg/contracts"
	"github.com/yesselate/mandate/pkg/ledger"
)

// Replay folds a delegation's ordered chain back into its aggregate
// state. The chain is the record of truth: every mutating operation
// ledgers enough detail for this fold to reproduce the state it left
// behind.
func Replay(entries []contracts.LedgerEntry) (*contracts.Delegation, error) {
	if len(entries) == 0 {
		return nil, ledger.ErrNotFound
	}

	var d contracts.Delegation
	for i, e := range entries {
		details, err := contracts.DecodeDetails(e.EventType, e.Details)
		if err != nil {
			return nil, fmt.Errorf("delegation: replay entry %d: %w", e.Sequence, err)
		}

		if _, ok := details.(contracts.CreatedDetails); ok != (i == 0) {
			return nil, fmt.Errorf("delegation: replay: misplaced %s at sequence %d", e.EventType, e.Sequence)
		}

		switch v := details.(type) {
		case contracts.CreatedDetails:
			d = contracts.Delegation{
				ID:            e.DelegationID,
				Code:          v.Code,
				Grantor:       v.Grantor,
				Delegate:      v.Delegate,
				Bureau:        v.Bureau,
				StartsAt:      v.StartsAt,
				EndsAt:        v.EndsAt,
				Extendable:    v.Extendable,
				MaxExtensions: v.MaxExtensions,
				ExtensionDays: v.ExtensionDays,
				Scope:         v.Scope,
				Limits:        v.Limits,
				Controls:      v.Controls,
				Status:        contracts.StatusDraft,
				DecisionHash:  e.EventHash,
				CreatedAt:     e.Timestamp,
			}
		case contracts.ActivatedDetails:
			d.Status = contracts.StatusActive
		case contracts.ExtendedDetails:
			d.EndsAt = v.NewEndsAt
			d.ExtensionsUsed = v.ExtensionsUsed
		case contracts.SuspendedDetails:
			d.Status = contracts.StatusSuspended
			d.Suspension = &contracts.Suspension{Reason: v.Reason, Since: e.Timestamp, By: e.Actor}
		case contracts.ResumedDetails:
			d.Status = contracts.StatusActive
			d.Suspension = nil
		case contracts.RevokedDetails:
			d.Status = contracts.StatusRevoked
			d.Revocation = &contracts.Revocation{Reason: v.Reason, At: e.Timestamp, By: e.Actor}
		case contracts.UsedDetails:
			d.UsageCount = v.UsageCount
			d.UsageTotalCents = v.TotalCents
			ts := e.Timestamp
			d.LastUsedAt = &ts
			d.LastUsedFor = v.Context.Reference
		case contracts.ExpiredDetails:
			d.Status = contracts.StatusExpired
			d.Suspension = nil
		default:
			return nil, fmt.Errorf("delegation: replay entry %d: unknown details %T", e.Sequence, details)
		}

		d.HeadHash = e.EventHash
	}
	return &d, nil
}
