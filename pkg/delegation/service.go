// Package delegation implements the delegation lifecycle aggregate.
//
// Every state-changing operation wraps exactly one ledger append; the
// mutation becomes visible only after the append commits, so the chain
// and the aggregate state cannot drift apart. When an append loses the
// head race the aggregate is rebuilt from the chain and the operation's
// legality checks run again against the state that won, a bounded
// number of times before surfacing ErrConflict.
package delegation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yesselate/mandate/pkg/audit"
	"github.com/yesselate/mandate/pkg/authorize"
	"github.com/yesselate/mandate/pkg/contracts"
	"github.com/yesselate/mandate/pkg/ledger"
)

const defaultMaxRetries = 3

// systemActor authors entries produced by the system itself (expiry).
var systemActor = contracts.Actor{ID: "system", Name: "system", Role: "system"}

// YearCounter supplies the count of delegations already created in a
// calendar year, for sequential code generation. Injected, not owned.
type YearCounter interface {
	CreatedInYear(ctx context.Context, year int) (uint32, error)
}

// CreateParams is the input to Create.
type CreateParams struct {
	Grantor       contracts.Actor
	Delegate      contracts.Actor
	Bureau        string
	StartsAt      time.Time
	EndsAt        time.Time
	Extendable    bool
	MaxExtensions uint32
	ExtensionDays uint32
	Scope         contracts.Scope
	Limits        contracts.Limits
	Controls      contracts.Controls
}

// Service drives delegation lifecycle operations through the ledger.
type Service struct {
	ledger     *ledger.Service
	counter    YearCounter
	evaluator  *authorize.Evaluator
	audit      audit.Logger
	clock      func() time.Time
	maxRetries int
}

// NewService creates the aggregate service.
func NewService(l *ledger.Service, counter YearCounter, evaluator *authorize.Evaluator) *Service {
	return &Service{
		ledger:     l,
		counter:    counter,
		evaluator:  evaluator,
		audit:      audit.Nop{},
		clock:      time.Now,
		maxRetries: defaultMaxRetries,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// WithAudit attaches an audit sink.
func (s *Service) WithAudit(a audit.Logger) *Service {
	s.audit = a
	return s
}

// WithMaxRetries bounds the append retry loop.
func (s *Service) WithMaxRetries(n int) *Service {
	s.maxRetries = n
	return s
}

// appendRetry runs one operation attempt, retrying a bounded number of
// times when another append won the head race. Before each retry the
// aggregate is rebuilt from the chain, so the attempt's legality checks
// and event details are always derived from the state that won.
func (s *Service) appendRetry(ctx context.Context, d *contracts.Delegation, attempt func() (*contracts.LedgerEntry, error)) (*contracts.LedgerEntry, error) {
	var lastErr error
	for i := 0; i <= s.maxRetries; i++ {
		entry, err := attempt()
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ledger.ErrConcurrentAppend) {
			return nil, err
		}
		lastErr = err
		if err := s.refresh(ctx, d); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrConflict, lastErr)
}

// refresh replaces d with the aggregate state replayed from its chain.
// A chain with no entries yet leaves d untouched.
func (s *Service) refresh(ctx context.Context, d *contracts.Delegation) error {
	entries, err := s.ledger.Export(ctx, d.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		return err
	}
	current, err := Replay(entries)
	if err != nil {
		return err
	}
	*d = *current
	return nil
}

// Create validates the grant, generates its year-scoped code and founds
// its chain with a CREATED entry. The delegation starts in DRAFT.
func (s *Service) Create(ctx context.Context, p CreateParams) (*contracts.Delegation, error) {
	if p.Grantor.IsZero() {
		return nil, &ValidationError{Field: "grantor", Reason: "actor is required"}
	}
	if p.Delegate.IsZero() {
		return nil, &ValidationError{Field: "delegate", Reason: "actor is required"}
	}
	if p.Bureau == "" {
		return nil, &ValidationError{Field: "bureau", Reason: "must not be empty"}
	}
	if p.StartsAt.IsZero() || p.EndsAt.IsZero() {
		return nil, &ValidationError{Field: "window", Reason: "starts_at and ends_at are required"}
	}
	if !p.EndsAt.After(p.StartsAt) {
		return nil, &ValidationError{Field: "window", Reason: "ends_at must be after starts_at"}
	}

	year := p.StartsAt.Year()
	created, err := s.counter.CreatedInYear(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("delegation: code sequence: %w", err)
	}

	d := &contracts.Delegation{
		ID:            uuid.New().String(),
		Code:          fmt.Sprintf("DEL-%04d-%03d", year, created+1),
		Grantor:       p.Grantor,
		Delegate:      p.Delegate,
		Bureau:        p.Bureau,
		StartsAt:      p.StartsAt,
		EndsAt:        p.EndsAt,
		Extendable:    p.Extendable,
		MaxExtensions: p.MaxExtensions,
		ExtensionDays: p.ExtensionDays,
		Scope:         p.Scope,
		Limits:        p.Limits,
		Controls:      p.Controls,
		Status:        contracts.StatusDraft,
	}

	entry, err := s.appendRetry(ctx, d, func() (*contracts.LedgerEntry, error) {
		return s.ledger.Append(ctx, d.ID, contracts.EventCreated, p.Grantor,
			fmt.Sprintf("delegation %s created", d.Code),
			contracts.CreatedDetails{
				Code:          d.Code,
				Grantor:       d.Grantor,
				Delegate:      d.Delegate,
				Bureau:        d.Bureau,
				StartsAt:      d.StartsAt,
				EndsAt:        d.EndsAt,
				Extendable:    d.Extendable,
				MaxExtensions: d.MaxExtensions,
				ExtensionDays: d.ExtensionDays,
				Scope:         d.Scope,
				Limits:        d.Limits,
				Controls:      d.Controls,
			})
	})
	if err != nil {
		return nil, err
	}

	d.HeadHash = entry.EventHash
	d.DecisionHash = entry.EventHash
	d.CreatedAt = entry.Timestamp

	_ = s.audit.Record(ctx, p.Grantor, "delegation.create", d.ID, map[string]any{"code": d.Code})
	return d, nil
}

// Activate turns a DRAFT delegation ACTIVE.
func (s *Service) Activate(ctx context.Context, d *contracts.Delegation, by contracts.Actor) error {
	entry, err := s.appendRetry(ctx, d, func() (*contracts.LedgerEntry, error) {
		if d.Status != contracts.StatusDraft {
			return nil, &IllegalTransitionError{From: d.Status, Operation: "activate"}
		}
		return s.ledger.Append(ctx, d.ID, contracts.EventActivated, by,
			fmt.Sprintf("delegation %s activated", d.Code), contracts.ActivatedDetails{})
	})
	if err != nil {
		return err
	}

	d.Status = contracts.StatusActive
	d.HeadHash = entry.EventHash
	_ = s.audit.Record(ctx, by, "delegation.activate", d.ID, nil)
	return nil
}

// Extend pushes endsAt forward by additionalDays, bounded by the granted
// maximum. Legal only while ACTIVE.
func (s *Service) Extend(ctx context.Context, d *contracts.Delegation, by contracts.Actor, additionalDays uint32) error {
	var newEndsAt time.Time
	entry, err := s.appendRetry(ctx, d, func() (*contracts.LedgerEntry, error) {
		if d.Status != contracts.StatusActive {
			return nil, &IllegalTransitionError{From: d.Status, Operation: "extend"}
		}
		if !d.Extendable {
			return nil, ErrNotExtendable
		}
		if d.ExtensionsUsed >= d.MaxExtensions {
			return nil, ErrExtensionExhausted
		}
		newEndsAt = d.EndsAt.AddDate(0, 0, int(additionalDays))
		return s.ledger.Append(ctx, d.ID, contracts.EventExtended, by,
			fmt.Sprintf("delegation %s extended by %d days", d.Code, additionalDays),
			contracts.ExtendedDetails{
				AdditionalDays: additionalDays,
				NewEndsAt:      newEndsAt,
				ExtensionsUsed: d.ExtensionsUsed + 1,
			})
	})
	if err != nil {
		return err
	}

	d.EndsAt = newEndsAt
	d.ExtensionsUsed++
	d.HeadHash = entry.EventHash
	_ = s.audit.Record(ctx, by, "delegation.extend", d.ID, map[string]any{"additional_days": additionalDays})
	return nil
}

// Suspend pauses an ACTIVE delegation.
func (s *Service) Suspend(ctx context.Context, d *contracts.Delegation, by contracts.Actor, reason string) error {
	entry, err := s.appendRetry(ctx, d, func() (*contracts.LedgerEntry, error) {
		if d.Status != contracts.StatusActive {
			return nil, &IllegalTransitionError{From: d.Status, Operation: "suspend"}
		}
		return s.ledger.Append(ctx, d.ID, contracts.EventSuspended, by,
			fmt.Sprintf("delegation %s suspended", d.Code), contracts.SuspendedDetails{Reason: reason})
	})
	if err != nil {
		return err
	}

	d.Status = contracts.StatusSuspended
	d.Suspension = &contracts.Suspension{Reason: reason, Since: entry.Timestamp, By: by}
	d.HeadHash = entry.EventHash
	_ = s.audit.Record(ctx, by, "delegation.suspend", d.ID, map[string]any{"reason": reason})
	return nil
}

// Resume reactivates a SUSPENDED delegation.
func (s *Service) Resume(ctx context.Context, d *contracts.Delegation, by contracts.Actor) error {
	entry, err := s.appendRetry(ctx, d, func() (*contracts.LedgerEntry, error) {
		if d.Status != contracts.StatusSuspended {
			return nil, &IllegalTransitionError{From: d.Status, Operation: "resume"}
		}
		return s.ledger.Append(ctx, d.ID, contracts.EventResumed, by,
			fmt.Sprintf("delegation %s resumed", d.Code), contracts.ResumedDetails{})
	})
	if err != nil {
		return err
	}

	d.Status = contracts.StatusActive
	d.Suspension = nil
	d.HeadHash = entry.EventHash
	_ = s.audit.Record(ctx, by, "delegation.resume", d.ID, nil)
	return nil
}

// Revoke terminates a delegation from any non-terminal state. Irreversible.
func (s *Service) Revoke(ctx context.Context, d *contracts.Delegation, by contracts.Actor, reason string) error {
	entry, err := s.appendRetry(ctx, d, func() (*contracts.LedgerEntry, error) {
		if d.Status.Terminal() {
			return nil, ErrAlreadyTerminal
		}
		return s.ledger.Append(ctx, d.ID, contracts.EventRevoked, by,
			fmt.Sprintf("delegation %s revoked", d.Code), contracts.RevokedDetails{Reason: reason})
	})
	if err != nil {
		return err
	}

	d.Status = contracts.StatusRevoked
	d.Revocation = &contracts.Revocation{Reason: reason, At: entry.Timestamp, By: by}
	d.HeadHash = entry.EventHash
	_ = s.audit.Record(ctx, by, "delegation.revoke", d.ID, map[string]any{"reason": reason})
	return nil
}

// MarkExpired terminates a delegation whose validity window has passed.
// Idempotent: an already-EXPIRED delegation is left untouched.
func (s *Service) MarkExpired(ctx context.Context, d *contracts.Delegation) error {
	if d.Status == contracts.StatusExpired {
		return nil
	}

	entry, err := s.appendRetry(ctx, d, func() (*contracts.LedgerEntry, error) {
		if d.Status == contracts.StatusExpired {
			return nil, nil
		}
		if d.Status == contracts.StatusRevoked {
			return nil, ErrAlreadyTerminal
		}
		if d.Status != contracts.StatusActive && d.Status != contracts.StatusSuspended {
			return nil, &IllegalTransitionError{From: d.Status, Operation: "expire"}
		}
		if !s.clock().After(d.EndsAt) {
			return nil, ErrNotYetExpired
		}
		return s.ledger.Append(ctx, d.ID, contracts.EventExpired, systemActor,
			fmt.Sprintf("delegation %s expired", d.Code), contracts.ExpiredDetails{EndsAt: d.EndsAt})
	})
	if err != nil {
		return err
	}
	if entry == nil {
		// A racing expiry won; the refreshed state is already EXPIRED.
		return nil
	}

	d.Status = contracts.StatusExpired
	d.Suspension = nil
	d.HeadHash = entry.EventHash
	_ = s.audit.Record(ctx, systemActor, "delegation.expire", d.ID, nil)
	return nil
}

// RecordUsage ledgers one successful authorized action and updates the
// usage counters atomically with the append. The authorization is
// re-checked on every attempt; a denial surfaces as *NotAuthorizedError.
func (s *Service) RecordUsage(ctx context.Context, d *contracts.Delegation, by contracts.Actor, action authorize.Action, reference string) error {
	entry, err := s.appendRetry(ctx, d, func() (*contracts.LedgerEntry, error) {
		decision, err := s.evaluator.Authorize(ctx, d, action)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			return nil, &NotAuthorizedError{Violations: decision.Violations}
		}
		return s.ledger.Append(ctx, d.ID, contracts.EventUsed, by,
			fmt.Sprintf("delegation %s used for %d cents", d.Code, action.AmountCents),
			contracts.UsedDetails{
				AmountCents: action.AmountCents,
				Context:     action.Context(reference),
				UsageCount:  d.UsageCount + 1,
				TotalCents:  d.UsageTotalCents + action.AmountCents,
			})
	})
	if err != nil {
		return err
	}

	d.UsageCount++
	d.UsageTotalCents += action.AmountCents
	ts := entry.Timestamp
	d.LastUsedAt = &ts
	d.LastUsedFor = reference
	d.HeadHash = entry.EventHash

	if err := s.evaluator.RecordOp(ctx, d.ID, action.At); err != nil {
		// The chain already holds the truth; a rolling-counter failure
		// must not unwind a committed usage.
		_ = s.audit.Record(ctx, by, "delegation.usage_window_error", d.ID, map[string]any{"error": err.Error()})
	}

	_ = s.audit.Record(ctx, by, "delegation.use", d.ID, map[string]any{
		"amount_cents": action.AmountCents,
		"reference":    reference,
	})
	return nil
}

// Verify exposes chain verification for audit tooling.
func (s *Service) Verify(ctx context.Context, delegationID string) error {
	return s.ledger.Verify(ctx, delegationID)
}
