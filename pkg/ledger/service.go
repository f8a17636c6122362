// Package ledger implements the append-only, hash-chained event ledger.
//
// Each entry is linked to its predecessor via the predecessor's event
// hash; the first entry of a chain has an empty previous hash. Appends
// for one delegation are linearized through the store's optimistic
// compare-and-set on the head hash, so two racing mutations cannot both
// commit with the same predecessor.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/yesselate/mandate/pkg/canonicalize"
	"github.com/yesselate/mandate/pkg/contracts"
)

// Instrumentation receives ledger telemetry. The zero dependency is a no-op.
type Instrumentation interface {
	LedgerAppended(ctx context.Context, eventType string)
	LedgerVerifyFailed(ctx context.Context)
}

type nopInstrumentation struct{}

func (nopInstrumentation) LedgerAppended(context.Context, string) {}
func (nopInstrumentation) LedgerVerifyFailed(context.Context)     {}

// Service appends to and verifies delegation chains.
type Service struct {
	store   Store
	digest  canonicalize.Digest
	clock   func() time.Time
	metrics Instrumentation
}

// NewService creates a ledger service with the default SHA-256 digest.
func NewService(store Store) *Service {
	return &Service{
		store:   store,
		digest:  canonicalize.SHA256,
		clock:   time.Now,
		metrics: nopInstrumentation{},
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// WithDigest swaps the hash primitive. The digest must stay fixed for
// the lifetime of a chain; verifying with a different digest than the
// one that built the chain reports tampering.
func (s *Service) WithDigest(d canonicalize.Digest) *Service {
	s.digest = d
	return s
}

// WithInstrumentation attaches telemetry.
func (s *Service) WithInstrumentation(m Instrumentation) *Service {
	s.metrics = m
	return s
}

// hashEnvelope is the exact value whose canonical bytes are digested.
type hashEnvelope struct {
	SchemaVersion int                 `json:"schema_version"`
	DelegationID  string              `json:"delegation_id"`
	Sequence      uint64              `json:"sequence"`
	EventType     contracts.EventType `json:"event_type"`
	Actor         contracts.Actor     `json:"actor"`
	Summary       string              `json:"summary"`
	Details       json.RawMessage     `json:"details"`
	Timestamp     string              `json:"timestamp"`
	PrevHash      string              `json:"prev_hash"`
}

func (s *Service) entryHash(e contracts.LedgerEntry) (string, error) {
	env := hashEnvelope{
		SchemaVersion: contracts.DetailsSchemaVersion,
		DelegationID:  e.DelegationID,
		Sequence:      e.Sequence,
		EventType:     e.EventType,
		Actor:         e.Actor,
		Summary:       e.Summary,
		Details:       e.Details,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		PrevHash:      e.PrevHash,
	}
	return canonicalize.Hash(env, s.digest)
}

// Append records one event at the tip of a delegation's chain. A single
// attempt: if another append won the race for the same head, it returns
// ErrConcurrentAppend and the caller retries the whole operation.
func (s *Service) Append(ctx context.Context, delegationID string, et contracts.EventType, actor contracts.Actor, summary string, details contracts.EventDetails) (*contracts.LedgerEntry, error) {
	raw, err := contracts.EncodeDetails(details)
	if err != nil {
		return nil, err
	}

	head, err := s.store.ReadHead(ctx, delegationID)
	if err != nil {
		return nil, err
	}

	entry := contracts.LedgerEntry{
		ID:           uuid.New().String(),
		DelegationID: delegationID,
		Sequence:     head.Sequence + 1,
		EventType:    et,
		Actor:        actor,
		Summary:      summary,
		Details:      raw,
		Timestamp:    s.clock().UTC(),
		PrevHash:     head.Hash,
	}
	entry.EventHash, err = s.entryHash(entry)
	if err != nil {
		return nil, err
	}

	if err := s.store.Append(ctx, entry, head.Hash); err != nil {
		return nil, err
	}
	s.metrics.LedgerAppended(ctx, string(et))
	return &entry, nil
}

// Verify replays a delegation's chain from a snapshot, recomputing every
// event hash and checking each link to its predecessor. Returns nil for
// an intact chain, a *TamperError at the first broken entry otherwise.
// Read-only; safe to call concurrently with appends.
func (s *Service) Verify(ctx context.Context, delegationID string) error {
	entries, err := s.store.ReadAll(ctx, delegationID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return ErrNotFound
	}

	prevHash := ""
	for _, e := range entries {
		if e.PrevHash != prevHash {
			s.metrics.LedgerVerifyFailed(ctx)
			return &TamperError{DelegationID: delegationID, Sequence: e.Sequence, Reason: "previous hash does not match predecessor"}
		}
		computed, err := s.entryHash(e)
		if err != nil {
			s.metrics.LedgerVerifyFailed(ctx)
			return &TamperError{DelegationID: delegationID, Sequence: e.Sequence, Reason: "entry does not canonicalize"}
		}
		if computed != e.EventHash {
			s.metrics.LedgerVerifyFailed(ctx)
			return &TamperError{DelegationID: delegationID, Sequence: e.Sequence, Reason: "recomputed hash differs from stored hash"}
		}
		prevHash = e.EventHash
	}
	return nil
}

// Head returns the chain's current tip hash, empty for a new chain.
func (s *Service) Head(ctx context.Context, delegationID string) (string, error) {
	head, err := s.store.ReadHead(ctx, delegationID)
	if err != nil {
		return "", err
	}
	return head.Hash, nil
}

// Export returns the ordered entries of a delegation's chain for audit
// tooling.
func (s *Service) Export(ctx context.Context, delegationID string) ([]contracts.LedgerEntry, error) {
	entries, err := s.store.ReadAll(ctx, delegationID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}
