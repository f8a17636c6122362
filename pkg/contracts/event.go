package contracts

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType categorizes a ledger entry.
type EventType string

const (
	EventCreated   EventType = "CREATED"
	EventActivated EventType = "ACTIVATED"
	EventExtended  EventType = "EXTENDED"
	EventSuspended EventType = "SUSPENDED"
	EventResumed   EventType = "RESUMED"
	EventRevoked   EventType = "REVOKED"
	EventUsed      EventType = "USED"
	EventExpired   EventType = "EXPIRED"
)

// DetailsSchemaVersion is hashed into every entry so a future change to
// any detail payload shape forces a distinguishable chain.
const DetailsSchemaVersion = 1

// LedgerEntry is one immutable, hash-chained fact about a delegation.
// The first entry of a chain has PrevHash == "".
type LedgerEntry struct {
	ID           string          `json:"id"`
	DelegationID string          `json:"delegation_id"`
	Sequence     uint64          `json:"sequence"`
	EventType    EventType       `json:"event_type"`
	Actor        Actor           `json:"actor"`
	Summary      string          `json:"summary"`
	Details      json.RawMessage `json:"details"`
	Timestamp    time.Time       `json:"timestamp"`
	PrevHash     string          `json:"prev_hash"`
	EventHash    string          `json:"event_hash"`
}

// EventDetails is the closed union of per-event payloads. Each variant
// has a fixed schema so the canonical hash covers an auditable shape
// rather than free-form JSON.
type EventDetails interface {
	Kind() EventType
}

// CreatedDetails founds a delegation's chain. It carries the complete
// grant so the aggregate can be rebuilt from the chain alone.
type CreatedDetails struct {
	Code          string    `json:"code"`
	Grantor       Actor     `json:"grantor"`
	Delegate      Actor     `json:"delegate"`
	Bureau        string    `json:"bureau"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	Extendable    bool      `json:"extendable"`
	MaxExtensions uint32    `json:"max_extensions"`
	ExtensionDays uint32    `json:"extension_days"`
	Scope         Scope     `json:"scope"`
	Limits        Limits    `json:"limits"`
	Controls      Controls  `json:"controls"`
}

func (CreatedDetails) Kind() EventType { return EventCreated }

// ActivatedDetails carries no payload beyond the entry envelope.
type ActivatedDetails struct{}

func (ActivatedDetails) Kind() EventType { return EventActivated }

// ExtendedDetails records one bounded extension of the validity window.
type ExtendedDetails struct {
	AdditionalDays uint32    `json:"additional_days"`
	NewEndsAt      time.Time `json:"new_ends_at"`
	ExtensionsUsed uint32    `json:"extensions_used"`
}

func (ExtendedDetails) Kind() EventType { return EventExtended }

// SuspendedDetails records why the delegation was paused.
type SuspendedDetails struct {
	Reason string `json:"reason"`
}

func (SuspendedDetails) Kind() EventType { return EventSuspended }

// ResumedDetails carries no payload beyond the entry envelope.
type ResumedDetails struct{}

func (ResumedDetails) Kind() EventType { return EventResumed }

// RevokedDetails records the terminal revocation.
type RevokedDetails struct {
	Reason string `json:"reason"`
}

func (RevokedDetails) Kind() EventType { return EventRevoked }

// UsedDetails records one successful authorized usage.
type UsedDetails struct {
	AmountCents int64        `json:"amount_cents"`
	Context     UsageContext `json:"context"`
	UsageCount  uint32       `json:"usage_count"`
	TotalCents  int64        `json:"total_cents"`
}

func (UsedDetails) Kind() EventType { return EventUsed }

// ExpiredDetails records the automatic terminal expiry.
type ExpiredDetails struct {
	EndsAt time.Time `json:"ends_at"`
}

func (ExpiredDetails) Kind() EventType { return EventExpired }

// EncodeDetails serializes a detail variant for storage and hashing.
func EncodeDetails(d EventDetails) (json.RawMessage, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode %s details: %w", d.Kind(), err)
	}
	return raw, nil
}

// DecodeDetails parses a stored payload back into its typed variant.
func DecodeDetails(et EventType, raw json.RawMessage) (EventDetails, error) {
	var (
		d   EventDetails
		err error
	)
	switch et {
	case EventCreated:
		v := CreatedDetails{}
		err = json.Unmarshal(raw, &v)
		d = v
	case EventActivated:
		v := ActivatedDetails{}
		err = json.Unmarshal(raw, &v)
		d = v
	case EventExtended:
		v := ExtendedDetails{}
		err = json.Unmarshal(raw, &v)
		d = v
	case EventSuspended:
		v := SuspendedDetails{}
		err = json.Unmarshal(raw, &v)
		d = v
	case EventResumed:
		v := ResumedDetails{}
		err = json.Unmarshal(raw, &v)
		d = v
	case EventRevoked:
		v := RevokedDetails{}
		err = json.Unmarshal(raw, &v)
		d = v
	case EventUsed:
		v := UsedDetails{}
		err = json.Unmarshal(raw, &v)
		d = v
	case EventExpired:
		v := ExpiredDetails{}
		err = json.Unmarshal(raw, &v)
		d = v
	default:
		return nil, fmt.Errorf("unknown event type %q", et)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s details: %w", et, err)
	}
	return d, nil
}
