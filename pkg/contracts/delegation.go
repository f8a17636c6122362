package contracts

import "time"

// Status represents the lifecycle state of a delegation.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusRevoked   Status = "REVOKED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal reports whether no further lifecycle transition is legal.
func (s Status) Terminal() bool {
	return s == StatusRevoked || s == StatusExpired
}

// ScopeMode controls how a scope dimension constrains allowed targets.
type ScopeMode string

const (
	// ScopeAll places no constraint on the dimension.
	ScopeAll ScopeMode = "ALL"
	// ScopeList allows only the listed IDs.
	ScopeList ScopeMode = "LIST"
	// ScopeExclude allows everything except the listed IDs.
	ScopeExclude ScopeMode = "EXCLUDE"
)

// ScopeRule is one dimension's constraint.
type ScopeRule struct {
	Mode ScopeMode `json:"mode"`
	IDs  []string  `json:"ids,omitempty"`
}

// AllowAll is the unconstrained rule.
func AllowAll() ScopeRule { return ScopeRule{Mode: ScopeAll} }

// Contains reports whether id passes the rule.
func (r ScopeRule) Contains(id string) bool {
	switch r.Mode {
	case ScopeList:
		for _, v := range r.IDs {
			if v == id {
				return true
			}
		}
		return false
	case ScopeExclude:
		for _, v := range r.IDs {
			if v == id {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Scope constrains the targets a delegation may act on, per dimension.
type Scope struct {
	Project  ScopeRule `json:"project"`
	Bureau   ScopeRule `json:"bureau"`
	Supplier ScopeRule `json:"supplier"`
	Category ScopeRule `json:"category"`
}

// HourWindow is an inclusive time-of-day window, minutes since midnight.
// A window may wrap past midnight (From > To).
type HourWindow struct {
	FromMinute int `json:"from_minute"`
	ToMinute   int `json:"to_minute"`
}

// Contains reports whether t's time-of-day (in t's location) falls in the window.
func (w HourWindow) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.FromMinute <= w.ToMinute {
		return m >= w.FromMinute && m <= w.ToMinute
	}
	return m >= w.FromMinute || m <= w.ToMinute
}

// Limits bounds delegated usage. All amounts are integer minor units
// (cents); currency conversion is outside this core. A nil limit means
// the dimension is unrestricted.
type Limits struct {
	MaxAmountPerOpCents *int64         `json:"max_amount_per_op_cents,omitempty"`
	MaxTotalAmountCents *int64         `json:"max_total_amount_cents,omitempty"`
	MaxDailyOps         *uint32        `json:"max_daily_ops,omitempty"`
	MaxMonthlyOps       *uint32        `json:"max_monthly_ops,omitempty"`
	AllowedHours        *HourWindow    `json:"allowed_hours,omitempty"`
	AllowedDays         []time.Weekday `json:"allowed_days,omitempty"`
}

// Controls are extra procedural requirements attached to a delegation.
// Enforcement of each control happens in the surrounding workflow; the
// core only carries and ledgers them.
type Controls struct {
	RequiresDualControl   bool `json:"requires_dual_control"`
	RequiresLegalReview   bool `json:"requires_legal_review"`
	RequiresFinanceCheck  bool `json:"requires_finance_check"`
	RequiresStepUpAuth    bool `json:"requires_step_up_auth"`
	RequiresDocumentation bool `json:"requires_documentation"`
}

// Suspension records why and since when a delegation is suspended.
type Suspension struct {
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
	By     Actor     `json:"by"`
}

// Revocation records the terminal revocation of a delegation.
type Revocation struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
	By     Actor     `json:"by"`
}

// UsageContext describes what a recorded usage was for.
type UsageContext struct {
	ProjectID  string `json:"project_id,omitempty"`
	BureauID   string `json:"bureau_id,omitempty"`
	SupplierID string `json:"supplier_id,omitempty"`
	Category   string `json:"category,omitempty"`
	Reference  string `json:"reference,omitempty"`
}

// Delegation is a grant of decision-making authority from a grantor to a
// delegate, bounded by scope, limits and a validity window. Identity
// fields are immutable once created; everything else mutates only through
// aggregate operations that also append a ledger entry.
type Delegation struct {
	ID   string `json:"id"`
	Code string `json:"code"`

	Grantor  Actor  `json:"grantor"`
	Delegate Actor  `json:"delegate"`
	Bureau   string `json:"bureau"`

	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	Extendable     bool      `json:"extendable"`
	MaxExtensions  uint32    `json:"max_extensions"`
	ExtensionDays  uint32    `json:"extension_days"`
	ExtensionsUsed uint32    `json:"extensions_used"`

	Scope    Scope    `json:"scope"`
	Limits   Limits   `json:"limits"`
	Controls Controls `json:"controls"`

	UsageCount       uint32     `json:"usage_count"`
	UsageTotalCents  int64      `json:"usage_total_cents"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	LastUsedFor      string     `json:"last_used_for,omitempty"`

	// HeadHash is the hash of the most recently appended ledger entry;
	// DecisionHash is the hash of the founding CREATED entry.
	HeadHash     string `json:"head_hash"`
	DecisionHash string `json:"decision_hash"`

	Status     Status      `json:"status"`
	Suspension *Suspension `json:"suspension,omitempty"`
	Revocation *Revocation `json:"revocation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
