// Package authorize decides whether a delegation permits a prospective
// action. Evaluation is pure: it never mutates state and accumulates
// every violated rule so callers can report all reasons at once.
package authorize

import (
	"context"
	"fmt"
	"time"

	"github.com/yesselate/mandate/pkg/contracts"
)

// Action is one prospective usage of a delegation.
type Action struct {
	ProjectID   string    `json:"project_id"`
	BureauID    string    `json:"bureau_id"`
	SupplierID  string    `json:"supplier_id"`
	Category    string    `json:"category"`
	AmountCents int64     `json:"amount_cents"`
	At          time.Time `json:"at"`
}

// Context converts the action into the usage context ledgered on success.
func (a Action) Context(reference string) contracts.UsageContext {
	return contracts.UsageContext{
		ProjectID:  a.ProjectID,
		BureauID:   a.BureauID,
		SupplierID: a.SupplierID,
		Category:   a.Category,
		Reference:  reference,
	}
}

// ViolationCode identifies a denied rule.
type ViolationCode string

const (
	ViolationNotActive       ViolationCode = "NOT_ACTIVE"
	ViolationOutsideValidity ViolationCode = "OUTSIDE_VALIDITY"
	ViolationScopeProject    ViolationCode = "SCOPE_PROJECT"
	ViolationScopeBureau     ViolationCode = "SCOPE_BUREAU"
	ViolationScopeSupplier   ViolationCode = "SCOPE_SUPPLIER"
	ViolationScopeCategory   ViolationCode = "SCOPE_CATEGORY"
	ViolationAmountExceeded  ViolationCode = "AMOUNT_EXCEEDED"
	ViolationTotalExceeded   ViolationCode = "TOTAL_EXCEEDED"
	ViolationDailyOps        ViolationCode = "DAILY_OPS_EXCEEDED"
	ViolationMonthlyOps      ViolationCode = "MONTHLY_OPS_EXCEEDED"
	ViolationOutsideHours    ViolationCode = "OUTSIDE_HOURS"
	ViolationDayDisallowed   ViolationCode = "DAY_DISALLOWED"
)

// Violation is one denied rule with a human-readable detail.
type Violation struct {
	Code   ViolationCode `json:"code"`
	Detail string        `json:"detail"`
}

// Decision is the evaluator's structured outcome. A denial is an
// expected, frequent result and never an error.
type Decision struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations,omitempty"`
}

// UsageCounts are the delegation's operation counts in the day and month
// containing the action instant (UTC windows).
type UsageCounts struct {
	Daily   uint32
	Monthly uint32
}

// Evaluate applies every rule and returns the accumulated outcome.
// Unset limits always pass; amount and end-instant boundaries are
// inclusive.
func Evaluate(d *contracts.Delegation, action Action, usage UsageCounts) Decision {
	var violations []Violation
	deny := func(code ViolationCode, format string, args ...any) {
		violations = append(violations, Violation{Code: code, Detail: fmt.Sprintf(format, args...)})
	}

	if d.Status != contracts.StatusActive {
		deny(ViolationNotActive, "delegation is %s", d.Status)
	}
	if action.At.Before(d.StartsAt) || action.At.After(d.EndsAt) {
		deny(ViolationOutsideValidity, "action at %s outside %s..%s",
			action.At.Format(time.RFC3339), d.StartsAt.Format(time.RFC3339), d.EndsAt.Format(time.RFC3339))
	}

	if !d.Scope.Project.Contains(action.ProjectID) {
		deny(ViolationScopeProject, "project %s not in scope", action.ProjectID)
	}
	if !d.Scope.Bureau.Contains(action.BureauID) {
		deny(ViolationScopeBureau, "bureau %s not in scope", action.BureauID)
	}
	if !d.Scope.Supplier.Contains(action.SupplierID) {
		deny(ViolationScopeSupplier, "supplier %s not in scope", action.SupplierID)
	}
	if !d.Scope.Category.Contains(action.Category) {
		deny(ViolationScopeCategory, "category %s not in scope", action.Category)
	}

	if max := d.Limits.MaxAmountPerOpCents; max != nil && action.AmountCents > *max {
		deny(ViolationAmountExceeded, "amount %d exceeds per-operation limit %d", action.AmountCents, *max)
	}
	if max := d.Limits.MaxTotalAmountCents; max != nil && d.UsageTotalCents+action.AmountCents > *max {
		deny(ViolationTotalExceeded, "running total %d plus %d exceeds limit %d", d.UsageTotalCents, action.AmountCents, *max)
	}

	if max := d.Limits.MaxDailyOps; max != nil && usage.Daily >= *max {
		deny(ViolationDailyOps, "daily operations %d at limit %d", usage.Daily, *max)
	}
	if max := d.Limits.MaxMonthlyOps; max != nil && usage.Monthly >= *max {
		deny(ViolationMonthlyOps, "monthly operations %d at limit %d", usage.Monthly, *max)
	}

	if w := d.Limits.AllowedHours; w != nil && !w.Contains(action.At) {
		deny(ViolationOutsideHours, "time of day outside allowed hours")
	}
	if days := d.Limits.AllowedDays; len(days) > 0 {
		allowed := false
		for _, day := range days {
			if action.At.Weekday() == day {
				allowed = true
				break
			}
		}
		if !allowed {
			deny(ViolationDayDisallowed, "%s not an allowed day", action.At.Weekday())
		}
	}

	return Decision{Allowed: len(violations) == 0, Violations: violations}
}

// UsageWindow supplies and maintains the daily/monthly operation counts.
// CountOps is read-only; RecordOp is called once per successful usage.
type UsageWindow interface {
	CountOps(ctx context.Context, delegationID string, at time.Time) (UsageCounts, error)
	RecordOp(ctx context.Context, delegationID string, at time.Time) error
}

// Instrumentation receives authorization telemetry. Zero value is a no-op.
type Instrumentation interface {
	AuthorizationDecided(ctx context.Context, allowed bool)
}

type nopInstrumentation struct{}

func (nopInstrumentation) AuthorizationDecided(context.Context, bool) {}

// Evaluator binds the pure Evaluate to a usage window. It holds no
// per-delegation state and is safe for unlimited concurrent use.
type Evaluator struct {
	window  UsageWindow
	metrics Instrumentation
}

// NewEvaluator creates an evaluator over the given usage window.
func NewEvaluator(window UsageWindow) *Evaluator {
	return &Evaluator{window: window, metrics: nopInstrumentation{}}
}

// WithInstrumentation attaches telemetry.
func (e *Evaluator) WithInstrumentation(m Instrumentation) *Evaluator {
	e.metrics = m
	return e
}

// Authorize fetches the usage counts and evaluates the action. Fails
// closed: a window error denies nothing silently, it surfaces as an error.
func (e *Evaluator) Authorize(ctx context.Context, d *contracts.Delegation, action Action) (Decision, error) {
	var usage UsageCounts
	if d.Limits.MaxDailyOps != nil || d.Limits.MaxMonthlyOps != nil {
		if e.window == nil {
			return Decision{}, fmt.Errorf("authorize: delegation %s has operation-count limits but no usage window", d.ID)
		}
		var err error
		usage, err = e.window.CountOps(ctx, d.ID, action.At)
		if err != nil {
			return Decision{}, fmt.Errorf("authorize: usage window: %w", err)
		}
	}
	decision := Evaluate(d, action, usage)
	e.metrics.AuthorizationDecided(ctx, decision.Allowed)
	return decision, nil
}

// RecordOp forwards a successful usage to the window, if one is attached.
func (e *Evaluator) RecordOp(ctx context.Context, delegationID string, at time.Time) error {
	if e.window == nil {
		return nil
	}
	return e.window.RecordOp(ctx, delegationID, at)
}
