package authorize

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yesselate/mandate/pkg/contracts"
)

func i64(v int64) *int64   { return &v }
func u32(v uint32) *uint32 { return &v }

func activeDelegation() *contracts.Delegation {
	return &contracts.Delegation{
		ID:       "d1",
		Code:     "DEL-2026-001",
		Status:   contracts.StatusActive,
		StartsAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC),
		Scope: contracts.Scope{
			Project:  contracts.AllowAll(),
			Bureau:   contracts.AllowAll(),
			Supplier: contracts.AllowAll(),
			Category: contracts.AllowAll(),
		},
	}
}

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2026, month, day, hour, 0, 0, 0, time.UTC)
}

func TestEvaluateScenario(t *testing.T) {
	// The canonical scenario: per-op limit of 1,000,000 and a project
	// allow-list of {P1}.
	d := activeDelegation()
	d.Limits.MaxAmountPerOpCents = i64(1_000_000)
	d.Scope.Project = contracts.ScopeRule{Mode: contracts.ScopeList, IDs: []string{"P1"}}

	dec := Evaluate(d, Action{ProjectID: "P2", AmountCents: 500_000, At: at(time.June, 1, 10)}, UsageCounts{})
	require.False(t, dec.Allowed)
	require.Len(t, dec.Violations, 1)
	assert.Equal(t, ViolationScopeProject, dec.Violations[0].Code)

	dec = Evaluate(d, Action{ProjectID: "P1", AmountCents: 1_000_000, At: at(time.June, 1, 10)}, UsageCounts{})
	assert.True(t, dec.Allowed)

	dec = Evaluate(d, Action{ProjectID: "P1", AmountCents: 1_000_001, At: at(time.June, 1, 10)}, UsageCounts{})
	require.False(t, dec.Allowed)
	require.Len(t, dec.Violations, 1)
	assert.Equal(t, ViolationAmountExceeded, dec.Violations[0].Code)
}

func TestEvaluateAccumulatesAllViolations(t *testing.T) {
	d := activeDelegation()
	d.Status = contracts.StatusSuspended
	d.Limits.MaxAmountPerOpCents = i64(100)
	d.Scope.Project = contracts.ScopeRule{Mode: contracts.ScopeList, IDs: []string{"P1"}}

	dec := Evaluate(d, Action{ProjectID: "P2", AmountCents: 200, At: at(time.June, 1, 10)}, UsageCounts{})
	require.False(t, dec.Allowed)

	codes := make(map[ViolationCode]bool)
	for _, v := range dec.Violations {
		codes[v.Code] = true
	}
	assert.True(t, codes[ViolationNotActive])
	assert.True(t, codes[ViolationScopeProject])
	assert.True(t, codes[ViolationAmountExceeded])
}

func TestEvaluateStatuses(t *testing.T) {
	for _, status := range []contracts.Status{contracts.StatusDraft, contracts.StatusSuspended, contracts.StatusRevoked, contracts.StatusExpired} {
		d := activeDelegation()
		d.Status = status
		dec := Evaluate(d, Action{At: at(time.June, 1, 10)}, UsageCounts{})
		assert.False(t, dec.Allowed, "status %s must deny", status)
	}
}

func TestEvaluateValidityWindowInclusive(t *testing.T) {
	d := activeDelegation()

	dec := Evaluate(d, Action{At: d.EndsAt}, UsageCounts{})
	assert.True(t, dec.Allowed, "the end instant itself is still valid")

	dec = Evaluate(d, Action{At: d.EndsAt.Add(time.Second)}, UsageCounts{})
	assert.False(t, dec.Allowed)

	dec = Evaluate(d, Action{At: d.StartsAt.Add(-time.Second)}, UsageCounts{})
	assert.False(t, dec.Allowed)
}

func TestEvaluateExcludeScope(t *testing.T) {
	d := activeDelegation()
	d.Scope.Supplier = contracts.ScopeRule{Mode: contracts.ScopeExclude, IDs: []string{"S-banned"}}

	dec := Evaluate(d, Action{SupplierID: "S-ok", At: at(time.June, 1, 10)}, UsageCounts{})
	assert.True(t, dec.Allowed)

	dec = Evaluate(d, Action{SupplierID: "S-banned", At: at(time.June, 1, 10)}, UsageCounts{})
	require.False(t, dec.Allowed)
	assert.Equal(t, ViolationScopeSupplier, dec.Violations[0].Code)
}

func TestEvaluateTotalLimit(t *testing.T) {
	d := activeDelegation()
	d.Limits.MaxTotalAmountCents = i64(1000)
	d.UsageTotalCents = 900

	dec := Evaluate(d, Action{AmountCents: 100, At: at(time.June, 1, 10)}, UsageCounts{})
	assert.True(t, dec.Allowed)

	dec = Evaluate(d, Action{AmountCents: 101, At: at(time.June, 1, 10)}, UsageCounts{})
	require.False(t, dec.Allowed)
	assert.Equal(t, ViolationTotalExceeded, dec.Violations[0].Code)
}

func TestEvaluateOpCounters(t *testing.T) {
	d := activeDelegation()
	d.Limits.MaxDailyOps = u32(3)
	d.Limits.MaxMonthlyOps = u32(10)

	dec := Evaluate(d, Action{At: at(time.June, 1, 10)}, UsageCounts{Daily: 2, Monthly: 9})
	assert.True(t, dec.Allowed)

	dec = Evaluate(d, Action{At: at(time.June, 1, 10)}, UsageCounts{Daily: 3, Monthly: 9})
	require.False(t, dec.Allowed)
	assert.Equal(t, ViolationDailyOps, dec.Violations[0].Code)

	dec = Evaluate(d, Action{At: at(time.June, 1, 10)}, UsageCounts{Daily: 0, Monthly: 10})
	require.False(t, dec.Allowed)
	assert.Equal(t, ViolationMonthlyOps, dec.Violations[0].Code)
}

func TestEvaluateHoursAndDays(t *testing.T) {
	d := activeDelegation()
	d.Limits.AllowedHours = &contracts.HourWindow{FromMinute: 9 * 60, ToMinute: 17 * 60}
	d.Limits.AllowedDays = []time.Weekday{time.Monday, time.Tuesday}

	// 2026-06-01 is a Monday.
	dec := Evaluate(d, Action{At: at(time.June, 1, 10)}, UsageCounts{})
	assert.True(t, dec.Allowed)

	dec = Evaluate(d, Action{At: at(time.June, 1, 20)}, UsageCounts{})
	require.False(t, dec.Allowed)
	assert.Equal(t, ViolationOutsideHours, dec.Violations[0].Code)

	// 2026-06-03 is a Wednesday.
	dec = Evaluate(d, Action{At: at(time.June, 3, 10)}, UsageCounts{})
	require.False(t, dec.Allowed)
	assert.Equal(t, ViolationDayDisallowed, dec.Violations[0].Code)
}

func TestEvaluateUnsetLimitsPass(t *testing.T) {
	d := activeDelegation()
	dec := Evaluate(d, Action{AmountCents: 1 << 50, At: at(time.June, 1, 3)}, UsageCounts{Daily: 1 << 20, Monthly: 1 << 20})
	assert.True(t, dec.Allowed)
}

type fixedWindow struct {
	counts UsageCounts
	ops    int
}

func (w *fixedWindow) CountOps(ctx context.Context, delegationID string, at time.Time) (UsageCounts, error) {
	return w.counts, nil
}

func (w *fixedWindow) RecordOp(ctx context.Context, delegationID string, at time.Time) error {
	w.ops++
	return nil
}

func TestAuthorizeUsesWindow(t *testing.T) {
	d := activeDelegation()
	d.Limits.MaxDailyOps = u32(1)

	e := NewEvaluator(&fixedWindow{counts: UsageCounts{Daily: 1}})
	dec, err := e.Authorize(context.Background(), d, Action{At: at(time.June, 1, 10)})
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
}

func TestAuthorizeFailsClosedWithoutWindow(t *testing.T) {
	d := activeDelegation()
	d.Limits.MaxDailyOps = u32(1)

	e := NewEvaluator(nil)
	_, err := e.Authorize(context.Background(), d, Action{At: at(time.June, 1, 10)})
	assert.Error(t, err)
}
