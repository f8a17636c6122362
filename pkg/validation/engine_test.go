package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yesselate/mandate/pkg/contracts"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(NewMemoryStore())
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return e.WithClock(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	})
}

func twoLevels() []LevelSpec {
	return []LevelSpec{
		{Name: "Bureau check", Role: "bureau_chief", Validators: []string{"v1", "v2"}},
		{Name: "Finance check", Role: "finance_director", Validators: []string{"v3"}},
	}
}

func TestCreateChain(t *testing.T) {
	e := newEngine(t)
	req, err := e.Create(context.Background(), "subject-1", twoLevels(), nil)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), req.CurrentLevel)
	assert.Equal(t, contracts.RequestInProgress, req.OverallStatus)
	require.Len(t, req.Levels, 2)
	assert.Equal(t, contracts.LevelPending, req.Levels[0].Status)
	assert.Equal(t, contracts.LevelPending, req.Levels[1].Status)
}

func TestCreateRequiresLevels(t *testing.T) {
	e := newEngine(t)
	_, err := e.Create(context.Background(), "subject-1", nil, nil)
	assert.ErrorIs(t, err, ErrNoLevels)
}

func TestApproveOrdering(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	req, err := e.Create(ctx, "subject-1", twoLevels(), nil)
	require.NoError(t, err)

	// Level 2 before level 1 is resolved.
	_, err = e.Approve(ctx, req.ID, 2, "v3", "eager")
	assert.ErrorIs(t, err, ErrNotCurrentLevel)

	req, err = e.Approve(ctx, req.ID, 1, "v2", "looks right")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), req.CurrentLevel)
	assert.Equal(t, contracts.LevelApproved, req.Levels[0].Status)
	assert.Equal(t, "v2", req.Levels[0].DecidedBy)
	assert.Equal(t, contracts.RequestInProgress, req.OverallStatus)

	req, err = e.Approve(ctx, req.ID, 2, "v3", "confirmed")
	require.NoError(t, err)
	assert.Equal(t, contracts.RequestApproved, req.OverallStatus)
	assert.Equal(t, uint32(2), req.CurrentLevel)
}

func TestApproveEligibility(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	req, err := e.Create(ctx, "subject-1", twoLevels(), nil)
	require.NoError(t, err)

	_, err = e.Approve(ctx, req.ID, 1, "intruder", "")
	assert.ErrorIs(t, err, ErrNotEligibleValidator)

	// Any one eligible validator suffices.
	req, err = e.Approve(ctx, req.ID, 1, "v1", "")
	require.NoError(t, err)
	assert.Equal(t, contracts.LevelApproved, req.Levels[0].Status)
}

func TestRejectShortCircuits(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	req, err := e.Create(ctx, "subject-1", append(twoLevels(),
		LevelSpec{Name: "Direction", Role: "director", Validators: []string{"v4"}}), nil)
	require.NoError(t, err)

	_, err = e.Approve(ctx, req.ID, 1, "v1", "")
	require.NoError(t, err)

	req, err = e.Reject(ctx, req.ID, 2, "v3", "budget frozen")
	require.NoError(t, err)
	assert.Equal(t, contracts.RequestRejected, req.OverallStatus)
	assert.Equal(t, contracts.LevelRejected, req.Levels[1].Status)
	assert.Equal(t, contracts.LevelPending, req.Levels[2].Status)

	// Nothing further succeeds on a terminal request.
	_, err = e.Approve(ctx, req.ID, 3, "v4", "")
	assert.ErrorIs(t, err, ErrAlreadyDecided)
	_, err = e.Reject(ctx, req.ID, 3, "v4", "")
	assert.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestRedecideTerminalLevel(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	req, err := e.Create(ctx, "subject-1", twoLevels(), nil)
	require.NoError(t, err)

	_, err = e.Approve(ctx, req.ID, 1, "v1", "")
	require.NoError(t, err)

	_, err = e.Approve(ctx, req.ID, 1, "v2", "me too")
	assert.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestUnknownRequestAndLevel(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.Approve(ctx, "nope", 1, "v1", "")
	assert.ErrorIs(t, err, ErrNotFound)

	req, err := e.Create(ctx, "subject-1", twoLevels(), nil)
	require.NoError(t, err)
	_, err = e.Approve(ctx, req.ID, 99, "v1", "")
	assert.ErrorIs(t, err, ErrNotCurrentLevel)
}

func TestAutoApproveSkips(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	specs := []LevelSpec{
		{Name: "Small amount waiver", Role: "system", AutoApprove: true, AutoApproveWhen: `facts.amount_cents < 50000`},
		{Name: "Finance check", Role: "finance_director", Validators: []string{"v3"}},
	}

	req, err := e.Create(ctx, "subject-1", specs, map[string]any{"amount_cents": 10_000})
	require.NoError(t, err)
	assert.Equal(t, contracts.LevelSkipped, req.Levels[0].Status)
	assert.Equal(t, uint32(2), req.CurrentLevel)

	// Condition not met: the level waits for a human instead.
	req2, err := e.Create(ctx, "subject-2", specs, map[string]any{"amount_cents": 90_000})
	require.NoError(t, err)
	assert.Equal(t, contracts.LevelPending, req2.Levels[0].Status)
	assert.Equal(t, uint32(1), req2.CurrentLevel)
}

func TestAutoApproveWholeChain(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	specs := []LevelSpec{
		{Name: "Waiver A", Role: "system", AutoApprove: true},
		{Name: "Waiver B", Role: "system", AutoApprove: true},
	}
	req, err := e.Create(ctx, "subject-1", specs, nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.RequestApproved, req.OverallStatus)
	assert.Equal(t, contracts.LevelSkipped, req.Levels[0].Status)
	assert.Equal(t, contracts.LevelSkipped, req.Levels[1].Status)
}

func TestAutoApproveAfterHumanApproval(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	specs := []LevelSpec{
		{Name: "Bureau check", Role: "bureau_chief", Validators: []string{"v1"}},
		{Name: "Known supplier waiver", Role: "system", AutoApprove: true, AutoApproveWhen: `facts.supplier_known`},
		{Name: "Direction", Role: "director", Validators: []string{"v4"}},
	}
	req, err := e.Create(ctx, "subject-1", specs, map[string]any{"supplier_known": true})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), req.CurrentLevel)

	req, err = e.Approve(ctx, req.ID, 1, "v1", "")
	require.NoError(t, err)
	assert.Equal(t, contracts.LevelSkipped, req.Levels[1].Status)
	assert.Equal(t, uint32(3), req.CurrentLevel)
}

func TestAutoApproveGuardSharedAcrossEngines(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := NewEngine(store)
	require.NoError(t, err)
	second, err := NewEngine(store)
	require.NoError(t, err)

	specs := []LevelSpec{
		{Name: "Bureau check", Role: "bureau_chief", Validators: []string{"v1"}},
		{Name: "Small amount waiver", Role: "system", AutoApprove: true, AutoApproveWhen: `facts.amount_cents < 50000`},
		{Name: "Finance check", Role: "finance_director", Validators: []string{"v3"}},
	}
	req, err := first.Create(ctx, "subject-1", specs, map[string]any{"amount_cents": 90_000})
	require.NoError(t, err)
	assert.Equal(t, `facts.amount_cents < 50000`, req.Levels[1].AutoApproveWhen)

	// The guard travels with the stored request: an engine that never saw
	// the creating specs still evaluates it instead of skipping blindly.
	req, err = second.Approve(ctx, req.ID, 1, "v1", "")
	require.NoError(t, err)
	assert.Equal(t, contracts.LevelPending, req.Levels[1].Status)
	assert.Equal(t, uint32(2), req.CurrentLevel)

	// With the condition satisfied the same engine skips the waiver.
	small, err := first.Create(ctx, "subject-2", specs, map[string]any{"amount_cents": 10_000})
	require.NoError(t, err)
	small, err = second.Approve(ctx, small.ID, 1, "v1", "")
	require.NoError(t, err)
	assert.Equal(t, contracts.LevelSkipped, small.Levels[1].Status)
	assert.Equal(t, uint32(3), small.CurrentLevel)
}

func TestConditionErrorFailsClosed(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	specs := []LevelSpec{
		{Name: "Broken waiver", Role: "system", Validators: []string{"v1"}, AutoApprove: true, AutoApproveWhen: `facts.missing_field > 1`},
		{Name: "Finance check", Role: "finance_director", Validators: []string{"v3"}},
	}
	req, err := e.Create(ctx, "subject-1", specs, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, contracts.LevelPending, req.Levels[0].Status)
	assert.Equal(t, uint32(1), req.CurrentLevel)
}
