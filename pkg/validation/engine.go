// Package validation drives approval requests through an ordered chain
// of authorities: one eligible approver per level, short-circuit
// rejection, optional auto-approved levels gated by CEL conditions.
package validation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yesselate/mandate/pkg/contracts"
)

// LevelSpec describes one level of a chain to create.
type LevelSpec struct {
	Name               string   `json:"name" yaml:"name"`
	Role               string   `json:"role" yaml:"role"`
	Validators         []string `json:"validators" yaml:"validators"`
	RequiredConditions []string `json:"required_conditions,omitempty" yaml:"required_conditions,omitempty"`
	AutoApprove        bool     `json:"auto_approve" yaml:"auto_approve"`
	// AutoApproveWhen is a CEL expression over the request facts. An
	// auto-approve level with an empty expression always skips.
	AutoApproveWhen string `json:"auto_approve_when,omitempty" yaml:"auto_approve_when,omitempty"`
}

// Engine owns multi-level requests and serializes approve/reject per
// request through a single lock, the same discipline the ledger applies
// per delegation.
type Engine struct {
	mu         sync.Mutex
	store      Store
	conditions *ConditionEvaluator
	clock      func() time.Time
}

// NewEngine creates an engine over the given store.
func NewEngine(store Store) (*Engine, error) {
	conditions, err := NewConditionEvaluator()
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:      store,
		conditions: conditions,
		clock:      time.Now,
	}, nil
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Create builds a request from the ordered level specs. Leading
// auto-approve levels whose condition holds are skipped immediately;
// a chain skipped end to end is approved outright.
func (e *Engine) Create(ctx context.Context, subjectID string, specs []LevelSpec, facts map[string]any) (*contracts.MultiLevelRequest, error) {
	if len(specs) == 0 {
		return nil, ErrNoLevels
	}
	for i, spec := range specs {
		if len(spec.Validators) == 0 && !spec.AutoApprove {
			return nil, fmt.Errorf("validation: level %d (%s) has no validators", i+1, spec.Name)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	req := &contracts.MultiLevelRequest{
		ID:            uuid.New().String(),
		SubjectID:     subjectID,
		CurrentLevel:  1,
		OverallStatus: contracts.RequestInProgress,
		Facts:         facts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for i, spec := range specs {
		req.Levels = append(req.Levels, contracts.ValidationLevel{
			Level:              uint32(i + 1),
			Name:               spec.Name,
			Role:               spec.Role,
			Validators:         append([]string(nil), spec.Validators...),
			Status:             contracts.LevelPending,
			RequiredConditions: append([]string(nil), spec.RequiredConditions...),
			AutoApprove:        spec.AutoApprove,
			AutoApproveWhen:    spec.AutoApproveWhen,
		})
	}

	e.advance(req, now)

	if err := e.store.Save(ctx, req, time.Time{}); err != nil {
		return nil, err
	}
	return req, nil
}

// Get returns a request snapshot.
func (e *Engine) Get(ctx context.Context, requestID string) (*contracts.MultiLevelRequest, error) {
	return e.store.Get(ctx, requestID)
}

// Approve records one validator's approval of the current level. Any one
// eligible validator suffices; the first decision wins. Approving the
// final level approves the whole request.
func (e *Engine) Approve(ctx context.Context, requestID string, level uint32, validatorID, comment string) (*contracts.MultiLevelRequest, error) {
	return e.decide(ctx, requestID, level, validatorID, comment, contracts.LevelApproved)
}

// Reject records one validator's rejection. The whole request becomes
// REJECTED immediately; remaining levels are never touched.
func (e *Engine) Reject(ctx context.Context, requestID string, level uint32, validatorID, comment string) (*contracts.MultiLevelRequest, error) {
	return e.decide(ctx, requestID, level, validatorID, comment, contracts.LevelRejected)
}

func (e *Engine) decide(ctx context.Context, requestID string, level uint32, validatorID, comment string, outcome contracts.LevelStatus) (*contracts.MultiLevelRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, err := e.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.OverallStatus != contracts.RequestInProgress {
		return nil, ErrAlreadyDecided
	}

	if level == 0 || int(level) > len(req.Levels) {
		return nil, ErrNotCurrentLevel
	}
	target := &req.Levels[level-1]
	if target.Terminal() {
		return nil, ErrAlreadyDecided
	}
	if level != e.activeLevel(req) {
		return nil, ErrNotCurrentLevel
	}

	eligible := false
	for _, v := range target.Validators {
		if v == validatorID {
			eligible = true
			break
		}
	}
	if !eligible {
		return nil, ErrNotEligibleValidator
	}

	version := req.UpdatedAt
	now := e.clock()
	target.Status = outcome
	target.DecidedBy = validatorID
	target.DecidedAt = &now
	target.Comment = comment

	if outcome == contracts.LevelRejected {
		req.OverallStatus = contracts.RequestRejected
	} else {
		if int(level) == len(req.Levels) {
			req.OverallStatus = contracts.RequestApproved
		} else {
			req.CurrentLevel = level + 1
			e.advance(req, now)
		}
	}
	req.UpdatedAt = now

	if err := e.store.Save(ctx, req, version); err != nil {
		return nil, err
	}
	return req, nil
}

// activeLevel is the lowest-indexed pending level.
func (e *Engine) activeLevel(req *contracts.MultiLevelRequest) uint32 {
	for _, l := range req.Levels {
		if l.Status == contracts.LevelPending {
			return l.Level
		}
	}
	return 0
}

// advance skips consecutive auto-approve levels whose condition holds
// against the request facts. Condition errors fail closed: the level
// stays pending for a human. A fully skipped chain is approved.
func (e *Engine) advance(req *contracts.MultiLevelRequest, now time.Time) {
	for int(req.CurrentLevel) <= len(req.Levels) {
		l := &req.Levels[req.CurrentLevel-1]
		if !l.AutoApprove {
			return
		}
		if expr := l.AutoApproveWhen; expr != "" {
			holds, err := e.conditions.Holds(expr, req.SubjectID, req.Facts)
			if err != nil || !holds {
				return
			}
		}
		l.Status = contracts.LevelSkipped
		l.DecidedAt = &now

		if int(req.CurrentLevel) == len(req.Levels) {
			req.OverallStatus = contracts.RequestApproved
			return
		}
		req.CurrentLevel++
	}
}
