package validation

import "errors"

var (
	// ErrNotFound signals an unknown request id.
	ErrNotFound = errors.New("validation: request not found")
	// ErrNoLevels rejects creating a chain without levels.
	ErrNoLevels = errors.New("validation: at least one level is required")
	// ErrNotCurrentLevel rejects acting on a level other than the lowest
	// pending one.
	ErrNotCurrentLevel = errors.New("validation: not the current level")
	// ErrNotEligibleValidator rejects a decision by an actor outside the
	// level's validator set.
	ErrNotEligibleValidator = errors.New("validation: not an eligible validator")
	// ErrAlreadyDecided rejects re-deciding a terminal level or request.
	ErrAlreadyDecided = errors.New("validation: already decided")
	// ErrConflict surfaces a racing concurrent save.
	ErrConflict = errors.New("validation: concurrent modification")
)
