package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusDraft.Terminal())
	assert.False(t, StatusActive.Terminal())
	assert.False(t, StatusSuspended.Terminal())
	assert.True(t, StatusRevoked.Terminal())
	assert.True(t, StatusExpired.Terminal())
}

func TestScopeRuleContains(t *testing.T) {
	assert.True(t, AllowAll().Contains("anything"))

	list := ScopeRule{Mode: ScopeList, IDs: []string{"P1", "P2"}}
	assert.True(t, list.Contains("P1"))
	assert.False(t, list.Contains("P3"))

	exclude := ScopeRule{Mode: ScopeExclude, IDs: []string{"P3"}}
	assert.True(t, exclude.Contains("P1"))
	assert.False(t, exclude.Contains("P3"))

	// Empty list mode allows nothing; empty exclude allows everything.
	assert.False(t, ScopeRule{Mode: ScopeList}.Contains("P1"))
	assert.True(t, ScopeRule{Mode: ScopeExclude}.Contains("P1"))
}

func TestHourWindowContains(t *testing.T) {
	at := func(h, m int) time.Time {
		return time.Date(2026, 6, 1, h, m, 0, 0, time.UTC)
	}

	office := HourWindow{FromMinute: 8 * 60, ToMinute: 18 * 60}
	assert.True(t, office.Contains(at(8, 0)))
	assert.True(t, office.Contains(at(18, 0)))
	assert.True(t, office.Contains(at(12, 30)))
	assert.False(t, office.Contains(at(7, 59)))
	assert.False(t, office.Contains(at(18, 1)))

	// Night shift wraps past midnight.
	night := HourWindow{FromMinute: 22 * 60, ToMinute: 6 * 60}
	assert.True(t, night.Contains(at(23, 0)))
	assert.True(t, night.Contains(at(2, 0)))
	assert.True(t, night.Contains(at(6, 0)))
	assert.False(t, night.Contains(at(12, 0)))
}

func TestActorIsZero(t *testing.T) {
	assert.True(t, Actor{}.IsZero())
	assert.False(t, Actor{ID: "usr-1"}.IsZero())
}
