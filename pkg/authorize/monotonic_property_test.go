package authorize

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestAmountMonotonicity verifies that amount checks are monotone: a
// denial for exceeding the per-operation limit also denies any larger
// amount, and an allowed action stays allowed for any smaller amount.
func TestAmountMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	properties.Property("deny stays deny for larger amounts", prop.ForAll(
		func(limit int64, amount int64, delta int64) bool {
			d := activeDelegation()
			d.Limits.MaxAmountPerOpCents = &limit

			first := Evaluate(d, Action{AmountCents: amount, At: base}, UsageCounts{})
			if first.Allowed {
				return true
			}
			second := Evaluate(d, Action{AmountCents: amount + delta, At: base}, UsageCounts{})
			return !second.Allowed
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 2_000_000),
		gen.Int64Range(0, 1_000_000),
	))

	properties.Property("allow stays allow for smaller amounts", prop.ForAll(
		func(limit int64, amount int64, delta int64) bool {
			d := activeDelegation()
			d.Limits.MaxAmountPerOpCents = &limit

			first := Evaluate(d, Action{AmountCents: amount, At: base}, UsageCounts{})
			if !first.Allowed {
				return true
			}
			smaller := amount - delta
			if smaller < 0 {
				smaller = 0
			}
			second := Evaluate(d, Action{AmountCents: smaller, At: base}, UsageCounts{})
			return second.Allowed
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 2_000_000),
		gen.Int64Range(0, 1_000_000),
	))

	properties.TestingRun(t)
}
