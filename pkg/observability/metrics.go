package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts the core's decision and ledger activity. It satisfies
// the instrumentation interfaces of the ledger and authorize packages.
type Metrics struct {
	appends        metric.Int64Counter
	verifyFailures metric.Int64Counter
	decisions      metric.Int64Counter
}

// NewMetrics registers the instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	appends, err := meter.Int64Counter("mandate.ledger.appends",
		metric.WithDescription("Ledger entries appended, by event type"))
	if err != nil {
		return nil, fmt.Errorf("observability: appends counter: %w", err)
	}
	verifyFailures, err := meter.Int64Counter("mandate.ledger.verify_failures",
		metric.WithDescription("Chain verifications that reported tampering"))
	if err != nil {
		return nil, fmt.Errorf("observability: verify counter: %w", err)
	}
	decisions, err := meter.Int64Counter("mandate.authz.decisions",
		metric.WithDescription("Authorization decisions, by outcome"))
	if err != nil {
		return nil, fmt.Errorf("observability: decisions counter: %w", err)
	}
	return &Metrics{appends: appends, verifyFailures: verifyFailures, decisions: decisions}, nil
}

func (m *Metrics) LedgerAppended(ctx context.Context, eventType string) {
	m.appends.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (m *Metrics) LedgerVerifyFailed(ctx context.Context) {
	m.verifyFailures.Add(ctx, 1)
}

func (m *Metrics) AuthorizationDecided(ctx context.Context, allowed bool) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("allowed", allowed)))
}
