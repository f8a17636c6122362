// Package audit records structured operational audit events emitted by
// the delegation aggregate. This is operator-facing telemetry; the
// tamper-evident record of truth is the hash-chained ledger.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yesselate/mandate/pkg/contracts"
)

// Event is one structured audit record.
type Event struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actor_id"`
	ActorRole    string         `json:"actor_role"`
	Action       string         `json:"action"`
	DelegationID string         `json:"delegation_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Logger records audit events.
type Logger interface {
	Record(ctx context.Context, actor contracts.Actor, action, delegationID string, metadata map[string]any) error
}

// logger writes newline-delimited JSON to a configurable writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
	clock  func() time.Time
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// Allows injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w, clock: time.Now}
}

func (l *logger) Record(ctx context.Context, actor contracts.Actor, action, delegationID string, metadata map[string]any) error {
	event := Event{
		ID:           uuid.New().String(),
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
		Action:       action,
		DelegationID: delegationID,
		Timestamp:    l.clock(),
		Metadata:     metadata,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.writer.Write(append(data, '\n'))
	return err
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, contracts.Actor, string, string, map[string]any) error {
	return nil
}
