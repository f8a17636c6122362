package ledger

import (
	"context"
	"sync"

	"github.com/yesselate/mandate/pkg/contracts"
)

// MemoryStore is an in-memory Store satisfying the same optimistic-append
// contract as the SQL stores. Used in tests and as a reference double.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]contracts.LedgerEntry
	heads   map[string]Head
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]contracts.LedgerEntry),
		heads:   make(map[string]Head),
	}
}

func (m *MemoryStore) Append(ctx context.Context, entry contracts.LedgerEntry, expectedHead string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	head := m.heads[entry.DelegationID]
	if head.Hash != expectedHead {
		return ErrConcurrentAppend
	}

	m.entries[entry.DelegationID] = append(m.entries[entry.DelegationID], entry)
	m.heads[entry.DelegationID] = Head{Hash: entry.EventHash, Sequence: entry.Sequence}
	return nil
}

func (m *MemoryStore) ReadAll(ctx context.Context, delegationID string) ([]contracts.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.entries[delegationID]
	out := make([]contracts.LedgerEntry, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemoryStore) ReadHead(ctx context.Context, delegationID string) (Head, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.heads[delegationID], nil
}

// Tamper overwrites a stored entry in place, bypassing the append-only
// contract. Test hook for chain verification.
func (m *MemoryStore) Tamper(delegationID string, index int, mutate func(*contracts.LedgerEntry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mutate(&m.entries[delegationID][index])
}
