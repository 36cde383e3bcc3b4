package store

import (
	"context"
	"sync"

	"github.com/gomoncli/zadarma-bridge/internal/correlator"
)

// Memory is an in-process store for tests. It honors the same contract as
// the file store: callbacks see a consistent snapshot and updates replace
// the whole collection under the lock.
type Memory struct {
	mu      sync.RWMutex
	records []correlator.PendingAction
	err     error // if set, all operations return this error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) View(_ context.Context, fn func(records []correlator.PendingAction) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return m.err
	}
	return fn(m.snapshot())
}

func (m *Memory) Update(_ context.Context, fn func(records []correlator.PendingAction) ([]correlator.PendingAction, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	out, err := fn(m.snapshot())
	if err != nil {
		return err
	}
	m.records = append([]correlator.PendingAction(nil), out...)
	return nil
}

// Records returns a copy of the stored collection.
func (m *Memory) Records() []correlator.PendingAction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot()
}

// SetError causes all subsequent operations to return err. Pass nil to clear.
func (m *Memory) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Memory) snapshot() []correlator.PendingAction {
	return append([]correlator.PendingAction(nil), m.records...)
}
