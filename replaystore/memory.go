// Package replaystore provides concrete gracy.ReplayStore backends: an
// in-memory map for tests and examples, and Redis/SQL-backed stores for
// production replay of recorded exchanges.
package replaystore

import (
	"context"
	"sync"

	"github.com/guilatrova/gracy/gracy"
)

// Memory is an in-process gracy.ReplayStore backed by a mutex-guarded map,
// never shared across processes. A client uses it only when it is passed to
// gracy.WithReplay; there is no default store.
type Memory struct {
	mu        sync.RWMutex
	exchanges map[string]gracy.Exchange
}

// NewMemory builds an empty Memory store.
func NewMemory() *Memory {
	return &Memory{exchanges: make(map[string]gracy.Exchange)}
}

// Record stores ex, overwriting any prior exchange with the same fingerprint.
func (m *Memory) Record(_ context.Context, ex gracy.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges[ex.Fingerprint] = ex
	return nil
}

// Load returns the stored exchange for fingerprint, or ErrNoReplayFound.
func (m *Memory) Load(_ context.Context, fingerprint string) (gracy.Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ex, ok := m.exchanges[fingerprint]
	if !ok {
		return gracy.Exchange{}, gracy.ErrNoReplayFound
	}
	return ex, nil
}

// Len reports how many exchanges are currently stored, mostly useful in
// tests asserting record/replay wiring.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.exchanges)
}
