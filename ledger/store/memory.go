// Package store provides in-process ledger.Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/bailaid/case-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	cases   []ledger.Case
	audit   []ledger.AuditEntry
	saves   int
	saveErr error
}

func NewMemory(seed ...ledger.Case) *Memory {
	m := &Memory{}
	m.cases = cloneAll(seed)
	return m
}

func (m *Memory) LoadAll(_ context.Context) ([]ledger.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAll(m.cases), nil
}

// SaveAll replaces the snapshot. Returns the injected error, if any, without
// touching the stored data.
func (m *Memory) SaveAll(_ context.Context, cases []ledger.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cases = cloneAll(cases)
	m.saves++
	return nil
}

// FailSaves makes every following SaveAll return err. Pass nil to recover.
func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// Saves counts successful SaveAll calls.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) Append(_ context.Context, entry ledger.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) Query(_ context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.AuditEntry
	for _, e := range m.audit {
		if !filter.Matches(e) {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func cloneAll(cases []ledger.Case) []ledger.Case {
	out := make([]ledger.Case, len(cases))
	for i, c := range cases {
		out[i] = c.Clone()
	}
	return out
}
