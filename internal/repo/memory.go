package repo

import (
	"context"
	"strings"
	"sync"
)

// MemoryRepo keeps admission stamps in process memory.
// Suitable for a single instance or tests; nothing is ever evicted.
type MemoryRepo struct {
	Prefix string

	mu     sync.Mutex
	stamps map[string]float64
	writes int
}

func NewMemory(prefix string) *MemoryRepo {
	return &MemoryRepo{Prefix: prefix, stamps: make(map[string]float64)}
}

func (m *MemoryRepo) KeyAdmission(identity, scope, action string) string {
	return strings.Join([]string{m.Prefix, "admit", identity, scope, action}, "|")
}

func (m *MemoryRepo) GetStamp(_ context.Context, key string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.stamps[key]
	return ts, ok, nil
}

func (m *MemoryRepo) SetStamp(_ context.Context, key string, ts float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stamps[key] = ts
	m.writes++
	return nil
}

// AdmitIfElapsed is the in-process counterpart of ScriptAdmitIfElapsed.
func (m *MemoryRepo) AdmitIfElapsed(_ context.Context, key string, now, minDelay float64) (bool, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.stamps[key]
	if ok && now-prev < minDelay {
		return false, prev, nil
	}
	m.stamps[key] = now
	m.writes++
	return true, prev, nil
}

// Writes reports how many stamps were stored so far.
func (m *MemoryRepo) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Len reports the number of keys held.
func (m *MemoryRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stamps)
}

func (m *MemoryRepo) Close() error { return nil }
