package links

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// KindedReport holds one sweep report per relation kind.
type KindedReport map[int]Report

func (r KindedReport) Err() error {
	var errs []error
	for _, k := range sortedKinds(r) {
		if err := r[k].Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// KindedManager reconciles join rows that carry a relation kind, e.g. "similar" or
// "accessory" products. Only kinds given to SetKind are reconciled; an empty set for
// a kind clears that kind.
type KindedManager struct {
	mu        sync.Mutex
	set       string
	owner     Owner
	store     Store
	logger    *slog.Logger
	desired   map[int]Set
	persisted map[int]Set
}

func NewKindedManager(store Store, set string, owner Owner, opts ...Option) *KindedManager {
	if store == nil {
		panic("links: nil store")
	}
	if owner == nil {
		panic("links: nil owner")
	}
	o := buildOptions(opts)
	return &KindedManager{
		set:     set,
		owner:   owner,
		store:   store,
		logger:  o.logger.With("link_set", set),
		desired: map[int]Set{},
	}
}

// SetKind replaces the desired targets of one kind.
func (m *KindedManager) SetKind(kind int, ids ...ID) {
	m.mu.Lock()
	m.desired[kind] = NewSet(ids...)
	m.mu.Unlock()
}

// SetDesired replaces the desired targets of every kind present in byKind.
func (m *KindedManager) SetDesired(byKind map[int][]ID) {
	m.mu.Lock()
	for kind, ids := range byKind {
		m.desired[kind] = NewSet(ids...)
	}
	m.mu.Unlock()
}

// Desired returns a copy of the kinds given so far.
func (m *KindedManager) Desired() map[int]Set {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneKinds(m.desired)
}

// Persisted returns the stored targets grouped by kind.
func (m *KindedManager) Persisted(ctx context.Context) (map[int]Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(ctx); err != nil {
		return nil, err
	}
	return cloneKinds(m.persisted), nil
}

func (m *KindedManager) loadLocked(ctx context.Context) error {
	if m.persisted != nil {
		return nil
	}
	rows, err := m.store.Find(ctx, Filter{Set: m.set, Owner: m.owner.JoinKey()})
	if err != nil {
		return fmt.Errorf("links: load %s: %w", m.set, err)
	}
	out := map[int]Set{}
	for _, r := range rows {
		if r.Target == 0 {
			continue
		}
		s, ok := out[r.Kind]
		if !ok {
			s = Set{}
			out[r.Kind] = s
		}
		s[r.Target] = struct{}{}
	}
	m.persisted = out
	return nil
}

// Reconcile runs one sweep per desired kind, in ascending kind order.
func (m *KindedManager) Reconcile(ctx context.Context) (KindedReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(ctx); err != nil {
		return nil, err
	}
	report := make(KindedReport, len(m.desired))
	for _, kind := range sortedKinds(m.desired) {
		toAdd, toRemove := Delta(m.desired[kind], m.persisted[kind])
		report[kind] = sweep(ctx, m.store, m.logger, m.set, m.owner.JoinKey(), kind, toAdd, toRemove)
	}
	m.persisted = nil
	return report, report.Err()
}

// ClearAll deletes the owner's rows of every kind.
func (m *KindedManager) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persisted = nil
	if _, err := m.store.DeleteAll(ctx, Filter{Set: m.set, Owner: m.owner.JoinKey()}); err != nil {
		return fmt.Errorf("%w: clear %s owner %d: %v", ErrLinkPersistence, m.set, m.owner.JoinKey(), err)
	}
	return nil
}

func cloneKinds(in map[int]Set) map[int]Set {
	out := make(map[int]Set, len(in))
	for k, s := range in {
		out[k] = s.clone()
	}
	return out
}

func sortedKinds[V any](m map[int]V) []int {
	kinds := make([]int, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Ints(kinds)
	return kinds
}
