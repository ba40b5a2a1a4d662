package links

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Option configures a manager.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Manager keeps the join rows of one owner in one link set equal to a desired set.
//
// A manager is meant to live for one request. The persisted set is read once and
// cached until Reconcile or ClearAll writes.
type Manager struct {
	mu        sync.Mutex
	set       string
	owner     Owner
	store     Store
	logger    *slog.Logger
	desired   Set
	persisted Set
}

// NewManager panics on a nil store or owner.
func NewManager(store Store, set string, owner Owner, opts ...Option) *Manager {
	if store == nil {
		panic("links: nil store")
	}
	if owner == nil {
		panic("links: nil owner")
	}
	o := buildOptions(opts)
	return &Manager{
		set:     set,
		owner:   owner,
		store:   store,
		logger:  o.logger.With("link_set", set),
		desired: Set{},
	}
}

// SetDesired replaces the desired set. Duplicates collapse and zero IDs are dropped.
func (m *Manager) SetDesired(ids ...ID) {
	m.mu.Lock()
	m.desired = NewSet(ids...)
	m.mu.Unlock()
}

// Desired returns a copy of the desired set.
func (m *Manager) Desired() Set {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.desired.clone()
}

// Persisted returns the targets currently stored for the owner.
func (m *Manager) Persisted(ctx context.Context) (Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(ctx); err != nil {
		return nil, err
	}
	return m.persisted.clone(), nil
}

func (m *Manager) loadLocked(ctx context.Context) error {
	if m.persisted != nil {
		return nil
	}
	rows, err := m.store.Find(ctx, Filter{Set: m.set, Owner: m.owner.JoinKey()})
	if err != nil {
		return fmt.Errorf("links: load %s: %w", m.set, err)
	}
	s := make(Set, len(rows))
	for _, r := range rows {
		if r.Target != 0 {
			s[r.Target] = struct{}{}
		}
	}
	m.persisted = s
	return nil
}

// Reconcile inserts rows for desired targets that are missing and deletes rows for
// targets no longer desired. A failed row is logged and reported and the sweep goes
// on; earlier writes stay. The returned error is Report.Err, or the load error.
func (m *Manager) Reconcile(ctx context.Context) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(ctx); err != nil {
		return Report{}, err
	}
	toAdd, toRemove := Delta(m.desired, m.persisted)
	rep := sweep(ctx, m.store, m.logger, m.set, m.owner.JoinKey(), 0, toAdd, toRemove)
	m.persisted = nil
	return rep, rep.Err()
}

// ClearAll deletes every row of the owner in this set. Clearing twice is fine.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persisted = nil
	n, err := m.store.DeleteAll(ctx, Filter{Set: m.set, Owner: m.owner.JoinKey()})
	if err != nil {
		return fmt.Errorf("%w: clear %s owner %d: %v", ErrLinkPersistence, m.set, m.owner.JoinKey(), err)
	}
	m.logger.Debug("cleared links", "owner", m.owner.JoinKey(), "rows", n)
	return nil
}

// sweep writes inserts first, then deletes.
func sweep(ctx context.Context, store Store, logger *slog.Logger, set string, owner ID, kind int, toAdd, toRemove []ID) Report {
	var rep Report
	for _, target := range toAdd {
		row := Row{Set: set, Owner: owner, Target: target, Kind: kind}
		if err := store.Insert(ctx, row); err != nil {
			logger.Error("link insert failed", "owner", owner, "target", target, "kind", kind, "err", err)
			rep.Failed = append(rep.Failed, Failure{
				Op:     "insert",
				Target: target,
				Kind:   kind,
				Err:    fmt.Errorf("%w: insert %s %d->%d: %v", ErrLinkPersistence, set, owner, target, err),
			})
			continue
		}
		rep.Added = append(rep.Added, target)
	}
	for _, target := range toRemove {
		row := Row{Set: set, Owner: owner, Target: target, Kind: kind}
		if _, err := store.Delete(ctx, row); err != nil {
			logger.Error("link delete failed", "owner", owner, "target", target, "kind", kind, "err", err)
			rep.Failed = append(rep.Failed, Failure{
				Op:     "delete",
				Target: target,
				Kind:   kind,
				Err:    fmt.Errorf("%w: delete %s %d->%d: %v", ErrLinkPersistence, set, owner, target, err),
			})
			continue
		}
		rep.Removed = append(rep.Removed, target)
	}
	if len(toAdd)+len(toRemove) > 0 {
		logger.Debug("reconciled links", "owner", owner, "kind", kind,
			"added", len(rep.Added), "removed", len(rep.Removed), "failed", len(rep.Failed))
	}
	return rep
}
