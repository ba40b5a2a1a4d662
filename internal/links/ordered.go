package links

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// OrderedList keeps an owner's ordered values (image paths) by replace-all.
type OrderedList struct {
	mu      sync.Mutex
	owner   Owner
	store   ListStore
	logger  *slog.Logger
	desired []string
	changed bool
	items   []string
	loaded  bool
}

func NewOrderedList(store ListStore, owner Owner, opts ...Option) *OrderedList {
	if store == nil {
		panic("links: nil list store")
	}
	if owner == nil {
		panic("links: nil owner")
	}
	o := buildOptions(opts)
	return &OrderedList{owner: owner, store: store, logger: o.logger}
}

// SetDesired replaces the list. Blank values are dropped, order is kept.
func (l *OrderedList) SetDesired(values ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.desired = l.desired[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		l.desired = append(l.desired, v)
	}
	l.changed = true
}

// Items returns the persisted values ordered by position.
func (l *OrderedList) Items(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.loadLocked(ctx); err != nil {
		return nil, err
	}
	return append([]string(nil), l.items...), nil
}

// Main is the first item, or "" for an empty list.
func (l *OrderedList) Main(ctx context.Context) (string, error) {
	items, err := l.Items(ctx)
	if err != nil || len(items) == 0 {
		return "", err
	}
	return items[0], nil
}

func (l *OrderedList) loadLocked(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	rows, err := l.store.List(ctx, l.owner.JoinKey())
	if err != nil {
		return fmt.Errorf("links: load list: %w", err)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
	l.items = make([]string, 0, len(rows))
	for _, r := range rows {
		l.items = append(l.items, r.Value)
	}
	l.loaded = true
	return nil
}

// Save rewrites the list when SetDesired was called since the last save. Positions
// are 1-based. Failed appends are reported like link rows.
func (l *OrderedList) Save(ctx context.Context) (Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.changed {
		return Report{}, nil
	}
	owner := l.owner.JoinKey()
	if _, err := l.store.DeleteAll(ctx, owner); err != nil {
		return Report{}, fmt.Errorf("%w: clear list owner %d: %v", ErrLinkPersistence, owner, err)
	}
	var rep Report
	for i, v := range l.desired {
		item := Item{Owner: owner, Value: v, Position: i + 1}
		if err := l.store.Append(ctx, item); err != nil {
			l.logger.Error("list append failed", "owner", owner, "position", item.Position, "err", err)
			rep.Failed = append(rep.Failed, Failure{
				Op:  "insert",
				Err: fmt.Errorf("%w: append %d@%d: %v", ErrLinkPersistence, owner, item.Position, err),
			})
		}
	}
	l.changed = false
	l.loaded = false
	return rep, rep.Err()
}

// ClearAll removes every item of the owner.
func (l *OrderedList) ClearAll(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = false
	if _, err := l.store.DeleteAll(ctx, l.owner.JoinKey()); err != nil {
		return fmt.Errorf("%w: clear list owner %d: %v", ErrLinkPersistence, l.owner.JoinKey(), err)
	}
	return nil
}
