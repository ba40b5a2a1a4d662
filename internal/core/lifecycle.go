package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/config"
	"github.com/nanjiek/pixiu-behaviors/internal/links"
	"github.com/nanjiek/pixiu-behaviors/internal/store"
)

var (
	// ErrUnknownSet is returned for a link set that was never bound.
	ErrUnknownSet = errors.New("core: unknown link set")
	// ErrSetShape means plain IDs were sent to a kinded set or the reverse.
	ErrSetShape = errors.New("core: link set shape mismatch")
)

// Changes carries the desired state produced by a save. Sets that are absent are
// left untouched; a present set with no IDs is cleared.
type Changes struct {
	Links  map[string][]links.ID
	Kinded map[string]map[int][]links.ID
	// Images replaces the ordered image list when non-nil.
	Images []string
}

// Result collects the sweep reports of one save.
type Result struct {
	Links  map[string]links.Report
	Kinded map[string]links.KindedReport
	Images links.Report
}

func (r Result) Err() error {
	var errs []error
	for _, name := range sortedNames(r.Links) {
		if err := r.Links[name].Err(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, name := range sortedNames(r.Kinded) {
		if err := r.Kinded[name].Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.Images.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Lifecycle runs the after-save and before-delete hooks of every bound link set
// and the image list of an owner.
type Lifecycle struct {
	store  *store.LinkStore
	sets   map[string]config.LinkSetCfg
	atomic bool
	logger *slog.Logger
}

type Option func(*Lifecycle)

// WithAtomic runs each save and delete in one transaction. Any failed row rolls
// the whole save back.
func WithAtomic(atomic bool) Option {
	return func(l *Lifecycle) { l.atomic = atomic }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLifecycle binds the given link sets. A nil store panics.
func NewLifecycle(s *store.LinkStore, sets []config.LinkSetCfg, opts ...Option) *Lifecycle {
	if s == nil {
		panic("core: nil link store")
	}
	l := &Lifecycle{
		store:  s,
		sets:   make(map[string]config.LinkSetCfg, len(sets)),
		logger: slog.Default(),
	}
	for _, ls := range sets {
		name := strings.TrimSpace(ls.Name)
		ls.Name = name
		l.sets[name] = ls
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Set returns the binding of a link set.
func (l *Lifecycle) Set(name string) (config.LinkSetCfg, bool) {
	ls, ok := l.sets[name]
	return ls, ok
}

// Sets lists the bound link set names.
func (l *Lifecycle) Sets() []string {
	return sortedNames(l.sets)
}

// AfterSave reconciles every set named in ch and rewrites the image list when given.
func (l *Lifecycle) AfterSave(ctx context.Context, owner links.Owner, ch Changes) (Result, error) {
	if err := l.validate(ch); err != nil {
		return Result{}, err
	}
	if !l.atomic {
		return l.save(ctx, l.store, owner, ch)
	}
	var res Result
	err := l.store.Transaction(ctx, func(tx *store.LinkStore) error {
		var err error
		res, err = l.save(ctx, tx, owner, ch)
		return err
	})
	if err != nil {
		l.logger.Warn("save rolled back", "owner", owner.JoinKey(), "err", err)
	}
	return res, err
}

func (l *Lifecycle) save(ctx context.Context, s *store.LinkStore, owner links.Owner, ch Changes) (Result, error) {
	res := Result{
		Links:  map[string]links.Report{},
		Kinded: map[string]links.KindedReport{},
	}
	for _, name := range sortedNames(ch.Links) {
		m := links.NewManager(s, name, owner, links.WithLogger(l.logger))
		m.SetDesired(ch.Links[name]...)
		rep, err := m.Reconcile(ctx)
		res.Links[name] = rep
		if err != nil && len(rep.Failed) == 0 {
			return res, err
		}
	}
	for _, name := range sortedNames(ch.Kinded) {
		m := links.NewKindedManager(s, name, owner, links.WithLogger(l.logger))
		m.SetDesired(ch.Kinded[name])
		rep, err := m.Reconcile(ctx)
		res.Kinded[name] = rep
		if err != nil && rep == nil {
			return res, err
		}
	}
	if ch.Images != nil {
		list := links.NewOrderedList(s.Images(), owner, links.WithLogger(l.logger))
		list.SetDesired(ch.Images...)
		rep, err := list.Save(ctx)
		res.Images = rep
		if err != nil && len(rep.Failed) == 0 {
			return res, err
		}
	}
	return res, res.Err()
}

// BeforeDelete clears every bound set and the image list of owner.
func (l *Lifecycle) BeforeDelete(ctx context.Context, owner links.Owner) error {
	if !l.atomic {
		return l.clear(ctx, l.store, owner)
	}
	return l.store.Transaction(ctx, func(tx *store.LinkStore) error {
		return l.clear(ctx, tx, owner)
	})
}

func (l *Lifecycle) clear(ctx context.Context, s *store.LinkStore, owner links.Owner) error {
	var errs []error
	for _, name := range l.Sets() {
		if err := links.NewManager(s, name, owner, links.WithLogger(l.logger)).ClearAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := links.NewOrderedList(s.Images(), owner, links.WithLogger(l.logger)).ClearAll(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ClearSet clears one bound set of owner.
func (l *Lifecycle) ClearSet(ctx context.Context, owner links.Owner, name string) error {
	if _, ok := l.sets[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSet, name)
	}
	return links.NewManager(l.store, name, owner, links.WithLogger(l.logger)).ClearAll(ctx)
}

// ClearImages removes the image list of owner.
func (l *Lifecycle) ClearImages(ctx context.Context, owner links.Owner) error {
	return links.NewOrderedList(l.store.Images(), owner, links.WithLogger(l.logger)).ClearAll(ctx)
}

// Linked returns the persisted targets of a plain set.
func (l *Lifecycle) Linked(ctx context.Context, owner links.Owner, name string) (links.Set, error) {
	ls, ok := l.sets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSet, name)
	}
	if ls.Kinds {
		return nil, fmt.Errorf("%w: %s is kinded", ErrSetShape, name)
	}
	return links.NewManager(l.store, name, owner, links.WithLogger(l.logger)).Persisted(ctx)
}

// LinkedByKind returns the persisted targets of a kinded set.
func (l *Lifecycle) LinkedByKind(ctx context.Context, owner links.Owner, name string) (map[int]links.Set, error) {
	ls, ok := l.sets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSet, name)
	}
	if !ls.Kinds {
		return nil, fmt.Errorf("%w: %s is not kinded", ErrSetShape, name)
	}
	return links.NewKindedManager(l.store, name, owner, links.WithLogger(l.logger)).Persisted(ctx)
}

// Images returns the ordered image list of owner.
func (l *Lifecycle) Images(ctx context.Context, owner links.Owner) ([]string, error) {
	return links.NewOrderedList(l.store.Images(), owner, links.WithLogger(l.logger)).Items(ctx)
}

func (l *Lifecycle) validate(ch Changes) error {
	for name := range ch.Links {
		ls, ok := l.sets[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSet, name)
		}
		if ls.Kinds {
			return fmt.Errorf("%w: %s expects ids grouped by kind", ErrSetShape, name)
		}
	}
	for name := range ch.Kinded {
		ls, ok := l.sets[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSet, name)
		}
		if !ls.Kinds {
			return fmt.Errorf("%w: %s expects a flat id list", ErrSetShape, name)
		}
	}
	return nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
