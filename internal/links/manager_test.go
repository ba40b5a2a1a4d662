package links

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
)

// fakeStore keeps rows in memory and fails writes for chosen targets.
type fakeStore struct {
	mu       sync.Mutex
	rows     map[Row]struct{}
	finds    int
	failIns  map[ID]bool
	failDel  map[ID]bool
	inserted []ID
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[Row]struct{}{}, failIns: map[ID]bool{}, failDel: map[ID]bool{}}
}

func (s *fakeStore) Insert(_ context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIns[row.Target] {
		return errors.New("insert refused")
	}
	s.rows[row] = struct{}{}
	s.inserted = append(s.inserted, row.Target)
	return nil
}

func (s *fakeStore) Find(_ context.Context, f Filter) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	var out []Row
	for r := range s.rows {
		if r.Set == f.Set && r.Owner == f.Owner && kindMatches(f.Kinds, r.Kind) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out, nil
}

func (s *fakeStore) Delete(_ context.Context, row Row) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDel[row.Target] {
		return 0, errors.New("delete refused")
	}
	if _, ok := s.rows[row]; !ok {
		return 0, nil
	}
	delete(s.rows, row)
	return 1, nil
}

func (s *fakeStore) DeleteAll(_ context.Context, f Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for r := range s.rows {
		if r.Set == f.Set && r.Owner == f.Owner && kindMatches(f.Kinds, r.Kind) {
			delete(s.rows, r)
			n++
		}
	}
	return n, nil
}

func kindMatches(kinds []int, k int) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func (s *fakeStore) count(set string, owner ID) int {
	rows, _ := s.Find(context.Background(), Filter{Set: set, Owner: owner})
	return len(rows)
}

func TestDelta(t *testing.T) {
	tests := []struct {
		name              string
		desired, persisted Set
		add, remove       []ID
	}{
		{"empty", NewSet(), NewSet(), nil, nil},
		{"add only", NewSet(1, 2), NewSet(), []ID{1, 2}, nil},
		{"remove only", NewSet(), NewSet(3), nil, []ID{3}},
		{"mixed", NewSet(1, 2, 3), NewSet(2, 3, 4), []ID{1}, []ID{4}},
		{"zero ignored", Set{0: {}, 5: {}}, Set{0: {}}, []ID{5}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			add, remove := Delta(tt.desired, tt.persisted)
			if !equalIDs(add, tt.add) || !equalIDs(remove, tt.remove) {
				t.Fatalf("Delta = %v/%v, want %v/%v", add, remove, tt.add, tt.remove)
			}
			overlap := NewSet(add...)
			for _, id := range remove {
				if overlap.Has(id) {
					t.Fatalf("id %d in both toAdd and toRemove", id)
				}
			}
		})
	}
}

func equalIDs(a, b []ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewSetCollapsesDuplicatesAndZero(t *testing.T) {
	s := NewSet(3, 3, 0, 1, 1)
	if got := s.Sorted(); !equalIDs(got, []ID{1, 3}) {
		t.Fatalf("Sorted = %v", got)
	}
}

func TestReconcileMakesPersistedEqualDesired(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	owner := OwnerID(7)

	m := NewManager(store, "tags", owner)
	m.SetDesired(1, 2, 2, 0, 3)
	rep, err := m.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !equalIDs(rep.Added, []ID{1, 2, 3}) || len(rep.Removed) != 0 {
		t.Fatalf("report = %#v", rep)
	}

	m2 := NewManager(store, "tags", owner)
	m2.SetDesired(2, 4)
	rep, err = m2.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !equalIDs(rep.Added, []ID{4}) || !equalIDs(rep.Removed, []ID{1, 3}) {
		t.Fatalf("report = %#v", rep)
	}
	got, err := m2.Persisted(ctx)
	if err != nil {
		t.Fatalf("Persisted: %v", err)
	}
	if !got.Equal(NewSet(2, 4)) {
		t.Fatalf("persisted = %v", got.Sorted())
	}
}

func TestReconcileWithNoDifferenceWritesNothing(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	_ = store.Insert(ctx, Row{Set: "tags", Owner: 1, Target: 9})
	store.inserted = nil

	m := NewManager(store, "tags", OwnerID(1))
	m.SetDesired(9)
	rep, err := m.Reconcile(ctx)
	if err != nil || len(rep.Added)+len(rep.Removed) != 0 || len(store.inserted) != 0 {
		t.Fatalf("unexpected writes: %#v %v", rep, err)
	}
}

func TestPersistedIsCachedUntilWrite(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	m := NewManager(store, "tags", OwnerID(1))

	for i := 0; i < 3; i++ {
		if _, err := m.Persisted(ctx); err != nil {
			t.Fatalf("Persisted: %v", err)
		}
	}
	if store.finds != 1 {
		t.Fatalf("finds = %d, want 1", store.finds)
	}
	m.SetDesired(5)
	if _, err := m.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	got, _ := m.Persisted(ctx)
	if !got.Has(5) || store.finds != 2 {
		t.Fatalf("cache not invalidated: %v finds=%d", got.Sorted(), store.finds)
	}
}

func TestReconcileContinuesAfterRowFailure(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	_ = store.Insert(ctx, Row{Set: "tags", Owner: 1, Target: 10})
	_ = store.Insert(ctx, Row{Set: "tags", Owner: 1, Target: 11})
	store.failIns[2] = true
	store.failDel[10] = true

	m := NewManager(store, "tags", OwnerID(1))
	m.SetDesired(1, 2, 3)
	rep, err := m.Reconcile(ctx)
	if !errors.Is(err, ErrLinkPersistence) {
		t.Fatalf("expected ErrLinkPersistence, got %v", err)
	}
	if len(rep.Failed) != 2 {
		t.Fatalf("failed = %#v", rep.Failed)
	}
	if !equalIDs(rep.Added, []ID{1, 3}) || !equalIDs(rep.Removed, []ID{11}) {
		t.Fatalf("report = %#v", rep)
	}
	// no rollback: the successful writes stay
	got, _ := m.Persisted(ctx)
	if !got.Equal(NewSet(1, 3, 10)) {
		t.Fatalf("persisted = %v", got.Sorted())
	}
}

func TestClearAllTwice(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	m := NewManager(store, "tags", OwnerID(3))
	m.SetDesired(1, 2)
	if _, err := m.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	_ = store.Insert(ctx, Row{Set: "tags", Owner: 4, Target: 1})

	for i := 0; i < 2; i++ {
		if err := m.ClearAll(ctx); err != nil {
			t.Fatalf("ClearAll #%d: %v", i+1, err)
		}
	}
	if n := store.count("tags", 3); n != 0 {
		t.Fatalf("rows left = %d", n)
	}
	if n := store.count("tags", 4); n != 1 {
		t.Fatalf("other owner touched: %d rows", n)
	}
}

func TestSetsAreIsolated(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	tags := NewManager(store, "tags", OwnerID(1))
	opts := NewManager(store, "options", OwnerID(1))
	tags.SetDesired(1)
	opts.SetDesired(2)
	if _, err := tags.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := opts.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := tags.Persisted(ctx)
	if !got.Equal(NewSet(1)) {
		t.Fatalf("tags = %v", got.Sorted())
	}
}

func TestDesiredDefaultsEmpty(t *testing.T) {
	m := NewManager(newFakeStore(), "tags", OwnerID(1))
	if m.Desired().Len() != 0 {
		t.Fatal("desired should start empty")
	}
}

func BenchmarkReconcile(b *testing.B) {
	ctx := context.Background()
	ids := make([]ID, 64)
	for i := range ids {
		ids[i] = ID(i + 1)
	}
	for i := 0; i < b.N; i++ {
		m := NewManager(newFakeStore(), "tags", OwnerID(1))
		m.SetDesired(ids...)
		_, _ = m.Reconcile(ctx)
	}
}
