package links

import (
	"context"
	"errors"
)

// ErrLinkPersistence wraps a single row insert or delete that failed during a sweep.
var ErrLinkPersistence = errors.New("links: persistence failed")

// Owner is a record whose primary key keys its join rows.
type Owner interface {
	JoinKey() ID
}

// OwnerID is an Owner that is just its key.
type OwnerID ID

func (o OwnerID) JoinKey() ID { return ID(o) }

// Row is one join row of a link set.
type Row struct {
	Set    string
	Owner  ID
	Target ID
	Kind   int
}

// Filter selects the rows of one owner within a set. Empty Kinds matches every kind.
type Filter struct {
	Set   string
	Owner ID
	Kinds []int
}

// Store persists join rows. Delete of an absent row is not an error.
type Store interface {
	Insert(ctx context.Context, row Row) error
	Find(ctx context.Context, f Filter) ([]Row, error)
	Delete(ctx context.Context, row Row) (int64, error)
	DeleteAll(ctx context.Context, f Filter) (int64, error)
}

// Item is one element of an ordered list. Positions start at 1.
type Item struct {
	Owner    ID
	Value    string
	Position int
}

// ListStore persists ordered per-owner lists.
type ListStore interface {
	List(ctx context.Context, owner ID) ([]Item, error)
	Append(ctx context.Context, item Item) error
	DeleteAll(ctx context.Context, owner ID) (int64, error)
}

// Failure records one row that could not be written.
type Failure struct {
	Op     string // insert | delete
	Target ID
	Kind   int
	Err    error
}

// Report summarizes one reconciliation sweep.
type Report struct {
	Added   []ID
	Removed []ID
	Failed  []Failure
}

// Err joins the per-row failures, each wrapping ErrLinkPersistence. Nil when every row succeeded.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}
