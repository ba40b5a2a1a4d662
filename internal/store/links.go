package store

import (
	"context"
	"errors"
	"fmt"
)

import (
	"gorm.io/gorm"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/links"
)

// ErrNilDB is returned by stores built without a connection.
var ErrNilDB = errors.New("store: nil db")

// LinkStore keeps link rows in a relational table.
type LinkStore struct {
	db *gorm.DB
}

func NewLinkStore(db *gorm.DB) *LinkStore {
	return &LinkStore{db: db}
}

// Transaction runs fn with a store bound to one transaction. Managers built on
// the inner store commit or roll back together.
func (s *LinkStore) Transaction(ctx context.Context, fn func(tx *LinkStore) error) error {
	if s == nil || s.db == nil {
		return ErrNilDB
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&LinkStore{db: tx})
	})
}

// Images returns an image store sharing this store's connection or transaction.
func (s *LinkStore) Images() *ImageStore {
	return &ImageStore{db: s.db}
}

func (s *LinkStore) Insert(ctx context.Context, row links.Row) error {
	if s == nil || s.db == nil {
		return ErrNilDB
	}
	rec := LinkRow{
		LinkSet:   row.Set,
		OwnerRef:  uint64(row.Owner),
		TargetRef: uint64(row.Target),
		Kind:      row.Kind,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("store: insert link: %w", err)
	}
	return nil
}

func (s *LinkStore) Find(ctx context.Context, f links.Filter) ([]links.Row, error) {
	if s == nil || s.db == nil {
		return nil, ErrNilDB
	}
	var recs []LinkRow
	if err := s.scope(ctx, f).Order("kind ASC, target_ref ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("store: find links: %w", err)
	}
	out := make([]links.Row, 0, len(recs))
	for _, r := range recs {
		out = append(out, links.Row{
			Set:    r.LinkSet,
			Owner:  links.ID(r.OwnerRef),
			Target: links.ID(r.TargetRef),
			Kind:   r.Kind,
		})
	}
	return out, nil
}

func (s *LinkStore) Delete(ctx context.Context, row links.Row) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNilDB
	}
	res := s.db.WithContext(ctx).
		Where("link_set = ? AND owner_ref = ? AND target_ref = ? AND kind = ?",
			row.Set, uint64(row.Owner), uint64(row.Target), row.Kind).
		Delete(&LinkRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: delete link: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *LinkStore) DeleteAll(ctx context.Context, f links.Filter) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNilDB
	}
	res := s.scope(ctx, f).Delete(&LinkRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: delete links: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *LinkStore) scope(ctx context.Context, f links.Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&LinkRow{}).
		Where("link_set = ? AND owner_ref = ?", f.Set, uint64(f.Owner))
	if len(f.Kinds) > 0 {
		q = q.Where("kind IN ?", f.Kinds)
	}
	return q
}

// ImageStore keeps ordered image rows.
type ImageStore struct {
	db *gorm.DB
}

func NewImageStore(db *gorm.DB) *ImageStore {
	return &ImageStore{db: db}
}

func (s *ImageStore) List(ctx context.Context, owner links.ID) ([]links.Item, error) {
	if s == nil || s.db == nil {
		return nil, ErrNilDB
	}
	var recs []ImageRow
	err := s.db.WithContext(ctx).
		Where("owner_ref = ?", uint64(owner)).
		Order("position ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("store: list images: %w", err)
	}
	out := make([]links.Item, 0, len(recs))
	for _, r := range recs {
		out = append(out, links.Item{Owner: links.ID(r.OwnerRef), Value: r.Image, Position: r.Position})
	}
	return out, nil
}

func (s *ImageStore) Append(ctx context.Context, item links.Item) error {
	if s == nil || s.db == nil {
		return ErrNilDB
	}
	rec := ImageRow{OwnerRef: uint64(item.Owner), Image: item.Value, Position: item.Position}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("store: append image: %w", err)
	}
	return nil
}

func (s *ImageStore) DeleteAll(ctx context.Context, owner links.ID) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNilDB
	}
	res := s.db.WithContext(ctx).Where("owner_ref = ?", uint64(owner)).Delete(&ImageRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: delete images: %w", res.Error)
	}
	return res.RowsAffected, nil
}

var (
	_ links.Store     = (*LinkStore)(nil)
	_ links.ListStore = (*ImageStore)(nil)
)
