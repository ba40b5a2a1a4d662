package store

import (
	"time"
)

// LinkRow is one join row of a link set. A plain set always stores kind 0.
type LinkRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	LinkSet   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_link_rows_tuple,priority:1"`
	OwnerRef  uint64 `gorm:"not null;uniqueIndex:idx_link_rows_tuple,priority:2;index:idx_link_rows_owner"`
	TargetRef uint64 `gorm:"not null;uniqueIndex:idx_link_rows_tuple,priority:3"`
	Kind      int    `gorm:"not null;default:0;uniqueIndex:idx_link_rows_tuple,priority:4"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

func (LinkRow) TableName() string { return "link_rows" }

// ImageRow is one ordered image of an owner.
type ImageRow struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	OwnerRef uint64 `gorm:"not null;index:idx_image_rows_owner,priority:1"`
	Image    string `gorm:"type:varchar(512);not null"`
	Position int    `gorm:"not null;index:idx_image_rows_owner,priority:2"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

func (ImageRow) TableName() string { return "image_rows" }
