// Package models contains the table layout backing the document store,
// configured to work using GORM as the ORM.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Company is a row of the companies collection. The derived columns are
// nullable because they stay absent until the creation trigger has run.
// CreatedAt carries the event time, so GORM must not auto-fill it.
type Company struct {
	ID              string     `gorm:"primaryKey;size:128"`
	Name            string     `gorm:"column:name"`
	NameInLowerCase *string    `gorm:"column:name_in_lower_case;index"`
	CreatedAt       *time.Time `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

// Counter is an aggregate counter document, keyed by its document path
// (e.g. "counts/companies").
type Counter struct {
	Path       string `gorm:"primaryKey;size:255"`
	TotalCount int64  `gorm:"column:total_count;not null;default:0"`
	UpdatedAt  time.Time
}
