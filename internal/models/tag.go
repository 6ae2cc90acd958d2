package models

import "time"

// Tag is a label scoped to either a workspace or a single user's personal
// space. Names are unique within their owning scope, enforced by the tag
// service inside each create/update transaction.
type Tag struct {
	ID          string  `gorm:"primaryKey;size:36"`
	UserID      string  `gorm:"size:36;not null;index"`
	WorkspaceID *string `gorm:"size:36;index"`
	Name        string  `gorm:"size:100;not null"`
	ColorHex    string  `gorm:"size:7;default:#3B82F6"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
