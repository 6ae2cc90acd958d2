package models

import "time"

// Notification is a per-user in-app notification row. Dedup collapses rows
// with the same (user, workspace, type, dedup key) created within the dedup
// window. Soft-deleted rows stay out of the feed but are retained until the
// retention sweep removes them.
type Notification struct {
	ID          string `gorm:"primaryKey;size:36"`
	UserID      string `gorm:"size:36;not null;index:idx_notif_feed"`
	WorkspaceID string `gorm:"size:36;not null;index"`
	Type        string `gorm:"size:64;not null"`
	DedupKey    string `gorm:"size:128;not null;index"`
	ActorID     string `gorm:"size:36;not null"`
	EntityType  string `gorm:"size:32"`
	EntityID    string `gorm:"size:36"`
	Payload     string `gorm:"type:text"` // denormalized JSON (actor name, entity title, ...)
	ReadAt      *time.Time
	DeletedAt   *time.Time
	ExpiresAt   time.Time `gorm:"index"`
	CreatedAt   time.Time `gorm:"index:idx_notif_feed"`
}

// NotificationPref gates notification creation per user. WorkspaceID and
// Type are nil for "all workspaces" / "all types"; the most specific
// matching row wins and the default is enabled.
type NotificationPref struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"`
	UserID      string  `gorm:"size:36;not null;index:idx_pref_user_channel"`
	WorkspaceID *string `gorm:"size:36"`
	Type        *string `gorm:"size:64"`
	Channel     string  `gorm:"size:16;not null;index:idx_pref_user_channel"`
	Enabled     bool    `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
