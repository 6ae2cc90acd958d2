package models

import "time"

// ActivityLog is an append-only audit row written in the same transaction as
// the mutation it describes. Rows are never updated or deleted.
type ActivityLog struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	WorkspaceID string `gorm:"size:36;not null;index"`
	ActorID     string `gorm:"size:36;not null"`
	EntityType  string `gorm:"size:32;not null;index:idx_activity_entity"`
	EntityID    string `gorm:"size:36;not null;index:idx_activity_entity"`
	Action      string `gorm:"size:64;not null"`
	Diff        string `gorm:"type:text"` // JSON {field: {"old": ..., "new": ...}}
	CreatedAt   time.Time
}
