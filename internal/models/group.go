package models

import "time"

// Group is a named subset of workspace members. Group roles are independent
// of workspace roles; workspace Admin+ bypasses group-level gates.
type Group struct {
	ID          string `gorm:"primaryKey;size:36"`
	WorkspaceID string `gorm:"size:36;not null;index"`
	Name        string `gorm:"size:200;not null"`
	Description string `gorm:"type:text"`
	CreatedBy   string `gorm:"size:36;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Members []GroupMember `gorm:"foreignKey:GroupID"`
}

// GroupMember links a workspace member to a group with a group role
// ("member" or "admin").
type GroupMember struct {
	GroupID   string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:36;index"`
	Role      string `gorm:"size:16;default:member"`
	CreatedAt time.Time
}
