package models

import (
	"time"

	"github.com/groveapp/grove/internal/role"
)

// Workspace is a shared collaboration scope owning tasks, tags, groups,
// members, and invitations.
type Workspace struct {
	ID          string `gorm:"primaryKey;size:36"`
	Name        string `gorm:"size:200;not null"`
	Slug        string `gorm:"size:220;uniqueIndex;not null"`
	Description string `gorm:"type:text"`
	CreatedBy   string `gorm:"size:36;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Members []WorkspaceMember `gorm:"foreignKey:WorkspaceID"`
}

// WorkspaceMember links a user to a workspace with a ranked role. Exactly one
// member holds Owner rank per workspace at any time.
type WorkspaceMember struct {
	WorkspaceID string `gorm:"primaryKey;size:36"`
	UserID      string `gorm:"primaryKey;size:36;index"`
	RoleRank    int    `gorm:"not null"`
	InvitedBy   string `gorm:"size:36"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Role returns the member's rank as a role.Role.
func (m WorkspaceMember) Role() role.Role {
	return role.Role(m.RoleRank)
}
