package models

import "time"

// Invitation statuses. Pending invitations become accepted, revoked, or
// (lazily, on read) expired; all three are terminal.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationRevoked  = "revoked"
	InvitationExpired  = "expired"
)

// Invitation is a single-use, hashed-token invite into a workspace. The raw
// token is returned once at creation and only its SHA-256 hash is stored.
type Invitation struct {
	ID          string `gorm:"primaryKey;size:36"`
	WorkspaceID string `gorm:"size:36;not null;index"`
	Email       string `gorm:"size:320;not null;index"`
	RoleName    string `gorm:"size:16;not null"`
	TokenHash   string `gorm:"size:64;uniqueIndex;not null"`
	Status      string `gorm:"size:16;default:pending;index"`
	InvitedBy   string `gorm:"size:36;not null"`
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
