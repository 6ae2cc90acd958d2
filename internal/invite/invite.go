// Package invite implements the workspace invitation lifecycle: hashed
// single-use tokens, a seven-day expiry with lazy transition, and
// acceptance that enrolls the invitee at the invited role.
package invite

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/groveapp/grove/internal/activity"
	"github.com/groveapp/grove/internal/apperr"
	"github.com/groveapp/grove/internal/models"
	"github.com/groveapp/grove/internal/notify"
	"github.com/groveapp/grove/internal/role"
	"github.com/groveapp/grove/internal/workspace"
	"gorm.io/gorm"
)

// TTL is how long an invitation stays acceptable.
const TTL = 7 * 24 * time.Hour

// generateToken creates the raw invitation token: 32 random bytes, hex.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", apperr.Internalf(err, "invite: generate token")
	}
	return hex.EncodeToString(b), nil
}

// hashToken returns the stored form of a raw token.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Create invites an email address into a workspace. Requires Admin+. The
// returned string is the raw token; it is not recoverable afterwards.
func Create(gdb *gorm.DB, workspaceID, actorID, email string, r role.Role) (*models.Invitation, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", apperr.Validationf("a valid email address is required")
	}
	if r == role.Owner {
		return nil, "", apperr.Forbiddenf("cannot invite as owner")
	}

	var inv models.Invitation
	var raw string
	err := gdb.Transaction(func(tx *gorm.DB) error {
		if _, err := workspace.RequireRole(tx, workspaceID, actorID, role.Admin); err != nil {
			return err
		}

		var pending int64
		err := tx.Model(&models.Invitation{}).
			Where("workspace_id = ? AND email = ? AND status = ?", workspaceID, email, models.InvitationPending).
			Count(&pending).Error
		if err != nil {
			return apperr.Internalf(err, "invite: check pending")
		}
		if pending > 0 {
			return apperr.Conflictf("a pending invitation for %s already exists", email)
		}

		raw, err = generateToken()
		if err != nil {
			return err
		}
		inv = models.Invitation{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			Email:       email,
			RoleName:    r.String(),
			TokenHash:   hashToken(raw),
			Status:      models.InvitationPending,
			InvitedBy:   actorID,
			ExpiresAt:   time.Now().UTC().Add(TTL),
		}
		if err := tx.Create(&inv).Error; err != nil {
			return apperr.Internalf(err, "invite: create")
		}

		return activity.Record(tx, activity.Entry{
			WorkspaceID: workspaceID,
			ActorID:     actorID,
			EntityType:  "invitation",
			EntityID:    inv.ID,
			Action:      activity.InvitationCreated,
			Diff:        map[string]activity.Change{"email": {New: email}, "role": {New: r.String()}},
		})
	})
	if err != nil {
		return nil, "", err
	}
	return &inv, raw, nil
}

// Accept redeems a raw token for the given user. The user's email must
// match the invitation. Expired pending invitations transition to expired
// on this read and return an Expired error. Acceptance enrolls the user at
// the invited role and notifies the inviter.
func Accept(gdb *gorm.DB, rawToken, userID, userEmail string) (*models.WorkspaceMember, error) {
	var member models.WorkspaceMember
	var alreadyMember, expired bool
	err := gdb.Transaction(func(tx *gorm.DB) error {
		var inv models.Invitation
		err := tx.Where("token_hash = ?", hashToken(rawToken)).First(&inv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFoundf("invitation not found")
		}
		if err != nil {
			return apperr.Internalf(err, "invite: lookup token")
		}

		switch inv.Status {
		case models.InvitationPending:
		case models.InvitationAccepted:
			return apperr.Conflictf("invitation already accepted")
		default:
			return apperr.NotFoundf("invitation not found")
		}

		if time.Now().UTC().After(inv.ExpiresAt) {
			// Lazy expiry: the status flip must commit even though the
			// acceptance fails, so the error is raised after.
			if err := tx.Model(&inv).Update("status", models.InvitationExpired).Error; err != nil {
				return apperr.Internalf(err, "invite: mark expired")
			}
			expired = true
			return nil
		}
		if !strings.EqualFold(inv.Email, userEmail) {
			return apperr.Forbiddenf("invitation was issued to a different email")
		}

		if _, err := workspace.GetMember(tx, inv.WorkspaceID, userID); err == nil {
			// Consume the token but keep the existing membership. The
			// status change must survive the Conflict returned below,
			// so it commits here and the error is raised after.
			if err := tx.Model(&inv).Update("status", models.InvitationAccepted).Error; err != nil {
				return apperr.Internalf(err, "invite: mark accepted")
			}
			alreadyMember = true
			return nil
		} else if !apperr.Is(err, apperr.NotFound) {
			return err
		}

		r, err := role.Parse(inv.RoleName)
		if err != nil {
			return apperr.Internalf(err, "invite: stored role")
		}
		member = models.WorkspaceMember{
			WorkspaceID: inv.WorkspaceID,
			UserID:      userID,
			RoleRank:    int(r),
			InvitedBy:   inv.InvitedBy,
		}
		if err := tx.Create(&member).Error; err != nil {
			return apperr.Internalf(err, "invite: enroll member")
		}
		if err := tx.Model(&inv).Update("status", models.InvitationAccepted).Error; err != nil {
			return apperr.Internalf(err, "invite: mark accepted")
		}

		if err := activity.Record(tx, activity.Entry{
			WorkspaceID: inv.WorkspaceID,
			ActorID:     userID,
			EntityType:  "invitation",
			EntityID:    inv.ID,
			Action:      activity.InvitationAccepted,
			Diff:        map[string]activity.Change{"role": {New: inv.RoleName}},
		}); err != nil {
			return err
		}

		_, err = notify.Dispatch(tx, notify.Event{
			WorkspaceID: inv.WorkspaceID,
			ActorID:     userID,
			Type:        notify.TypeInvitationAccepted,
			DedupKey:    "invitation:" + inv.ID,
			EntityType:  "invitation",
			EntityID:    inv.ID,
			Recipients:  []string{inv.InvitedBy},
			Payload:     map[string]interface{}{"email": inv.Email},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, apperr.Expiredf("invitation has expired")
	}
	if alreadyMember {
		return nil, apperr.Conflictf("already a member of the workspace")
	}
	return &member, nil
}

// Revoke cancels a pending invitation. Requires Admin+. Invitations in a
// terminal state conflict.
func Revoke(gdb *gorm.DB, invitationID, actorID string) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		var inv models.Invitation
		err := tx.Where("id = ?", invitationID).First(&inv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFoundf("invitation not found: %s", invitationID)
		}
		if err != nil {
			return apperr.Internalf(err, "invite: get %s", invitationID)
		}
		if _, err := workspace.RequireRole(tx, inv.WorkspaceID, actorID, role.Admin); err != nil {
			return err
		}
		if inv.Status != models.InvitationPending {
			return apperr.Conflictf("invitation is already %s", inv.Status)
		}

		if err := tx.Model(&inv).Update("status", models.InvitationRevoked).Error; err != nil {
			return apperr.Internalf(err, "invite: revoke %s", invitationID)
		}
		return activity.Record(tx, activity.Entry{
			WorkspaceID: inv.WorkspaceID,
			ActorID:     actorID,
			EntityType:  "invitation",
			EntityID:    inv.ID,
			Action:      activity.InvitationRevoked,
			Diff:        map[string]activity.Change{"email": {Old: inv.Email}},
		})
	})
}

// ListForWorkspace returns a workspace's invitations to its members.
// Pending rows past their expiry are reported as expired without waiting
// for an acceptance attempt.
func ListForWorkspace(gdb *gorm.DB, workspaceID, userID string) ([]models.Invitation, error) {
	if _, err := workspace.RequireRole(gdb, workspaceID, userID, role.Viewer); err != nil {
		return nil, err
	}
	var out []models.Invitation
	if err := gdb.Where("workspace_id = ?", workspaceID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, apperr.Internalf(err, "invite: list for workspace")
	}
	now := time.Now().UTC()
	for i := range out {
		if out[i].Status == models.InvitationPending && now.After(out[i].ExpiresAt) {
			out[i].Status = models.InvitationExpired
		}
	}
	return out, nil
}

// PendingForEmail returns a user's open invitations across workspaces.
func PendingForEmail(gdb *gorm.DB, email string) ([]models.Invitation, error) {
	var out []models.Invitation
	err := gdb.Where("email = ? AND status = ? AND expires_at > ?",
		strings.ToLower(strings.TrimSpace(email)), models.InvitationPending, time.Now().UTC()).
		Order("created_at DESC").Find(&out).Error
	if err != nil {
		return nil, apperr.Internalf(err, "invite: pending for email")
	}
	return out, nil
}
