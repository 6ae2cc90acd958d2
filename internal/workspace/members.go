package workspace

import (
	"errors"

	"github.com/groveapp/grove/internal/activity"
	"github.com/groveapp/grove/internal/apperr"
	"github.com/groveapp/grove/internal/models"
	"github.com/groveapp/grove/internal/notify"
	"github.com/groveapp/grove/internal/role"
	"gorm.io/gorm"
)

// GetMember returns the user's membership row, or NotFound. Absence and
// no-access are deliberately the same error kind.
func GetMember(tx *gorm.DB, workspaceID, userID string) (*models.WorkspaceMember, error) {
	var m models.WorkspaceMember
	err := tx.Where("workspace_id = ? AND user_id = ?", workspaceID, userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("not a member of workspace %s", workspaceID)
	}
	if err != nil {
		return nil, apperr.Internalf(err, "workspace: get member")
	}
	return &m, nil
}

// RequireRole verifies the user holds at least the required role in the
// workspace: NotFound for non-members, Forbidden for insufficient rank.
func RequireRole(tx *gorm.DB, workspaceID, userID string, required role.Role) (*models.WorkspaceMember, error) {
	m, err := GetMember(tx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if !m.Role().AtLeast(required) {
		return nil, apperr.Forbiddenf("requires %s role in workspace %s", required, workspaceID)
	}
	return m, nil
}

// Members returns all membership rows for a workspace. Used by services for
// notification fan-out; callers gate access themselves.
func Members(tx *gorm.DB, workspaceID string) ([]models.WorkspaceMember, error) {
	var out []models.WorkspaceMember
	if err := tx.Where("workspace_id = ?", workspaceID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, apperr.Internalf(err, "workspace: list members")
	}
	return out, nil
}

// MemberIDs returns the user IDs of all workspace members.
func MemberIDs(tx *gorm.DB, workspaceID string) ([]string, error) {
	members, err := Members(tx, workspaceID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	return ids, nil
}

// ListMembers returns a workspace's members to one of its members.
func ListMembers(gdb *gorm.DB, workspaceID, userID string) ([]models.WorkspaceMember, error) {
	if _, err := RequireRole(gdb, workspaceID, userID, role.Viewer); err != nil {
		return nil, err
	}
	return Members(gdb, workspaceID)
}

// AddMember adds a user to the workspace at the given role. Requires Admin+.
// Owner cannot be assigned directly; use TransferOwnership.
func AddMember(gdb *gorm.DB, workspaceID, actorID, targetID string, r role.Role) (*models.WorkspaceMember, error) {
	if r == role.Owner {
		return nil, apperr.Forbiddenf("owner role is assigned via ownership transfer")
	}

	var added models.WorkspaceMember
	err := gdb.Transaction(func(tx *gorm.DB) error {
		if _, err := fetch(tx, workspaceID); err != nil {
			return err
		}
		if _, err := RequireRole(tx, workspaceID, actorID, role.Admin); err != nil {
			return err
		}
		if _, err := GetMember(tx, workspaceID, targetID); err == nil {
			return apperr.Conflictf("user %s is already a member", targetID)
		} else if !apperr.Is(err, apperr.NotFound) {
			return err
		}

		added = models.WorkspaceMember{
			WorkspaceID: workspaceID,
			UserID:      targetID,
			RoleRank:    int(r),
			InvitedBy:   actorID,
		}
		if err := tx.Create(&added).Error; err != nil {
			return apperr.Internalf(err, "workspace: add member")
		}

		if err := activity.Record(tx, activity.Entry{
			WorkspaceID: workspaceID,
			ActorID:     actorID,
			EntityType:  "member",
			EntityID:    targetID,
			Action:      activity.MemberAdded,
			Diff:        map[string]activity.Change{"role": {New: r.String()}},
		}); err != nil {
			return err
		}

		_, err := notify.Dispatch(tx, notify.Event{
			WorkspaceID: workspaceID,
			ActorID:     actorID,
			Type:        notify.TypeMemberAdded,
			DedupKey:    "member:" + targetID,
			EntityType:  "workspace",
			EntityID:    workspaceID,
			Recipients:  []string{targetID},
			Payload:     map[string]interface{}{"role": r.String()},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// UpdateMemberRole changes a member's role. Requires Admin+. Actors cannot
// change their own role, and neither side of the change may be Owner.
func UpdateMemberRole(gdb *gorm.DB, workspaceID, actorID, targetID string, r role.Role) (*models.WorkspaceMember, error) {
	if actorID == targetID {
		return nil, apperr.Forbiddenf("cannot change own role")
	}
	if r == role.Owner {
		return nil, apperr.Forbiddenf("owner role is assigned via ownership transfer")
	}

	var updated *models.WorkspaceMember
	err := gdb.Transaction(func(tx *gorm.DB) error {
		if _, err := fetch(tx, workspaceID); err != nil {
			return err
		}
		if _, err := RequireRole(tx, workspaceID, actorID, role.Admin); err != nil {
			return err
		}
		target, err := GetMember(tx, workspaceID, targetID)
		if err != nil {
			return err
		}
		if target.Role() == role.Owner {
			return apperr.Forbiddenf("owner role changes require ownership transfer")
		}

		oldRole := target.Role().String()
		if err := tx.Model(target).Update("role_rank", int(r)).Error; err != nil {
			return apperr.Internalf(err, "workspace: update member role")
		}
		target.RoleRank = int(r)
		updated = target

		if err := activity.Record(tx, activity.Entry{
			WorkspaceID: workspaceID,
			ActorID:     actorID,
			EntityType:  "member",
			EntityID:    targetID,
			Action:      activity.MemberRoleChanged,
			Diff:        map[string]activity.Change{"role": {Old: oldRole, New: r.String()}},
		}); err != nil {
			return err
		}

		_, err = notify.Dispatch(tx, notify.Event{
			WorkspaceID: workspaceID,
			ActorID:     actorID,
			Type:        notify.TypeMemberRoleChanged,
			DedupKey:    "member:" + targetID,
			EntityType:  "workspace",
			EntityID:    workspaceID,
			Recipients:  []string{targetID},
			Payload:     map[string]interface{}{"old_role": oldRole, "new_role": r.String()},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveMember removes a member. Members may remove themselves (leave);
// Admins may remove lower-ranked members; Owners may remove anyone but
// themselves. The last Owner can never be removed.
func RemoveMember(gdb *gorm.DB, workspaceID, actorID, targetID string) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		if _, err := fetch(tx, workspaceID); err != nil {
			return err
		}
		actor, err := GetMember(tx, workspaceID, actorID)
		if err != nil {
			return err
		}
		target, err := GetMember(tx, workspaceID, targetID)
		if err != nil {
			return err
		}

		selfLeave := actorID == targetID
		if selfLeave {
			if target.Role() == role.Owner {
				return apperr.Conflictf("the owner must transfer ownership before leaving")
			}
		} else {
			if !actor.Role().AtLeast(role.Admin) {
				return apperr.Forbiddenf("requires admin role to remove members")
			}
			// Admins cannot remove peers or the owner.
			if target.Role().AtLeast(actor.Role()) && actor.Role() != role.Owner {
				return apperr.Forbiddenf("requires owner role to remove this member")
			}
		}

		if err := tx.Where("workspace_id = ? AND user_id = ?", workspaceID, targetID).
			Delete(&models.WorkspaceMember{}).Error; err != nil {
			return apperr.Internalf(err, "workspace: remove member")
		}

		action := activity.MemberRemoved
		if selfLeave {
			action = activity.MemberLeft
		}
		if err := activity.Record(tx, activity.Entry{
			WorkspaceID: workspaceID,
			ActorID:     actorID,
			EntityType:  "member",
			EntityID:    targetID,
			Action:      action,
			Diff:        map[string]activity.Change{"role": {Old: target.Role().String()}},
		}); err != nil {
			return err
		}

		if !selfLeave {
			if _, err := notify.Dispatch(tx, notify.Event{
				WorkspaceID: workspaceID,
				ActorID:     actorID,
				Type:        notify.TypeMemberRemoved,
				DedupKey:    "member:" + targetID,
				EntityType:  "workspace",
				EntityID:    workspaceID,
				Recipients:  []string{targetID},
			}); err != nil {
				return err
			}
		}
		return nil
	})
}
