// Package group manages named subsets of workspace members. Groups carry a
// dual permission model: a group admin can manage their group, and any
// workspace Admin or Owner can manage every group in the workspace.
package group

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/groveapp/grove/internal/activity"
	"github.com/groveapp/grove/internal/apperr"
	"github.com/groveapp/grove/internal/models"
	"github.com/groveapp/grove/internal/notify"
	"github.com/groveapp/grove/internal/role"
	"github.com/groveapp/grove/internal/workspace"
	"gorm.io/gorm"
)

// CreateOpts holds parameters for creating a group.
type CreateOpts struct {
	Name        string
	Description string
}

// UpdateOpts holds optional field updates for a group.
type UpdateOpts struct {
	Name        *string
	Description *string
}

// Create creates a group in a workspace. Requires workspace Admin+. The
// creator is enrolled as the group's first admin.
func Create(gdb *gorm.DB, workspaceID, userID string, opts CreateOpts) (*models.Group, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, apperr.Validationf("group name is required")
	}

	var g models.Group
	err := gdb.Transaction(func(tx *gorm.DB) error {
		if _, err := workspace.RequireRole(tx, workspaceID, userID, role.Admin); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Group{}).Where("workspace_id = ? AND LOWER(name) = ?", workspaceID, strings.ToLower(name)).Count(&count).Error; err != nil {
			return apperr.Internalf(err, "group: check name")
		}
		if count > 0 {
			return apperr.Conflictf("group %q already exists in this workspace", name)
		}

		g = models.Group{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			Name:        name,
			Description: opts.Description,
			CreatedBy:   userID,
		}
		if err := tx.Create(&g).Error; err != nil {
			return apperr.Internalf(err, "group: create")
		}
		creator := models.GroupMember{GroupID: g.ID, UserID: userID, Role: string(role.GroupAdmin)}
		if err := tx.Create(&creator).Error; err != nil {
			return apperr.Internalf(err, "group: enroll creator")
		}

		return activity.Record(tx, activity.Entry{
			WorkspaceID: workspaceID,
			ActorID:     userID,
			EntityType:  "group",
			EntityID:    g.ID,
			Action:      activity.GroupCreated,
			Diff:        map[string]activity.Change{"name": {New: g.Name}},
		})
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Get returns a group to any member of its workspace.
func Get(gdb *gorm.DB, groupID, userID string) (*models.Group, error) {
	g, err := fetch(gdb, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := workspace.RequireRole(gdb, g.WorkspaceID, userID, role.Viewer); err != nil {
		return nil, err
	}
	return g, nil
}

func fetch(tx *gorm.DB, groupID string) (*models.Group, error) {
	var g models.Group
	if err := tx.Where("id = ?", groupID).First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("group not found: %s", groupID)
		}
		return nil, apperr.Internalf(err, "group: get %s", groupID)
	}
	return &g, nil
}

// ListForWorkspace returns a workspace's groups to one of its members.
func ListForWorkspace(gdb *gorm.DB, workspaceID, userID string) ([]models.Group, error) {
	if _, err := workspace.RequireRole(gdb, workspaceID, userID, role.Viewer); err != nil {
		return nil, err
	}
	var out []models.Group
	if err := gdb.Where("workspace_id = ?", workspaceID).Order("name ASC").Find(&out).Error; err != nil {
		return nil, apperr.Internalf(err, "group: list for workspace")
	}
	return out, nil
}

// Update modifies a group. Allowed for group admins and workspace Admin+.
func Update(gdb *gorm.DB, groupID, userID string, opts UpdateOpts) (*models.Group, error) {
	var g *models.Group
	err := gdb.Transaction(func(tx *gorm.DB) error {
		var err error
		g, err = fetch(tx, groupID)
		if err != nil {
			return err
		}
		if err := requireGroupOrWorkspaceAdmin(tx, g, userID); err != nil {
			return err
		}

		before := map[string]interface{}{"name": g.Name, "description": g.Description}
		if opts.Name != nil {
			name := strings.TrimSpace(*opts.Name)
			if name == "" {
				return apperr.Validationf("group name is required")
			}
			g.Name = name
		}
		if opts.Description != nil {
			g.Description = *opts.Description
		}
		if err := tx.Save(g).Error; err != nil {
			return apperr.Internalf(err, "group: update %s", groupID)
		}

		if diff := activity.Diff(before, map[string]interface{}{"name": g.Name, "description": g.Description}); diff != nil {
			return activity.Record(tx, activity.Entry{
				WorkspaceID: g.WorkspaceID,
				ActorID:     userID,
				EntityType:  "group",
				EntityID:    g.ID,
				Action:      activity.GroupUpdated,
				Diff:        diff,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Delete removes a group and its memberships. Requires workspace Admin+.
func Delete(gdb *gorm.DB, groupID, userID string) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		g, err := fetch(tx, groupID)
		if err != nil {
			return err
		}
		if _, err := workspace.RequireRole(tx, g.WorkspaceID, userID, role.Admin); err != nil {
			return err
		}

		if err := tx.Where("group_id = ?", g.ID).Delete(&models.GroupMember{}).Error; err != nil {
			return apperr.Internalf(err, "group: delete memberships")
		}
		if err := tx.Delete(&models.Group{}, "id = ?", g.ID).Error; err != nil {
			return apperr.Internalf(err, "group: delete %s", groupID)
		}
		return activity.Record(tx, activity.Entry{
			WorkspaceID: g.WorkspaceID,
			ActorID:     userID,
			EntityType:  "group",
			EntityID:    g.ID,
			Action:      activity.GroupDeleted,
			Diff:        map[string]activity.Change{"name": {Old: g.Name}},
		})
	})
}

// Members returns a group's membership rows to any workspace member.
func Members(gdb *gorm.DB, groupID, userID string) ([]models.GroupMember, error) {
	g, err := fetch(gdb, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := workspace.RequireRole(gdb, g.WorkspaceID, userID, role.Viewer); err != nil {
		return nil, err
	}
	var out []models.GroupMember
	if err := gdb.Where("group_id = ?", g.ID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, apperr.Internalf(err, "group: list members")
	}
	return out, nil
}

// AddMember enrolls a workspace member into a group. Allowed for group
// admins and workspace Admin+. The target must already belong to the
// workspace.
func AddMember(gdb *gorm.DB, groupID, actorID, targetID string, r role.GroupRole) (*models.GroupMember, error) {
	var added models.GroupMember
	err := gdb.Transaction(func(tx *gorm.DB) error {
		g, err := fetch(tx, groupID)
		if err != nil {
			return err
		}
		if err := requireGroupOrWorkspaceAdmin(tx, g, actorID); err != nil {
			return err
		}
		if _, err := workspace.GetMember(tx, g.WorkspaceID, targetID); err != nil {
			if apperr.Is(err, apperr.NotFound) {
				return apperr.Validationf("user %s is not a member of the workspace", targetID)
			}
			return err
		}

		var count int64
		if err := tx.Model(&models.GroupMember{}).Where("group_id = ? AND user_id = ?", groupID, targetID).Count(&count).Error; err != nil {
			return apperr.Internalf(err, "group: check membership")
		}
		if count > 0 {
			return apperr.Conflictf("user %s is already in the group", targetID)
		}

		added = models.GroupMember{GroupID: groupID, UserID: targetID, Role: string(r)}
		if err := tx.Create(&added).Error; err != nil {
			return apperr.Internalf(err, "group: add member")
		}

		if err := activity.Record(tx, activity.Entry{
			WorkspaceID: g.WorkspaceID,
			ActorID:     actorID,
			EntityType:  "group",
			EntityID:    g.ID,
			Action:      activity.GroupMemberAdded,
			Diff:        map[string]activity.Change{"user_id": {New: targetID}, "role": {New: string(r)}},
		}); err != nil {
			return err
		}

		_, err = notify.Dispatch(tx, notify.Event{
			WorkspaceID: g.WorkspaceID,
			ActorID:     actorID,
			Type:        notify.TypeGroupMemberAdded,
			DedupKey:    "group:" + g.ID + ":" + targetID,
			EntityType:  "group",
			EntityID:    g.ID,
			Recipients:  []string{targetID},
			Payload:     map[string]interface{}{"group_name": g.Name, "role": string(r)},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// RemoveMember removes a user from a group. Group admins and workspace
// Admin+ can remove anyone; users can always remove themselves.
func RemoveMember(gdb *gorm.DB, groupID, actorID, targetID string) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		g, err := fetch(tx, groupID)
		if err != nil {
			return err
		}
		if actorID != targetID {
			if err := requireGroupOrWorkspaceAdmin(tx, g, actorID); err != nil {
				return err
			}
		}

		res := tx.Where("group_id = ? AND user_id = ?", groupID, targetID).Delete(&models.GroupMember{})
		if res.Error != nil {
			return apperr.Internalf(res.Error, "group: remove member")
		}
		if res.RowsAffected == 0 {
			return apperr.NotFoundf("user %s is not in the group", targetID)
		}

		return activity.Record(tx, activity.Entry{
			WorkspaceID: g.WorkspaceID,
			ActorID:     actorID,
			EntityType:  "group",
			EntityID:    g.ID,
			Action:      activity.GroupMemberRemoved,
			Diff:        map[string]activity.Change{"user_id": {Old: targetID}},
		})
	})
}

// requireGroupOrWorkspaceAdmin passes if the user is a workspace Admin+ or
// a group admin. Non-workspace-members get NotFound; workspace members
// without either admin standing get Forbidden.
func requireGroupOrWorkspaceAdmin(tx *gorm.DB, g *models.Group, userID string) error {
	m, err := workspace.GetMember(tx, g.WorkspaceID, userID)
	if err != nil {
		return err
	}
	if m.Role().AtLeast(role.Admin) {
		return nil
	}

	var gm models.GroupMember
	err = tx.Where("group_id = ? AND user_id = ?", g.ID, userID).First(&gm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Forbiddenf("requires group admin or workspace admin")
	}
	if err != nil {
		return apperr.Internalf(err, "group: get membership")
	}
	if gm.Role != string(role.GroupAdmin) {
		return apperr.Forbiddenf("requires group admin or workspace admin")
	}
	return nil
}
