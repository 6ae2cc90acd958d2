// Package workspace provides workspace lifecycle and membership operations.
// Its RequireRole helper is the permission gate used by every other service.
package workspace

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/groveapp/grove/internal/activity"
	"github.com/groveapp/grove/internal/apperr"
	"github.com/groveapp/grove/internal/models"
	"github.com/groveapp/grove/internal/role"
	"gorm.io/gorm"
)

// CreateOpts holds parameters for creating a new workspace.
type CreateOpts struct {
	Name        string
	Description string
}

// UpdateOpts holds optional field updates for a workspace. Nil means leave
// the field unchanged.
type UpdateOpts struct {
	Name        *string
	Description *string
}

var (
	slugStrip    = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugHyphens  = regexp.MustCompile(`[\s_]+`)
	slugCollapse = regexp.MustCompile(`-+`)
)

// GenerateSlug builds a URL-friendly slug from a workspace name.
func GenerateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = slugHyphens.ReplaceAllString(slug, "-")
	slug = slugCollapse.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// Create creates a workspace and adds the creator as its Owner, atomically.
func Create(gdb *gorm.DB, userID string, opts CreateOpts) (*models.Workspace, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, apperr.Validationf("workspace name is required")
	}

	var ws models.Workspace
	err := gdb.Transaction(func(tx *gorm.DB) error {
		slug := GenerateSlug(opts.Name)
		if slug == "" {
			slug = "workspace"
		}
		taken, err := slugTaken(tx, slug)
		if err != nil {
			return err
		}
		if taken {
			slug = fmt.Sprintf("%s-%.8s", slug, userID)
			if taken, err = slugTaken(tx, slug); err != nil {
				return err
			}
			if taken {
				return apperr.Conflictf("workspace slug %q is taken", slug)
			}
		}

		ws = models.Workspace{
			ID:          uuid.NewString(),
			Name:        opts.Name,
			Slug:        slug,
			Description: opts.Description,
			CreatedBy:   userID,
		}
		if err := tx.Create(&ws).Error; err != nil {
			return apperr.Internalf(err, "workspace: create")
		}

		owner := models.WorkspaceMember{
			WorkspaceID: ws.ID,
			UserID:      userID,
			RoleRank:    int(role.Owner),
		}
		if err := tx.Create(&owner).Error; err != nil {
			return apperr.Internalf(err, "workspace: add owner member")
		}

		return activity.Record(tx, activity.Entry{
			WorkspaceID: ws.ID,
			ActorID:     userID,
			EntityType:  "workspace",
			EntityID:    ws.ID,
			Action:      activity.WorkspaceCreated,
			Diff:        map[string]activity.Change{"name": {New: ws.Name}, "slug": {New: ws.Slug}},
		})
	})
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func slugTaken(tx *gorm.DB, slug string) (bool, error) {
	var count int64
	if err := tx.Model(&models.Workspace{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, apperr.Internalf(err, "workspace: check slug %s", slug)
	}
	return count > 0, nil
}

// provisioned caches user IDs known to have at least one workspace, so the
// common authenticated request skips a query.
var provisioned sync.Map

// ClearProvisionedCache resets the provisioning cache. Intended for tests.
func ClearProvisionedCache() {
	provisioned.Range(func(k, _ interface{}) bool {
		provisioned.Delete(k)
		return true
	})
}

// EnsurePersonal auto-creates a "Personal" workspace on a user's first
// authenticated request. Idempotent: returns nil if the user already has at
// least one workspace. A duplicate-slug race with a concurrent request is
// swallowed; anything else propagates.
func EnsurePersonal(gdb *gorm.DB, userID string) (*models.Workspace, error) {
	if _, ok := provisioned.Load(userID); ok {
		return nil, nil
	}

	var count int64
	if err := gdb.Model(&models.WorkspaceMember{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return nil, apperr.Internalf(err, "workspace: count memberships")
	}
	if count > 0 {
		provisioned.Store(userID, true)
		return nil, nil
	}

	slug := fmt.Sprintf("personal-%.8s", userID)
	if taken, err := slugTaken(gdb, slug); err != nil {
		return nil, err
	} else if taken {
		slug = fmt.Sprintf("personal-%.12s", userID)
	}

	ws := models.Workspace{
		ID:        uuid.NewString(),
		Name:      "Personal",
		Slug:      slug,
		CreatedBy: userID,
	}
	err := gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ws).Error; err != nil {
			return err
		}
		owner := models.WorkspaceMember{
			WorkspaceID: ws.ID,
			UserID:      userID,
			RoleRank:    int(role.Owner),
		}
		return tx.Create(&owner).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			provisioned.Store(userID, true)
			return nil, nil
		}
		return nil, apperr.Internalf(err, "workspace: provision personal workspace")
	}
	provisioned.Store(userID, true)
	return &ws, nil
}

// isUniqueViolation matches unique-constraint errors across mysql and sqlite
// without depending on driver error types.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// Get returns a workspace the user is a member of.
func Get(gdb *gorm.DB, workspaceID, userID string) (*models.Workspace, error) {
	ws, err := fetch(gdb, workspaceID)
	if err != nil {
		return nil, err
	}
	if _, err := GetMember(gdb, workspaceID, userID); err != nil {
		return nil, err
	}
	return ws, nil
}

func fetch(tx *gorm.DB, workspaceID string) (*models.Workspace, error) {
	var ws models.Workspace
	if err := tx.Where("id = ?", workspaceID).First(&ws).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("workspace not found: %s", workspaceID)
		}
		return nil, apperr.Internalf(err, "workspace: get %s", workspaceID)
	}
	return &ws, nil
}

// ListForUser returns all workspaces the user belongs to, oldest first.
func ListForUser(gdb *gorm.DB, userID string) ([]models.Workspace, error) {
	var out []models.Workspace
	err := gdb.Joins("JOIN workspace_members ON workspace_members.workspace_id = workspaces.id").
		Where("workspace_members.user_id = ?", userID).
		Order("workspaces.created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, apperr.Internalf(err, "workspace: list for user %s", userID)
	}
	return out, nil
}

// Update modifies workspace fields. Requires Admin+.
func Update(gdb *gorm.DB, workspaceID, userID string, opts UpdateOpts) (*models.Workspace, error) {
	var ws *models.Workspace
	err := gdb.Transaction(func(tx *gorm.DB) error {
		var err error
		ws, err = fetch(tx, workspaceID)
		if err != nil {
			return err
		}
		if _, err := RequireRole(tx, workspaceID, userID, role.Admin); err != nil {
			return err
		}

		before := map[string]interface{}{"name": ws.Name, "description": ws.Description}
		if opts.Name != nil {
			ws.Name = *opts.Name
		}
		if opts.Description != nil {
			ws.Description = *opts.Description
		}
		after := map[string]interface{}{"name": ws.Name, "description": ws.Description}

		if err := tx.Save(ws).Error; err != nil {
			return apperr.Internalf(err, "workspace: update %s", workspaceID)
		}

		if diff := activity.Diff(before, after); diff != nil {
			return activity.Record(tx, activity.Entry{
				WorkspaceID: workspaceID,
				ActorID:     userID,
				EntityType:  "workspace",
				EntityID:    workspaceID,
				Action:      activity.WorkspaceUpdated,
				Diff:        diff,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// Delete removes a workspace and everything it owns: members, tasks and
// their tag links, tags, groups and their members, invitations, and
// workspace notifications. Requires Owner. Activity rows are append-only and
// survive; the deletion itself is logged before the cascade runs.
func Delete(gdb *gorm.DB, workspaceID, userID string) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		ws, err := fetch(tx, workspaceID)
		if err != nil {
			return err
		}
		if _, err := RequireRole(tx, workspaceID, userID, role.Owner); err != nil {
			return err
		}

		if err := activity.Record(tx, activity.Entry{
			WorkspaceID: workspaceID,
			ActorID:     userID,
			EntityType:  "workspace",
			EntityID:    workspaceID,
			Action:      activity.WorkspaceDeleted,
			Diff:        map[string]activity.Change{"name": {Old: ws.Name}, "slug": {Old: ws.Slug}},
		}); err != nil {
			return err
		}

		taskIDs := tx.Model(&models.Task{}).Select("id").Where("workspace_id = ?", workspaceID)
		if err := tx.Where("task_id IN (?)", taskIDs).Delete(&models.TaskTag{}).Error; err != nil {
			return apperr.Internalf(err, "workspace: cascade task tags")
		}
		groupIDs := tx.Model(&models.Group{}).Select("id").Where("workspace_id = ?", workspaceID)
		if err := tx.Where("group_id IN (?)", groupIDs).Delete(&models.GroupMember{}).Error; err != nil {
			return apperr.Internalf(err, "workspace: cascade group members")
		}
		for _, model := range []interface{}{
			&models.Task{}, &models.Tag{}, &models.Group{},
			&models.Invitation{}, &models.Notification{}, &models.WorkspaceMember{},
		} {
			if err := tx.Where("workspace_id = ?", workspaceID).Delete(model).Error; err != nil {
				return apperr.Internalf(err, "workspace: cascade delete")
			}
		}
		if err := tx.Delete(&models.Workspace{}, "id = ?", workspaceID).Error; err != nil {
			return apperr.Internalf(err, "workspace: delete %s", workspaceID)
		}
		return nil
	})
}
