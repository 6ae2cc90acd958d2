// Package tag manages labels for tasks. Tags are scoped: personal tags
// belong to one user, workspace tags to one workspace, and a tag can only
// be attached to tasks in its own scope.
package tag

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/groveapp/grove/internal/activity"
	"github.com/groveapp/grove/internal/apperr"
	"github.com/groveapp/grove/internal/models"
	"github.com/groveapp/grove/internal/role"
	"github.com/groveapp/grove/internal/workspace"
	"gorm.io/gorm"
)

// DefaultColor is assigned when a tag is created without one.
const DefaultColor = "#3B82F6"

// CreateOpts holds parameters for creating a tag.
type CreateOpts struct {
	Name        string
	ColorHex    string
	WorkspaceID *string
}

// UpdateOpts holds optional field updates for a tag.
type UpdateOpts struct {
	Name     *string
	ColorHex *string
}

// Create creates a tag. Names are unique within a scope, case-insensitively.
func Create(gdb *gorm.DB, userID string, opts CreateOpts) (*models.Tag, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, apperr.Validationf("tag name is required")
	}

	var tag models.Tag
	err := gdb.Transaction(func(tx *gorm.DB) error {
		if opts.WorkspaceID != nil {
			if _, err := workspace.RequireRole(tx, *opts.WorkspaceID, userID, role.Member); err != nil {
				return err
			}
		}
		if err := checkNameFree(tx, name, userID, opts.WorkspaceID, ""); err != nil {
			return err
		}

		color := opts.ColorHex
		if color == "" {
			color = DefaultColor
		}
		tag = models.Tag{
			ID:          uuid.NewString(),
			UserID:      userID,
			WorkspaceID: opts.WorkspaceID,
			Name:        name,
			ColorHex:    color,
		}
		if err := tx.Create(&tag).Error; err != nil {
			return apperr.Internalf(err, "tag: create")
		}

		if opts.WorkspaceID == nil {
			return nil
		}
		return activity.Record(tx, activity.Entry{
			WorkspaceID: *opts.WorkspaceID,
			ActorID:     userID,
			EntityType:  "tag",
			EntityID:    tag.ID,
			Action:      activity.TagCreated,
			Diff:        map[string]activity.Change{"name": {New: tag.Name}},
		})
	})
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

func checkNameFree(tx *gorm.DB, name, userID string, workspaceID *string, excludeID string) error {
	q := tx.Model(&models.Tag{}).Where("LOWER(name) = ?", strings.ToLower(name))
	if workspaceID != nil {
		q = q.Where("workspace_id = ?", *workspaceID)
	} else {
		q = q.Where("user_id = ? AND workspace_id IS NULL", userID)
	}
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return apperr.Internalf(err, "tag: check name %s", name)
	}
	if count > 0 {
		return apperr.Conflictf("tag %q already exists in this scope", name)
	}
	return nil
}

// Get returns a tag the user can see.
func Get(gdb *gorm.DB, tagID, userID string) (*models.Tag, error) {
	return accessible(gdb, tagID, userID, role.Viewer)
}

// List returns the user's personal tags, or a workspace's tags.
func List(gdb *gorm.DB, userID string, workspaceID *string) ([]models.Tag, error) {
	q := gdb.Model(&models.Tag{})
	if workspaceID != nil {
		if _, err := workspace.RequireRole(gdb, *workspaceID, userID, role.Viewer); err != nil {
			return nil, err
		}
		q = q.Where("workspace_id = ?", *workspaceID)
	} else {
		q = q.Where("user_id = ? AND workspace_id IS NULL", userID)
	}
	var out []models.Tag
	if err := q.Order("name ASC").Find(&out).Error; err != nil {
		return nil, apperr.Internalf(err, "tag: list")
	}
	return out, nil
}

// Update renames or recolors a tag, preserving scope uniqueness.
func Update(gdb *gorm.DB, tagID, userID string, opts UpdateOpts) (*models.Tag, error) {
	var tag *models.Tag
	err := gdb.Transaction(func(tx *gorm.DB) error {
		var err error
		tag, err = accessible(tx, tagID, userID, role.Member)
		if err != nil {
			return err
		}

		before := map[string]interface{}{"name": tag.Name, "color_hex": tag.ColorHex}
		if opts.Name != nil {
			name := strings.TrimSpace(*opts.Name)
			if name == "" {
				return apperr.Validationf("tag name is required")
			}
			if err := checkNameFree(tx, name, tag.UserID, tag.WorkspaceID, tag.ID); err != nil {
				return err
			}
			tag.Name = name
		}
		if opts.ColorHex != nil {
			tag.ColorHex = *opts.ColorHex
		}
		if err := tx.Save(tag).Error; err != nil {
			return apperr.Internalf(err, "tag: update %s", tagID)
		}

		if tag.WorkspaceID == nil {
			return nil
		}
		if diff := activity.Diff(before, map[string]interface{}{"name": tag.Name, "color_hex": tag.ColorHex}); diff != nil {
			return activity.Record(tx, activity.Entry{
				WorkspaceID: *tag.WorkspaceID,
				ActorID:     userID,
				EntityType:  "tag",
				EntityID:    tag.ID,
				Action:      activity.TagUpdated,
				Diff:        diff,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// Delete removes a tag and all its task links.
func Delete(gdb *gorm.DB, tagID, userID string) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		tag, err := accessible(tx, tagID, userID, role.Member)
		if err != nil {
			return err
		}
		if err := tx.Where("tag_id = ?", tag.ID).Delete(&models.TaskTag{}).Error; err != nil {
			return apperr.Internalf(err, "tag: delete links")
		}
		if err := tx.Delete(&models.Tag{}, "id = ?", tag.ID).Error; err != nil {
			return apperr.Internalf(err, "tag: delete %s", tagID)
		}
		if tag.WorkspaceID == nil {
			return nil
		}
		return activity.Record(tx, activity.Entry{
			WorkspaceID: *tag.WorkspaceID,
			ActorID:     userID,
			EntityType:  "tag",
			EntityID:    tag.ID,
			Action:      activity.TagDeleted,
			Diff:        map[string]activity.Change{"name": {Old: tag.Name}},
		})
	})
}

// Attach links a tag to a task. Both must be in the same scope.
func Attach(gdb *gorm.DB, tagID, taskID, userID string) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		tag, err := accessible(tx, tagID, userID, role.Member)
		if err != nil {
			return err
		}
		task, err := mustTask(tx, taskID, userID)
		if err != nil {
			return err
		}
		if !sameScope(tag.WorkspaceID, task.WorkspaceID) {
			return apperr.Validationf("tag and task are in different scopes")
		}

		var count int64
		if err := tx.Model(&models.TaskTag{}).Where("task_id = ? AND tag_id = ?", taskID, tagID).Count(&count).Error; err != nil {
			return apperr.Internalf(err, "tag: check link")
		}
		if count > 0 {
			return nil
		}
		if err := tx.Create(&models.TaskTag{TaskID: taskID, TagID: tagID}).Error; err != nil {
			return apperr.Internalf(err, "tag: attach")
		}
		return nil
	})
}

// Detach unlinks a tag from a task. Missing links are NotFound.
func Detach(gdb *gorm.DB, tagID, taskID, userID string) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		if _, err := accessible(tx, tagID, userID, role.Member); err != nil {
			return err
		}
		if _, err := mustTask(tx, taskID, userID); err != nil {
			return err
		}
		res := tx.Where("task_id = ? AND tag_id = ?", taskID, tagID).Delete(&models.TaskTag{})
		if res.Error != nil {
			return apperr.Internalf(res.Error, "tag: detach")
		}
		if res.RowsAffected == 0 {
			return apperr.NotFoundf("tag %s is not attached to task %s", tagID, taskID)
		}
		return nil
	})
}

// UsageCounts returns how many tasks each tag is attached to, in one
// grouped query.
func UsageCounts(gdb *gorm.DB, tagIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(tagIDs))
	if len(tagIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		TagID string
		Total int
	}
	err := gdb.Model(&models.TaskTag{}).
		Select("tag_id, COUNT(*) AS total").
		Where("tag_id IN ?", tagIDs).
		Group("tag_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internalf(err, "tag: usage counts")
	}
	for _, r := range rows {
		out[r.TagID] = r.Total
	}
	return out, nil
}

// accessible loads a tag and checks scope access, mirroring task access
// rules.
func accessible(tx *gorm.DB, tagID, userID string, required role.Role) (*models.Tag, error) {
	var tag models.Tag
	if err := tx.Where("id = ?", tagID).First(&tag).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("tag not found: %s", tagID)
		}
		return nil, apperr.Internalf(err, "tag: get %s", tagID)
	}
	if tag.WorkspaceID == nil {
		if tag.UserID != userID {
			return nil, apperr.NotFoundf("tag not found: %s", tagID)
		}
		return &tag, nil
	}
	if _, err := workspace.RequireRole(tx, *tag.WorkspaceID, userID, required); err != nil {
		return nil, err
	}
	return &tag, nil
}

func mustTask(tx *gorm.DB, taskID, userID string) (*models.Task, error) {
	var task models.Task
	if err := tx.Where("id = ?", taskID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("task not found: %s", taskID)
		}
		return nil, apperr.Internalf(err, "tag: get task %s", taskID)
	}
	if task.WorkspaceID == nil {
		if task.UserID != userID {
			return nil, apperr.NotFoundf("task not found: %s", taskID)
		}
		return &task, nil
	}
	if _, err := workspace.RequireRole(tx, *task.WorkspaceID, userID, role.Member); err != nil {
		return nil, err
	}
	return &task, nil
}

func sameScope(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
