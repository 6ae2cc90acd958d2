// Package task implements the hierarchical task tree: CRUD, completion,
// re-parenting with cycle prevention, and cross-workspace subtree moves.
package task

import (
	"errors"
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

// maxDepth bounds ancestor walks so a corrupted parent chain cannot loop
// forever.
const maxDepth = 100

// CreateOpts holds parameters for creating a task.
type CreateOpts struct {
	Title       string
	Description string
	WorkspaceID *string
	ParentID    *string
	Position    int
}

// UpdateOpts holds optional field updates. Nil pointers leave fields
// unchanged. Parent uses a double pointer so callers can distinguish
// "unchanged" (nil) from "detach" (pointer to nil).
type UpdateOpts struct {
	Title       *string
	Description *string
	Position    *int
	Completed   *bool
	Parent      **string
}

// Create creates a task, optionally under a parent in the same scope.
// Workspace tasks require Member or above.
func Create(gdb *gorm.DB, userID string, opts CreateOpts) (*models.Task, error) {
	if opts.Title == "" {
		return nil, apperr.Validationf("task title is required")
	}

	var task models.Task
	err := gdb.Transaction(func(tx *gorm.DB) error {
		if opts.WorkspaceID != nil {
			if _, err := workspace.RequireRole(tx, *opts.WorkspaceID, userID, role.Member); err != nil {
				return err
			}
		}
		if opts.ParentID != nil {
			parent, err := accessible(tx, *opts.ParentID, userID, role.Member)
			if err != nil {
				return err
			}
			if !sameScope(parent.WorkspaceID, opts.WorkspaceID) {
				return apperr.Validationf("parent task is in a different scope")
			}
		}

		task = models.Task{
			ID:          uuid.NewString(),
			UserID:      userID,
			WorkspaceID: opts.WorkspaceID,
			ParentID:    opts.ParentID,
			Title:       opts.Title,
			Description: opts.Description,
			Position:    opts.Position,
		}
		if err := tx.Create(&task).Error; err != nil {
			return apperr.Internalf(err, "task: create")
		}

		if opts.WorkspaceID == nil {
			return nil
		}
		if err := activity.Record(tx, activity.Entry{
			WorkspaceID: *opts.WorkspaceID,
			ActorID:     userID,
			EntityType:  "task",
			EntityID:    task.ID,
			Action:      activity.TaskCreated,
			Diff:        map[string]activity.Change{"title": {New: task.Title}},
		}); err != nil {
			return err
		}
		return dispatchToMembers(tx, *opts.WorkspaceID, userID, notify.TypeTaskCreated, task.ID, map[string]interface{}{
			"title": task.Title,
		})
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Get returns a task the user can see: their own personal tasks, or any
// task in a workspace they belong to.
func Get(gdb *gorm.DB, taskID, userID string) (*models.Task, error) {
	return accessible(gdb, taskID, userID, role.Viewer)
}

// ListOpts filters List. Nil pointers mean "any".
type ListOpts struct {
	WorkspaceID *string
	ParentID    *string
	RootsOnly   bool
	Completed   *bool
}

// List returns the user's personal tasks, or a workspace's tasks if
// WorkspaceID is set (membership required). Ordered by position then
// creation time.
func List(gdb *gorm.DB, userID string, opts ListOpts) ([]models.Task, error) {
	q := gdb.Model(&models.Task{})
	if opts.WorkspaceID != nil {
		if _, err := workspace.RequireRole(gdb, *opts.WorkspaceID, userID, role.Viewer); err != nil {
			return nil, err
		}
		q = q.Where("workspace_id = ?", *opts.WorkspaceID)
	} else {
		q = q.Where("user_id = ? AND workspace_id IS NULL", userID)
	}
	if opts.RootsOnly {
		q = q.Where("parent_id IS NULL")
	} else if opts.ParentID != nil {
		q = q.Where("parent_id = ?", *opts.ParentID)
	}
	if opts.Completed != nil {
		q = q.Where("completed = ?", *opts.Completed)
	}

	var out []models.Task
	if err := q.Order("position ASC, created_at ASC").Preload("Tags").Find(&out).Error; err != nil {
		return nil, apperr.Internalf(err, "task: list")
	}
	return out, nil
}

// Children returns a task's direct children.
func Children(gdb *gorm.DB, taskID, userID string) ([]models.Task, error) {
	task, err := accessible(gdb, taskID, userID, role.Viewer)
	if err != nil {
		return nil, err
	}
	var out []models.Task
	if err := gdb.Where("parent_id = ?", task.ID).Order("position ASC, created_at ASC").Find(&out).Error; err != nil {
		return nil, apperr.Internalf(err, "task: children of %s", taskID)
	}
	return out, nil
}

// Counts summarizes a task's direct children.
type Counts struct {
	Children  int `json:"children"`
	Completed int `json:"completed"`
}

// ChildCounts returns per-parent child and completed-child counts in a
// single grouped query.
func ChildCounts(gdb *gorm.DB, parentIDs []string) (map[string]Counts, error) {
	out := make(map[string]Counts, len(parentIDs))
	if len(parentIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		ParentID  string
		Total     int
		Completed int
	}
	err := gdb.Model(&models.Task{}).
		Select("parent_id, COUNT(*) AS total, SUM(CASE WHEN completed THEN 1 ELSE 0 END) AS completed").
		Where("parent_id IN ?", parentIDs).
		Group("parent_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internalf(err, "task: child counts")
	}
	for _, r := range rows {
		out[r.ParentID] = Counts{Children: r.Total, Completed: r.Completed}
	}
	return out, nil
}

// Update modifies a task. Workspace tasks require Member or above.
// Re-parenting checks the new parent is in the same scope and not a
// descendant of the task. Completion transitions are logged as distinct
// actions and stamp CompletedAt.
func Update(gdb *gorm.DB, taskID, userID string, opts UpdateOpts) (*models.Task, error) {
	var task *models.Task
	err := gdb.Transaction(func(tx *gorm.DB) error {
		var err error
		task, err = accessible(tx, taskID, userID, role.Member)
		if err != nil {
			return err
		}

		before := snapshot(task)
		completedBefore := task.Completed

		if opts.Title != nil {
			if *opts.Title == "" {
				return apperr.Validationf("task title is required")
			}
			task.Title = *opts.Title
		}
		if opts.Description != nil {
			task.Description = *opts.Description
		}
		if opts.Position != nil {
			task.Position = *opts.Position
		}
		if opts.Parent != nil {
			if err := reparent(tx, task, *opts.Parent, userID); err != nil {
				return err
			}
		}
		if opts.Completed != nil && *opts.Completed != task.Completed {
			task.Completed = *opts.Completed
			if task.Completed {
				now := time.Now().UTC()
				task.CompletedAt = &now
			} else {
				task.CompletedAt = nil
			}
		}

		if err := tx.Save(task).Error; err != nil {
			return apperr.Internalf(err, "task: update %s", taskID)
		}

		if task.WorkspaceID == nil {
			return nil
		}
		ws := *task.WorkspaceID

		if completedBefore != task.Completed {
			action := activity.TaskCompleted
			typ := notify.TypeTaskCompleted
			if !task.Completed {
				action = activity.TaskUncompleted
				typ = notify.TypeTaskUpdated
			}
			if err := activity.Record(tx, activity.Entry{
				WorkspaceID: ws,
				ActorID:     userID,
				EntityType:  "task",
				EntityID:    task.ID,
				Action:      action,
				Diff:        map[string]activity.Change{"completed": {Old: completedBefore, New: task.Completed}},
			}); err != nil {
				return err
			}
			if err := dispatchToMembers(tx, ws, userID, typ, task.ID, map[string]interface{}{
				"title":     task.Title,
				"completed": task.Completed,
			}); err != nil {
				return err
			}
		}

		diff := activity.Diff(before, snapshot(task))
		if diff == nil {
			return nil
		}
		delete(diff, "completed")
		if moved, ok := diff["parent_id"]; ok {
			delete(diff, "parent_id")
			if err := activity.Record(tx, activity.Entry{
				WorkspaceID: ws,
				ActorID:     userID,
				EntityType:  "task",
				EntityID:    task.ID,
				Action:      activity.TaskMoved,
				Diff:        map[string]activity.Change{"parent_id": moved},
			}); err != nil {
				return err
			}
		}
		if len(diff) == 0 {
			return nil
		}
		return activity.Record(tx, activity.Entry{
			WorkspaceID: ws,
			ActorID:     userID,
			EntityType:  "task",
			EntityID:    task.ID,
			Action:      activity.TaskUpdated,
			Diff:        diff,
		})
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Delete removes a task and its whole subtree, including tag links.
// One activity entry is written for the root with the descendant count.
func Delete(gdb *gorm.DB, taskID, userID string) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		task, err := accessible(tx, taskID, userID, role.Member)
		if err != nil {
			return err
		}

		ids, err := subtreeIDs(tx, task.ID)
		if err != nil {
			return err
		}
		if err := tx.Where("task_id IN ?", ids).Delete(&models.TaskTag{}).Error; err != nil {
			return apperr.Internalf(err, "task: delete tag links")
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.Task{}).Error; err != nil {
			return apperr.Internalf(err, "task: delete subtree")
		}

		if task.WorkspaceID == nil {
			return nil
		}
		if err := activity.Record(tx, activity.Entry{
			WorkspaceID: *task.WorkspaceID,
			ActorID:     userID,
			EntityType:  "task",
			EntityID:    task.ID,
			Action:      activity.TaskDeleted,
			Diff: map[string]activity.Change{
				"title":            {Old: task.Title},
				"descendant_count": {Old: len(ids) - 1},
			},
		}); err != nil {
			return err
		}
		return dispatchToMembers(tx, *task.WorkspaceID, userID, notify.TypeTaskDeleted, task.ID, map[string]interface{}{
			"title": task.Title,
		})
	})
}

// snapshot captures the loggable fields of a task for diffing.
func snapshot(t *models.Task) map[string]interface{} {
	var parent interface{}
	if t.ParentID != nil {
		parent = *t.ParentID
	}
	return map[string]interface{}{
		"title":       t.Title,
		"description": t.Description,
		"position":    t.Position,
		"completed":   t.Completed,
		"parent_id":   parent,
	}
}

// reparent validates and applies a parent change on the in-memory task.
func reparent(tx *gorm.DB, task *models.Task, newParent *string, userID string) error {
	if newParent == nil {
		task.ParentID = nil
		return nil
	}
	if *newParent == task.ID {
		return apperr.Conflictf("invalid hierarchy: task cannot be its own parent")
	}
	parent, err := accessible(tx, *newParent, userID, role.Member)
	if err != nil {
		return err
	}
	if !sameScope(parent.WorkspaceID, task.WorkspaceID) {
		return apperr.Validationf("parent task is in a different scope")
	}
	cycle, err := wouldCreateCycle(tx, task.ID, *newParent)
	if err != nil {
		return err
	}
	if cycle {
		return apperr.Conflictf("invalid hierarchy: new parent is a descendant of the task")
	}
	task.ParentID = newParent
	return nil
}

// wouldCreateCycle reports whether making candidate the parent of taskID
// would close a loop. It walks candidate's ancestor chain looking for
// taskID.
func wouldCreateCycle(tx *gorm.DB, taskID, candidate string) (bool, error) {
	current := candidate
	for depth := 0; depth < maxDepth; depth++ {
		if current == taskID {
			return true, nil
		}
		var parent struct{ ParentID *string }
		err := tx.Model(&models.Task{}).Select("parent_id").Where("id = ?", current).Scan(&parent).Error
		if err != nil {
			return false, apperr.Internalf(err, "task: walk ancestors of %s", candidate)
		}
		if parent.ParentID == nil {
			return false, nil
		}
		current = *parent.ParentID
	}
	return false, apperr.Conflictf("invalid hierarchy: ancestor chain too deep")
}

// subtreeIDs returns the task and all its descendants, breadth first.
func subtreeIDs(tx *gorm.DB, rootID string) ([]string, error) {
	ids := []string{rootID}
	frontier := []string{rootID}
	for len(frontier) > 0 {
		var next []string
		err := tx.Model(&models.Task{}).Where("parent_id IN ?", frontier).Pluck("id", &next).Error
		if err != nil {
			return nil, apperr.Internalf(err, "task: collect subtree of %s", rootID)
		}
		if len(ids)+len(next) > 10000 {
			return nil, apperr.Conflictf("invalid hierarchy: subtree too large")
		}
		ids = append(ids, next...)
		frontier = next
	}
	return ids, nil
}

// accessible loads a task and checks the user may act on it at the given
// workspace role. Personal tasks are visible only to their creator;
// inaccessible and missing tasks are the same NotFound.
func accessible(tx *gorm.DB, taskID, userID string, required role.Role) (*models.Task, error) {
	var task models.Task
	if err := tx.Where("id = ?", taskID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("task not found: %s", taskID)
		}
		return nil, apperr.Internalf(err, "task: get %s", taskID)
	}
	if task.WorkspaceID == nil {
		if task.UserID != userID {
			return nil, apperr.NotFoundf("task not found: %s", taskID)
		}
		return &task, nil
	}
	if _, err := workspace.RequireRole(tx, *task.WorkspaceID, userID, required); err != nil {
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

// dispatchToMembers fans a task event out to every workspace member other
// than the actor.
func dispatchToMembers(tx *gorm.DB, workspaceID, actorID, typ, taskID string, payload map[string]interface{}) error {
	recipients, err := workspace.MemberIDs(tx, workspaceID)
	if err != nil {
		return err
	}
	_, err = notify.Dispatch(tx, notify.Event{
		WorkspaceID: workspaceID,
		ActorID:     actorID,
		Type:        typ,
		EntityType:  "task",
		EntityID:    taskID,
		Recipients:  recipients,
		Payload:     payload,
	})
	return err
}
