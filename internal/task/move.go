package task

import (
	"time"

	"github.com/groveapp/grove/internal/activity"
	"github.com/groveapp/grove/internal/apperr"
	"github.com/groveapp/grove/internal/models"
	"github.com/groveapp/grove/internal/notify"
	"github.com/groveapp/grove/internal/role"
	"github.com/groveapp/grove/internal/workspace"
	"gorm.io/gorm"
)

// MoveToWorkspace moves a task and its whole subtree into another
// workspace, or back to the user's personal scope when target is nil.
// The moved root is detached from its parent and every task in the
// subtree loses its tag links, since tags are scoped. The user needs
// Member or above on both sides; only the task's creator may move it
// into personal scope. Everything happens in one transaction.
func MoveToWorkspace(gdb *gorm.DB, taskID, userID string, target *string) (*models.Task, error) {
	var task *models.Task
	err := gdb.Transaction(func(tx *gorm.DB) error {
		var err error
		task, err = accessible(tx, taskID, userID, role.Member)
		if err != nil {
			return err
		}
		if sameScope(task.WorkspaceID, target) {
			return nil
		}

		if target != nil {
			if _, err := workspace.RequireRole(tx, *target, userID, role.Member); err != nil {
				return err
			}
		} else if task.UserID != userID {
			return apperr.Forbiddenf("only the task creator can move it to personal scope")
		}

		source := task.WorkspaceID
		ids, err := subtreeIDs(tx, task.ID)
		if err != nil {
			return err
		}

		if err := tx.Where("task_id IN ?", ids).Delete(&models.TaskTag{}).Error; err != nil {
			return apperr.Internalf(err, "task: strip tags on move")
		}
		now := time.Now().UTC()
		if err := tx.Model(&models.Task{}).Where("id IN ?", ids).Updates(map[string]interface{}{
			"workspace_id": target,
			"updated_at":   now,
		}).Error; err != nil {
			return apperr.Internalf(err, "task: rescope subtree")
		}
		if err := tx.Model(&models.Task{}).Where("id = ?", task.ID).Update("parent_id", nil).Error; err != nil {
			return apperr.Internalf(err, "task: detach moved root")
		}
		task.WorkspaceID = target
		task.ParentID = nil
		task.UpdatedAt = now

		diff := map[string]activity.Change{
			"workspace_id": {Old: deref(source), New: deref(target)},
			"moved_count":  {New: len(ids)},
		}
		for _, ws := range []*string{source, target} {
			if ws == nil {
				continue
			}
			if err := activity.Record(tx, activity.Entry{
				WorkspaceID: *ws,
				ActorID:     userID,
				EntityType:  "task",
				EntityID:    task.ID,
				Action:      activity.TaskWorkspaceChanged,
				Diff:        diff,
			}); err != nil {
				return err
			}
			if err := dispatchToMembers(tx, *ws, userID, notify.TypeTaskMovedWorkspace, task.ID, map[string]interface{}{
				"title":       task.Title,
				"moved_count": len(ids),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func deref(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
