package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/groveapp/grove/internal/notify"
	"github.com/groveapp/grove/internal/task"
	"github.com/groveapp/grove/internal/workspace"
	"gorm.io/gorm"
)

type todoCreateRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	WorkspaceID *string `json:"workspace_id"`
	ParentID    *string `json:"parent_id"`
	Position    int     `json:"position"`
}

type todoUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Position    *int    `json:"position"`
	Completed   *bool   `json:"completed"`
	// Raw so an explicit null (detach) is distinguishable from absent.
	ParentID json.RawMessage `json:"parent_id"`
}

// parentChange decodes the parent_id field: nil means unchanged, a pointer
// to nil means detach, and a pointer to a pointer names the new parent.
func (r todoUpdateRequest) parentChange() (**string, error) {
	if len(r.ParentID) == 0 {
		return nil, nil
	}
	var parent *string
	if err := json.Unmarshal(r.ParentID, &parent); err != nil {
		return nil, err
	}
	return &parent, nil
}

func handleTodoList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		opts := task.ListOpts{
			WorkspaceID: optString(c, "workspace_id"),
			ParentID:    optString(c, "parent_id"),
			RootsOnly:   c.Query("roots_only") == "true",
		}
		if v, ok := c.GetQuery("completed"); ok {
			completed := v == "true"
			opts.Completed = &completed
		}

		tasks, err := task.List(db, id.UserID, opts)
		if err != nil {
			writeError(c, err)
			return
		}

		ids := make([]string, len(tasks))
		for i, t := range tasks {
			ids[i] = t.ID
		}
		counts, err := task.ChildCounts(db, ids)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"todos": tasks, "child_counts": counts})
	}
}

func handleTodoCreate(db *gorm.DB, out *notify.Outbound) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req todoCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		created, err := task.Create(db, id.UserID, task.CreateOpts{
			Title:       req.Title,
			Description: req.Description,
			WorkspaceID: req.WorkspaceID,
			ParentID:    req.ParentID,
			Position:    req.Position,
		})
		if err != nil {
			writeError(c, err)
			return
		}

		if created.WorkspaceID != nil {
			if recipients, err := workspace.MemberIDs(db, *created.WorkspaceID); err == nil {
				out.Announce(c.Request.Context(), db, notify.Event{
					WorkspaceID: *created.WorkspaceID,
					ActorID:     id.UserID,
					Type:        notify.TypeTaskCreated,
					EntityType:  "task",
					EntityID:    created.ID,
					Recipients:  recipients,
				}, fmt.Sprintf("%s created task %q", id.UserID, created.Title))
			}
		}
		c.JSON(http.StatusCreated, created)
	}
}

func handleTodoGet(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		got, err := task.Get(db, c.Param("id"), id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, got)
	}
}

func handleTodoUpdate(db *gorm.DB, out *notify.Outbound) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req todoUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		parent, err := req.parentChange()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		updated, err := task.Update(db, c.Param("id"), id.UserID, task.UpdateOpts{
			Title:       req.Title,
			Description: req.Description,
			Position:    req.Position,
			Completed:   req.Completed,
			Parent:      parent,
		})
		if err != nil {
			writeError(c, err)
			return
		}

		if req.Completed != nil && *req.Completed && updated.WorkspaceID != nil {
			if recipients, err := workspace.MemberIDs(db, *updated.WorkspaceID); err == nil {
				out.Announce(c.Request.Context(), db, notify.Event{
					WorkspaceID: *updated.WorkspaceID,
					ActorID:     id.UserID,
					Type:        notify.TypeTaskCompleted,
					EntityType:  "task",
					EntityID:    updated.ID,
					Recipients:  recipients,
				}, fmt.Sprintf("%s completed task %q", id.UserID, updated.Title))
			}
		}
		c.JSON(http.StatusOK, updated)
	}
}

func handleTodoDelete(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := task.Delete(db, c.Param("id"), id.UserID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleTodoChildren(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		children, err := task.Children(db, c.Param("id"), id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"todos": children})
	}
}

func handleTodoMove(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req struct {
			WorkspaceID *string `json:"workspace_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		moved, err := task.MoveToWorkspace(db, c.Param("id"), id.UserID, req.WorkspaceID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, moved)
	}
}

// parse helpers shared by handlers that page over collections.
func intQuery(c *gin.Context, name string, fallback int) int {
	v, ok := c.GetQuery(name)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
