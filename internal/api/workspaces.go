package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/groveapp/grove/internal/notify"
	"github.com/groveapp/grove/internal/role"
	"github.com/groveapp/grove/internal/workspace"
	"gorm.io/gorm"
)

func handleWorkspaceList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		workspaces, err := workspace.ListForUser(db, id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"workspaces": workspaces})
	}
}

func handleWorkspaceCreate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req struct {
			Name        string `json:"name" binding:"required"`
			Description string `json:"description"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		created, err := workspace.Create(db, id.UserID, workspace.CreateOpts{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

func handleWorkspaceGet(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		ws, err := workspace.Get(db, c.Param("id"), id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ws)
	}
}

func handleWorkspaceUpdate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req struct {
			Name        *string `json:"name"`
			Description *string `json:"description"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		updated, err := workspace.Update(db, c.Param("id"), id.UserID, workspace.UpdateOpts{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func handleWorkspaceDelete(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := workspace.Delete(db, c.Param("id"), id.UserID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleMemberList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		members, err := workspace.ListMembers(db, c.Param("id"), id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": members})
	}
}

func handleMemberAdd(db *gorm.DB, out *notify.Outbound) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req struct {
			UserID string `json:"user_id" binding:"required"`
			Role   string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}
		r, err := role.Parse(req.Role)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		wsID := c.Param("id")
		added, err := workspace.AddMember(db, wsID, id.UserID, req.UserID, r)
		if err != nil {
			writeError(c, err)
			return
		}

		out.Announce(c.Request.Context(), db, notify.Event{
			WorkspaceID: wsID,
			ActorID:     id.UserID,
			Type:        notify.TypeMemberAdded,
			EntityType:  "workspace",
			EntityID:    wsID,
			Recipients:  []string{req.UserID},
		}, fmt.Sprintf("%s joined the workspace as %s", req.UserID, r))
		c.JSON(http.StatusCreated, added)
	}
}

func handleMemberUpdate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req struct {
			Role string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}
		r, err := role.Parse(req.Role)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		updated, err := workspace.UpdateMemberRole(db, c.Param("id"), id.UserID, c.Param("userID"), r)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func handleMemberRemove(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := workspace.RemoveMember(db, c.Param("id"), id.UserID, c.Param("userID")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleOwnershipTransfer(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req struct {
			NewOwnerID string `json:"new_owner_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		if err := workspace.TransferOwnership(db, c.Param("id"), id.UserID, req.NewOwnerID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
