package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/groveapp/grove/internal/group"
	"github.com/groveapp/grove/internal/role"
	"gorm.io/gorm"
)

func handleGroupList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		wsID := c.Query("workspace_id")
		if wsID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": "workspace_id is required"},
			})
			return
		}

		groups, err := group.ListForWorkspace(db, wsID, id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"groups": groups})
	}
}

func handleGroupCreate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req struct {
			WorkspaceID string `json:"workspace_id" binding:"required"`
			Name        string `json:"name" binding:"required"`
			Description string `json:"description"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		created, err := group.Create(db, req.WorkspaceID, id.UserID, group.CreateOpts{
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

func handleGroupGet(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		got, err := group.Get(db, c.Param("id"), id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, got)
	}
}

func handleGroupUpdate(db *gorm.DB) gin.HandlerFunc {
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

		updated, err := group.Update(db, c.Param("id"), id.UserID, group.UpdateOpts{
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

func handleGroupDelete(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := group.Delete(db, c.Param("id"), id.UserID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleGroupMemberList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		members, err := group.Members(db, c.Param("id"), id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": members})
	}
}

func handleGroupMemberAdd(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req struct {
			UserID string `json:"user_id" binding:"required"`
			Role   string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}
		if req.Role == "" {
			req.Role = string(role.GroupMember)
		}
		r, err := role.ParseGroup(req.Role)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		added, err := group.AddMember(db, c.Param("id"), id.UserID, req.UserID, r)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, added)
	}
}

func handleGroupMemberRemove(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := group.RemoveMember(db, c.Param("id"), id.UserID, c.Param("userID")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
