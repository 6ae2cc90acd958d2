package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/groveapp/grove/internal/tag"
	"gorm.io/gorm"
)

func handleTagList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		tags, err := tag.List(db, id.UserID, optString(c, "workspace_id"))
		if err != nil {
			writeError(c, err)
			return
		}

		ids := make([]string, len(tags))
		for i, t := range tags {
			ids[i] = t.ID
		}
		usage, err := tag.UsageCounts(db, ids)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tags": tags, "usage": usage})
	}
}

func handleTagCreate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req struct {
			Name        string  `json:"name" binding:"required"`
			ColorHex    string  `json:"color_hex"`
			WorkspaceID *string `json:"workspace_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		created, err := tag.Create(db, id.UserID, tag.CreateOpts{
			Name:        req.Name,
			ColorHex:    req.ColorHex,
			WorkspaceID: req.WorkspaceID,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

func handleTagUpdate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req struct {
			Name     *string `json:"name"`
			ColorHex *string `json:"color_hex"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		updated, err := tag.Update(db, c.Param("id"), id.UserID, tag.UpdateOpts{
			Name:     req.Name,
			ColorHex: req.ColorHex,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func handleTagDelete(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := tag.Delete(db, c.Param("id"), id.UserID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleTagAttach(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := tag.Attach(db, c.Param("id"), c.Param("todoID"), id.UserID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleTagDetach(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := tag.Detach(db, c.Param("id"), c.Param("todoID"), id.UserID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
