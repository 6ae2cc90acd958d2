package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/groveapp/grove/internal/activity"
	"github.com/groveapp/grove/internal/role"
	"github.com/groveapp/grove/internal/workspace"
	"gorm.io/gorm"
)

func handleActivityList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		wsID := c.Query("workspace_id")
		if wsID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": "workspace_id is required"},
			})
			return
		}
		if _, err := workspace.RequireRole(db, wsID, id.UserID, role.Viewer); err != nil {
			writeError(c, err)
			return
		}

		opts := activity.ListOpts{
			EntityType:  c.Query("entity_type"),
			EntityID:    c.Query("entity_id"),
			OldestFirst: c.Query("order") == "asc",
			Limit:       intQuery(c, "limit", 0),
			Offset:      intQuery(c, "offset", 0),
		}
		entries, err := activity.ForWorkspace(db, wsID, opts)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"activity": entries})
	}
}
