package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/groveapp/grove/internal/notify"
	"gorm.io/gorm"
)

func handleNotificationFeed(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		opts := notify.FeedOpts{
			UnreadOnly: c.Query("unread_only") == "true",
			Limit:      intQuery(c, "limit", 0),
			Cursor:     c.Query("cursor"),
		}
		if ws := optString(c, "workspace_id"); ws != nil {
			opts.WorkspaceID = *ws
		}

		notifications, next, err := notify.Feed(db, id.UserID, opts)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": notifications, "next_cursor": next})
	}
}

func handleUnreadCount(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		count, err := notify.UnreadCount(db, id.UserID, c.Query("workspace_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"unread": count})
	}
}

func handleMarkRead(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := notify.MarkRead(db, id.UserID, c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleMarkUnread(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := notify.MarkUnread(db, id.UserID, c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleMarkAllRead(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		updated, err := notify.MarkAllRead(db, id.UserID, c.Query("workspace_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

func handleNotificationDelete(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := notify.SoftDelete(db, id.UserID, c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handlePrefList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		prefs, err := notify.Preferences(db, id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"preferences": prefs})
	}
}

func handlePrefUpsert(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req struct {
			WorkspaceID *string `json:"workspace_id"`
			Type        *string `json:"type"`
			Channel     string  `json:"channel" binding:"required"`
			Enabled     bool    `json:"enabled"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		pref, err := notify.UpsertPref(db, id.UserID, req.WorkspaceID, req.Type, req.Channel, req.Enabled)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, pref)
	}
}
