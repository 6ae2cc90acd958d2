package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/groveapp/grove/internal/invite"
	"github.com/groveapp/grove/internal/notify"
	"github.com/groveapp/grove/internal/role"
	"gorm.io/gorm"
)

func handleInvitationList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)

		// Without a workspace filter, list the caller's own pending
		// invitations across workspaces.
		wsID := optString(c, "workspace_id")
		if wsID == nil {
			pending, err := invite.PendingForEmail(db, id.Email)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"invitations": pending})
			return
		}

		invitations, err := invite.ListForWorkspace(db, *wsID, id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"invitations": invitations})
	}
}

func handleInvitationCreate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req struct {
			WorkspaceID string `json:"workspace_id" binding:"required"`
			Email       string `json:"email" binding:"required"`
			Role        string `json:"role" binding:"required"`
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

		inv, raw, err := invite.Create(db, req.WorkspaceID, id.UserID, req.Email, r)
		if err != nil {
			writeError(c, err)
			return
		}
		// The raw token appears only in this response.
		c.JSON(http.StatusCreated, gin.H{"invitation": inv, "token": raw})
	}
}

func handleInvitationAccept(db *gorm.DB, out *notify.Outbound) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req struct {
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			return
		}

		member, err := invite.Accept(db, req.Token, id.UserID, id.Email)
		if err != nil {
			writeError(c, err)
			return
		}

		out.Announce(c.Request.Context(), db, notify.Event{
			WorkspaceID: member.WorkspaceID,
			ActorID:     id.UserID,
			Type:        notify.TypeInvitationAccepted,
			EntityType:  "workspace",
			EntityID:    member.WorkspaceID,
			Recipients:  []string{member.InvitedBy},
		}, fmt.Sprintf("%s accepted an invitation", id.Email))
		c.JSON(http.StatusOK, member)
	}
}

func handleInvitationRevoke(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := invite.Revoke(db, c.Param("id"), id.UserID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
