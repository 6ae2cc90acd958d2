package api

import (
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all /api/v1 routes on the router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	db := opts.DB
	out := opts.Outbound

	v1 := router.Group("/api/v1")
	v1.Use(requireAuth(db, opts.JWTSecret))
	if opts.RateLimitEnabled {
		v1.Use(rateLimit(opts.RateLimitRPS, opts.RateLimitBurst))
	}

	todos := v1.Group("/todos")
	{
		todos.GET("", handleTodoList(db))
		todos.POST("", handleTodoCreate(db, out))
		todos.GET("/:id", handleTodoGet(db))
		todos.PATCH("/:id", handleTodoUpdate(db, out))
		todos.DELETE("/:id", handleTodoDelete(db))
		todos.GET("/:id/children", handleTodoChildren(db))
		todos.POST("/:id/move", handleTodoMove(db))
	}

	tags := v1.Group("/tags")
	{
		tags.GET("", handleTagList(db))
		tags.POST("", handleTagCreate(db))
		tags.PATCH("/:id", handleTagUpdate(db))
		tags.DELETE("/:id", handleTagDelete(db))
		tags.PUT("/:id/todos/:todoID", handleTagAttach(db))
		tags.DELETE("/:id/todos/:todoID", handleTagDetach(db))
	}

	workspaces := v1.Group("/workspaces")
	{
		workspaces.GET("", handleWorkspaceList(db))
		workspaces.POST("", handleWorkspaceCreate(db))
		workspaces.GET("/:id", handleWorkspaceGet(db))
		workspaces.PATCH("/:id", handleWorkspaceUpdate(db))
		workspaces.DELETE("/:id", handleWorkspaceDelete(db))
		workspaces.GET("/:id/members", handleMemberList(db))
		workspaces.POST("/:id/members", handleMemberAdd(db, out))
		workspaces.PATCH("/:id/members/:userID", handleMemberUpdate(db))
		workspaces.DELETE("/:id/members/:userID", handleMemberRemove(db))
		workspaces.POST("/:id/transfer", handleOwnershipTransfer(db))
	}

	groups := v1.Group("/groups")
	{
		groups.GET("", handleGroupList(db))
		groups.POST("", handleGroupCreate(db))
		groups.GET("/:id", handleGroupGet(db))
		groups.PATCH("/:id", handleGroupUpdate(db))
		groups.DELETE("/:id", handleGroupDelete(db))
		groups.GET("/:id/members", handleGroupMemberList(db))
		groups.POST("/:id/members", handleGroupMemberAdd(db))
		groups.DELETE("/:id/members/:userID", handleGroupMemberRemove(db))
	}

	invitations := v1.Group("/invitations")
	{
		invitations.GET("", handleInvitationList(db))
		invitations.POST("", handleInvitationCreate(db))
		invitations.POST("/accept", handleInvitationAccept(db, out))
		invitations.DELETE("/:id", handleInvitationRevoke(db))
	}

	notifications := v1.Group("/notifications")
	{
		notifications.GET("", handleNotificationFeed(db))
		notifications.GET("/unread_count", handleUnreadCount(db))
		notifications.POST("/read_all", handleMarkAllRead(db))
		notifications.POST("/:id/read", handleMarkRead(db))
		notifications.POST("/:id/unread", handleMarkUnread(db))
		notifications.DELETE("/:id", handleNotificationDelete(db))
		notifications.GET("/preferences", handlePrefList(db))
		notifications.PUT("/preferences", handlePrefUpsert(db))
	}

	v1.GET("/activity", handleActivityList(db))
}
