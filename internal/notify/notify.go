// Package notify creates and serves per-user notifications. Dispatch runs
// inside the caller's transaction; feed reads, preference management, and the
// retention sweep use their own connections.
package notify

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/groveapp/grove/internal/apperr"
	"github.com/groveapp/grove/internal/models"
	"gorm.io/gorm"
)

// DedupWindow is the interval during which identical notification triggers
// for the same user are collapsed into one row.
const DedupWindow = 5 * time.Minute

// RetentionDays is how long notification rows live before the sweep removes
// them.
const RetentionDays = 90

// Notification type names.
const (
	TypeTaskCreated        = "task_created"
	TypeTaskUpdated        = "task_updated"
	TypeTaskCompleted      = "task_completed"
	TypeTaskDeleted        = "task_deleted"
	TypeTaskMovedWorkspace = "task_moved_workspace"
	TypeMemberAdded        = "member_added"
	TypeMemberRemoved      = "member_removed"
	TypeMemberRoleChanged  = "member_role_changed"
	TypeGroupMemberAdded   = "group_member_added"
	TypeInvitationAccepted = "invitation_accepted"
)

// Channel names for preference gating.
const (
	ChannelInApp   = "in_app"
	ChannelSlack   = "slack"
	ChannelDiscord = "discord"
)

// Event describes one notification trigger fanned out to Recipients. The
// actor is always excluded from the fan-out.
type Event struct {
	WorkspaceID string
	ActorID     string
	Type        string
	DedupKey    string
	EntityType  string
	EntityID    string
	Payload     map[string]interface{}
	Recipients  []string
}

// Dispatch creates in-app notification rows for the event's recipients using
// tx. Per-recipient, the in_app preference is consulted first, then the dedup
// window; suppressed recipients produce no row. Returns the number of rows
// created. Dispatch never commits.
func Dispatch(tx *gorm.DB, ev Event) (int, error) {
	if ev.Type == "" {
		return 0, fmt.Errorf("notify: event type is required")
	}
	if ev.DedupKey == "" {
		ev.DedupKey = ev.EntityType + ":" + ev.EntityID
	}

	var payloadJSON string
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return 0, fmt.Errorf("notify: marshal payload: %w", err)
		}
		payloadJSON = string(data)
	}

	now := time.Now().UTC()
	created := 0
	seen := make(map[string]bool)
	for _, uid := range ev.Recipients {
		if uid == ev.ActorID || seen[uid] {
			continue
		}
		seen[uid] = true

		allowed, err := Allowed(tx, uid, ev.WorkspaceID, ev.Type, ChannelInApp)
		if err != nil {
			return created, err
		}
		if !allowed {
			continue
		}

		dup, err := withinDedupWindow(tx, uid, ev.WorkspaceID, ev.Type, ev.DedupKey, now)
		if err != nil {
			return created, err
		}
		if dup {
			continue
		}

		row := models.Notification{
			ID:          uuid.NewString(),
			UserID:      uid,
			WorkspaceID: ev.WorkspaceID,
			Type:        ev.Type,
			DedupKey:    ev.DedupKey,
			ActorID:     ev.ActorID,
			EntityType:  ev.EntityType,
			EntityID:    ev.EntityID,
			Payload:     payloadJSON,
			ExpiresAt:   now.Add(RetentionDays * 24 * time.Hour),
			CreatedAt:   now,
		}
		if err := tx.Create(&row).Error; err != nil {
			return created, apperr.Internalf(err, "notify: create notification for %s", uid)
		}
		created++
	}
	return created, nil
}

// withinDedupWindow reports whether the user already has a notification for
// this (workspace, type, dedup key) tuple created inside the dedup window.
// Soft-deleted rows still count; a dismissed notification should not
// resurrect within the window.
func withinDedupWindow(tx *gorm.DB, userID, workspaceID, typ, dedupKey string, now time.Time) (bool, error) {
	cutoff := now.Add(-DedupWindow)
	var recent models.Notification
	err := tx.Where(
		"user_id = ? AND workspace_id = ? AND type = ? AND dedup_key = ? AND created_at > ? AND expires_at > ?",
		userID, workspaceID, typ, dedupKey, cutoff, now,
	).Order("created_at DESC").First(&recent).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, apperr.Internalf(err, "notify: dedup lookup for %s", userID)
}

// Allowed resolves the user's preference for (workspace, type, channel). The
// most specific matching row wins: workspace+type beats workspace-only beats
// type-only beats global. No row means enabled.
func Allowed(tx *gorm.DB, userID, workspaceID, typ, channel string) (bool, error) {
	var pref models.NotificationPref
	err := tx.Where("user_id = ? AND channel = ?", userID, channel).
		Where("workspace_id IS NULL OR workspace_id = ?", workspaceID).
		Where("type IS NULL OR type = ?", typ).
		Order("workspace_id IS NOT NULL DESC, type IS NOT NULL DESC").
		First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, apperr.Internalf(err, "notify: preference lookup for %s", userID)
	}
	return pref.Enabled, nil
}

// UpsertPref creates or updates a preference row for the exact
// (user, workspace, type, channel) tuple.
func UpsertPref(gdb *gorm.DB, userID string, workspaceID, typ *string, channel string, enabled bool) (*models.NotificationPref, error) {
	switch channel {
	case ChannelInApp, ChannelSlack, ChannelDiscord:
	default:
		return nil, apperr.Validationf("unknown notification channel %q", channel)
	}

	var pref models.NotificationPref
	q := gdb.Where("user_id = ? AND channel = ?", userID, channel)
	q = whereNullable(q, "workspace_id", workspaceID)
	q = whereNullable(q, "type", typ)

	err := q.First(&pref).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		pref = models.NotificationPref{
			UserID:      userID,
			WorkspaceID: workspaceID,
			Type:        typ,
			Channel:     channel,
			Enabled:     enabled,
		}
		if err := gdb.Create(&pref).Error; err != nil {
			return nil, apperr.Internalf(err, "notify: create preference")
		}
	case err != nil:
		return nil, apperr.Internalf(err, "notify: load preference")
	default:
		if err := gdb.Model(&pref).Update("enabled", enabled).Error; err != nil {
			return nil, apperr.Internalf(err, "notify: update preference")
		}
		pref.Enabled = enabled
	}
	return &pref, nil
}

func whereNullable(q *gorm.DB, column string, val *string) *gorm.DB {
	if val == nil {
		return q.Where(column + " IS NULL")
	}
	return q.Where(column+" = ?", *val)
}

// Preferences returns all preference rows for a user.
func Preferences(gdb *gorm.DB, userID string) ([]models.NotificationPref, error) {
	var prefs []models.NotificationPref
	if err := gdb.Where("user_id = ?", userID).Order("id ASC").Find(&prefs).Error; err != nil {
		return nil, apperr.Internalf(err, "notify: list preferences")
	}
	return prefs, nil
}

// FeedOpts holds filters and paging for the notification feed.
type FeedOpts struct {
	WorkspaceID string
	UnreadOnly  bool
	Limit       int
	Cursor      string
}

// Feed returns the user's notifications strictly newest-first, soft-deleted
// rows excluded. The returned cursor, when non-empty, fetches the next page;
// the (created_at, id) keyset keeps pages stable under concurrent inserts.
func Feed(gdb *gorm.DB, userID string, opts FeedOpts) ([]models.Notification, string, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	q := gdb.Where("user_id = ? AND deleted_at IS NULL", userID)
	if opts.WorkspaceID != "" {
		q = q.Where("workspace_id = ?", opts.WorkspaceID)
	}
	if opts.UnreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if opts.Cursor != "" {
		createdAt, id, err := decodeCursor(opts.Cursor)
		if err != nil {
			return nil, "", err
		}
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	}

	var rows []models.Notification
	if err := q.Order("created_at DESC, id DESC").Limit(opts.Limit + 1).Find(&rows).Error; err != nil {
		return nil, "", apperr.Internalf(err, "notify: feed for %s", userID)
	}

	next := ""
	if len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
		last := rows[len(rows)-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return rows, next, nil
}

func encodeCursor(createdAt time.Time, id string) string {
	raw := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", apperr.Validationf("malformed cursor")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", apperr.Validationf("malformed cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", apperr.Validationf("malformed cursor timestamp")
	}
	return ts, parts[1], nil
}

// UnreadCount returns the user's unread, non-deleted notification count,
// optionally scoped to one workspace.
func UnreadCount(gdb *gorm.DB, userID, workspaceID string) (int64, error) {
	q := gdb.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL AND deleted_at IS NULL", userID)
	if workspaceID != "" {
		q = q.Where("workspace_id = ?", workspaceID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, apperr.Internalf(err, "notify: unread count for %s", userID)
	}
	return count, nil
}

// MarkRead sets the read timestamp on one of the user's notifications.
func MarkRead(gdb *gorm.DB, userID, notificationID string) error {
	return setReadAt(gdb, userID, notificationID, ptrTime(time.Now().UTC()))
}

// MarkUnread clears the read timestamp on one of the user's notifications.
func MarkUnread(gdb *gorm.DB, userID, notificationID string) error {
	return setReadAt(gdb, userID, notificationID, nil)
}

func setReadAt(gdb *gorm.DB, userID, notificationID string, readAt *time.Time) error {
	result := gdb.Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND deleted_at IS NULL", notificationID, userID).
		Update("read_at", readAt)
	if result.Error != nil {
		return apperr.Internalf(result.Error, "notify: mark read state")
	}
	if result.RowsAffected == 0 {
		return apperr.NotFoundf("notification not found: %s", notificationID)
	}
	return nil
}

// MarkAllRead marks every unread notification for the user, optionally
// scoped to one workspace. Returns the number marked.
func MarkAllRead(gdb *gorm.DB, userID, workspaceID string) (int64, error) {
	q := gdb.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL AND deleted_at IS NULL", userID)
	if workspaceID != "" {
		q = q.Where("workspace_id = ?", workspaceID)
	}
	result := q.Update("read_at", time.Now().UTC())
	if result.Error != nil {
		return 0, apperr.Internalf(result.Error, "notify: mark all read")
	}
	return result.RowsAffected, nil
}

// SoftDelete tombstones one of the user's notifications. The row stays for
// audit until the retention sweep removes it.
func SoftDelete(gdb *gorm.DB, userID, notificationID string) error {
	result := gdb.Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND deleted_at IS NULL", notificationID, userID).
		Update("deleted_at", time.Now().UTC())
	if result.Error != nil {
		return apperr.Internalf(result.Error, "notify: soft delete")
	}
	if result.RowsAffected == 0 {
		return apperr.NotFoundf("notification not found: %s", notificationID)
	}
	return nil
}

// SweepExpired hard-deletes notifications past their retention expiry.
// Run from the sweep scheduler or the CLI, never from request handling.
func SweepExpired(gdb *gorm.DB) (int64, error) {
	result := gdb.Where("expires_at <= ?", time.Now().UTC()).Delete(&models.Notification{})
	if result.Error != nil {
		return 0, apperr.Internalf(result.Error, "notify: sweep expired")
	}
	return result.RowsAffected, nil
}

func ptrTime(t time.Time) *time.Time { return &t }
