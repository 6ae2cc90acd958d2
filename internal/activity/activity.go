// Package activity provides the append-only audit trail. Entries are written
// with Record inside the caller's transaction so a rolled-back mutation
// leaves no trace.
package activity

import (
	"encoding/json"
	"fmt"

	"github.com/groveapp/grove/internal/apperr"
	"github.com/groveapp/grove/internal/models"
	"gorm.io/gorm"
)

// Action names. One per persisted-state mutation.
const (
	TaskCreated          = "task.created"
	TaskUpdated          = "task.updated"
	TaskCompleted        = "task.completed"
	TaskUncompleted      = "task.uncompleted"
	TaskMoved            = "task.moved"
	TaskDeleted          = "task.deleted"
	TaskWorkspaceChanged = "task.workspace_changed"
	TagCreated           = "tag.created"
	TagUpdated           = "tag.updated"
	TagDeleted           = "tag.deleted"
	WorkspaceCreated     = "workspace.created"
	WorkspaceUpdated     = "workspace.updated"
	WorkspaceDeleted     = "workspace.deleted"
	MemberAdded          = "member.added"
	MemberRemoved        = "member.removed"
	MemberLeft           = "member.left"
	MemberRoleChanged    = "member.role_changed"
	OwnershipTransferred = "member.ownership_transferred"
	GroupCreated         = "group.created"
	GroupUpdated         = "group.updated"
	GroupDeleted         = "group.deleted"
	GroupMemberAdded     = "group.member_added"
	GroupMemberRemoved   = "group.member_removed"
	InvitationCreated    = "invitation.created"
	InvitationAccepted   = "invitation.accepted"
	InvitationRevoked    = "invitation.revoked"
)

// Change is a single field's before/after pair. Creation entries have a nil
// Old, deletion entries a nil New.
type Change struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// Entry describes one audit row to be written.
type Entry struct {
	WorkspaceID string
	ActorID     string
	EntityType  string
	EntityID    string
	Action      string
	Diff        map[string]Change
}

// Diff computes the field-level changes between two snapshots. Only fields
// whose values differ appear in the result.
func Diff(before, after map[string]interface{}) map[string]Change {
	diff := make(map[string]Change)
	for key, oldVal := range before {
		newVal, ok := after[key]
		if !ok || oldVal != newVal {
			diff[key] = Change{Old: oldVal, New: newVal}
		}
	}
	for key, newVal := range after {
		if _, ok := before[key]; !ok {
			diff[key] = Change{Old: nil, New: newVal}
		}
	}
	if len(diff) == 0 {
		return nil
	}
	return diff
}

// Record writes one audit row using tx. Callers pass their open transaction;
// Record never commits.
func Record(tx *gorm.DB, e Entry) error {
	var diffJSON string
	if e.Diff != nil {
		data, err := json.Marshal(e.Diff)
		if err != nil {
			return fmt.Errorf("activity: marshal diff: %w", err)
		}
		diffJSON = string(data)
	}
	row := models.ActivityLog{
		WorkspaceID: e.WorkspaceID,
		ActorID:     e.ActorID,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Action:      e.Action,
		Diff:        diffJSON,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("activity: record %s: %w", e.Action, err)
	}
	return nil
}

// ListOpts holds filters and paging for activity queries.
type ListOpts struct {
	EntityType  string
	EntityID    string
	OldestFirst bool
	Limit       int
	Offset      int
}

// ForWorkspace returns a workspace's audit feed. Default order is newest
// first; OldestFirst flips it. Membership gating is the caller's job.
func ForWorkspace(gdb *gorm.DB, workspaceID string, opts ListOpts) ([]models.ActivityLog, error) {
	if opts.Limit <= 0 || opts.Limit > 200 {
		opts.Limit = 50
	}
	q := gdb.Where("workspace_id = ?", workspaceID)
	if opts.EntityType != "" {
		q = q.Where("entity_type = ?", opts.EntityType)
	}
	if opts.EntityID != "" {
		q = q.Where("entity_id = ?", opts.EntityID)
	}
	order := "created_at DESC, id DESC"
	if opts.OldestFirst {
		order = "created_at ASC, id ASC"
	}
	var rows []models.ActivityLog
	if err := q.Order(order).Limit(opts.Limit).Offset(opts.Offset).Find(&rows).Error; err != nil {
		return nil, apperr.Internalf(err, "activity: list for workspace %s", workspaceID)
	}
	return rows, nil
}

// ForEntity returns the audit history of one entity across a workspace.
func ForEntity(gdb *gorm.DB, workspaceID, entityType, entityID string, opts ListOpts) ([]models.ActivityLog, error) {
	opts.EntityType = entityType
	opts.EntityID = entityID
	return ForWorkspace(gdb, workspaceID, opts)
}
