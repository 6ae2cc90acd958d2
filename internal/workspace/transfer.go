package workspace

import (
	"github.com/groveapp/grove/internal/activity"
	"github.com/groveapp/grove/internal/apperr"
	"github.com/groveapp/grove/internal/models"
	"github.com/groveapp/grove/internal/role"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransferOwnership atomically demotes the current owner to Admin and
// promotes the target to Owner. The actor must hold Owner and the target
// Admin or above. Both member rows are locked for the duration of the
// transaction so concurrent transfers serialize and the single-owner
// invariant holds.
func TransferOwnership(gdb *gorm.DB, workspaceID, currentOwnerID, newOwnerID string) error {
	if currentOwnerID == newOwnerID {
		return apperr.Conflictf("cannot transfer ownership to the current owner")
	}

	return gdb.Transaction(func(tx *gorm.DB) error {
		if _, err := fetch(tx, workspaceID); err != nil {
			return err
		}

		locked := lockForUpdate(tx)
		actor, err := GetMember(locked, workspaceID, currentOwnerID)
		if err != nil {
			return err
		}
		if actor.Role() != role.Owner {
			return apperr.Forbiddenf("only the owner can transfer ownership")
		}

		target, err := GetMember(locked, workspaceID, newOwnerID)
		if err != nil {
			return err
		}
		if !target.Role().AtLeast(role.Admin) {
			return apperr.Forbiddenf("ownership can only be transferred to an admin")
		}

		if err := tx.Model(&models.WorkspaceMember{}).
			Where("workspace_id = ? AND user_id = ?", workspaceID, currentOwnerID).
			Update("role_rank", int(role.Admin)).Error; err != nil {
			return apperr.Internalf(err, "workspace: demote owner")
		}
		if err := tx.Model(&models.WorkspaceMember{}).
			Where("workspace_id = ? AND user_id = ?", workspaceID, newOwnerID).
			Update("role_rank", int(role.Owner)).Error; err != nil {
			return apperr.Internalf(err, "workspace: promote new owner")
		}

		return activity.Record(tx, activity.Entry{
			WorkspaceID: workspaceID,
			ActorID:     currentOwnerID,
			EntityType:  "member",
			EntityID:    newOwnerID,
			Action:      activity.OwnershipTransferred,
			Diff: map[string]activity.Change{
				"previous_owner": {Old: role.Owner.String(), New: role.Admin.String()},
				"new_owner":      {Old: target.Role().String(), New: role.Owner.String()},
			},
		})
	})
}

// OwnerCount returns how many members hold Owner rank. The invariant is
// exactly one per workspace.
func OwnerCount(gdb *gorm.DB, workspaceID string) (int64, error) {
	var count int64
	err := gdb.Model(&models.WorkspaceMember{}).
		Where("workspace_id = ? AND role_rank = ?", workspaceID, int(role.Owner)).
		Count(&count).Error
	if err != nil {
		return 0, apperr.Internalf(err, "workspace: count owners")
	}
	return count, nil
}

// lockForUpdate adds SELECT ... FOR UPDATE on dialects that support row
// locks. SQLite serializes whole transactions, which is stricter.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
