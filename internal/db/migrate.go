package db

import (
	"fmt"

	"github.com/groveapp/grove/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model for migration, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&models.Workspace{},
		&models.WorkspaceMember{},
		&models.Task{},
		&models.TaskTag{},
		&models.Tag{},
		&models.Group{},
		&models.GroupMember{},
		&models.Invitation{},
		&models.Notification{},
		&models.NotificationPref{},
		&models.ActivityLog{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
