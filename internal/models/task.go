package models

import "time"

// Task is a node in a user's or workspace's task tree. WorkspaceID is nil for
// personal tasks. ParentID is nil for roots; the parent chain is kept
// cycle-free by the task service.
type Task struct {
	ID          string  `gorm:"primaryKey;size:36"`
	UserID      string  `gorm:"size:36;not null;index"`
	WorkspaceID *string `gorm:"size:36;index"`
	ParentID    *string `gorm:"size:36;index"`
	Title       string  `gorm:"size:500;not null"`
	Description string  `gorm:"type:text"`
	Position    int     `gorm:"default:0"`
	Completed   bool    `gorm:"default:false;index"`
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Parent   *Task  `gorm:"foreignKey:ParentID"`
	Children []Task `gorm:"foreignKey:ParentID"`
	Tags     []Tag  `gorm:"many2many:task_tags"`
}

// TaskTag is the task/tag join row. Declared explicitly so scope-bound tag
// stripping on subtree moves can delete rows directly.
type TaskTag struct {
	TaskID string `gorm:"primaryKey;size:36"`
	TagID  string `gorm:"primaryKey;size:36"`
}
