package model

import "time"

const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusRetrying  = "retrying"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

type FolderDeleteTask struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	ActorID string `gorm:"column:actor_id;size:64;index;not null" json:"actor_id"`
	Prefix  string `gorm:"column:prefix;size:768;not null" json:"prefix"`

	Status string `gorm:"column:status;type:varchar(32);index;not null" json:"status"`

	Pages          int `gorm:"column:pages;default:0" json:"pages"`
	ObjectsDeleted int `gorm:"column:objects_deleted;default:0" json:"objects_deleted"`
	ObjectsFailed  int `gorm:"column:objects_failed;default:0" json:"objects_failed"`
	RowsDeleted    int `gorm:"column:rows_deleted;default:0" json:"rows_deleted"`
	BatchesFailed  int `gorm:"column:batches_failed;default:0" json:"batches_failed"`

	ErrorMsg    string     `gorm:"column:error_msg;type:text" json:"error_msg"`
	RetryCount  int        `gorm:"column:retry_count;default:0" json:"retry_count"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at" json:"next_retry_at"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at"`
	FinishedAt  *time.Time `gorm:"column:finished_at" json:"finished_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (FolderDeleteTask) TableName() string {
	return "folder_delete_task"
}
