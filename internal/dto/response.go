package dto

import (
	"time"

	"BucketDash/model"
)

type UploadResponse struct {
	Key          string  `json:"key"`
	Name         string  `json:"name"`
	Size         int64   `json:"size"`
	ContentType  string  `json:"content_type"`
	URL          string  `json:"url"`
	ThumbnailKey string  `json:"thumbnail_key,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url"`
	BlurDataURL  *string `json:"blur_data_url,omitempty"`
}

type FolderDeleteTaskResponse struct {
	TaskID uint64 `json:"task_id"`
	Status string `json:"status"`
	Prefix string `json:"prefix"`
}

type TaskStatusResponse struct {
	ID             uint64     `json:"id"`
	Prefix         string     `json:"prefix"`
	Status         string     `json:"status"`
	Pages          int        `json:"pages"`
	ObjectsDeleted int        `json:"objects_deleted"`
	ObjectsFailed  int        `json:"objects_failed"`
	RowsDeleted    int        `json:"rows_deleted"`
	BatchesFailed  int        `json:"batches_failed"`
	Error          string     `json:"error,omitempty"`
	RetryCount     int        `json:"retry_count"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func NewTaskStatusResponse(t *model.FolderDeleteTask) TaskStatusResponse {
	return TaskStatusResponse{
		ID:             t.ID,
		Prefix:         t.Prefix,
		Status:         t.Status,
		Pages:          t.Pages,
		ObjectsDeleted: t.ObjectsDeleted,
		ObjectsFailed:  t.ObjectsFailed,
		RowsDeleted:    t.RowsDeleted,
		BatchesFailed:  t.BatchesFailed,
		Error:          t.ErrorMsg,
		RetryCount:     t.RetryCount,
		NextRetryAt:    t.NextRetryAt,
		StartedAt:      t.StartedAt,
		FinishedAt:     t.FinishedAt,
		CreatedAt:      t.CreatedAt,
	}
}
