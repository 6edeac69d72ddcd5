package repo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"BucketDash/model"

	"gorm.io/gorm"
)

// TaskCounts are the folder-delete totals persisted with a finished task.
type TaskCounts struct {
	Pages          int
	ObjectsDeleted int
	ObjectsFailed  int
	RowsDeleted    int
	BatchesFailed  int
}

// TaskRepository persists folder delete tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *model.FolderDeleteTask) error
	Get(ctx context.Context, id uint64) (*model.FolderDeleteTask, error)
	ListByActor(ctx context.Context, actorID string, limit int) ([]model.FolderDeleteTask, error)
	// MarkRunning moves a pending or retrying task to running. It returns false
	// when another consumer already claimed the task or it is finished.
	MarkRunning(ctx context.Context, id uint64) (bool, error)
	MarkRetrying(ctx context.Context, id uint64, cause string, attempt int, nextRetryAt time.Time) error
	MarkCompleted(ctx context.Context, id uint64, counts TaskCounts, warning string) error
	MarkFailed(ctx context.Context, id uint64, cause string) error
}

type GormTaskRepository struct {
	db *gorm.DB
}

func NewGormTaskRepository(db *gorm.DB) *GormTaskRepository {
	return &GormTaskRepository{db: db}
}

func (r *GormTaskRepository) Create(ctx context.Context, task *model.FolderDeleteTask) error {
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *GormTaskRepository) Get(ctx context.Context, id uint64) (*model.FolderDeleteTask, error) {
	var task model.FolderDeleteTask
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (r *GormTaskRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]model.FolderDeleteTask, error) {
	if limit <= 0 {
		limit = 20
	}
	var tasks []model.FolderDeleteTask
	err := r.db.WithContext(ctx).Where("actor_id = ?", actorID).
		Order("created_at DESC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *GormTaskRepository) MarkRunning(ctx context.Context, id uint64) (bool, error) {
	startedAt := time.Now()
	res := r.db.WithContext(ctx).Model(&model.FolderDeleteTask{}).
		Where("id = ? AND status IN ?", id, []string{model.TaskStatusPending, model.TaskStatusRetrying}).
		Updates(map[string]interface{}{
			"status":     model.TaskStatusRunning,
			"started_at": &startedAt,
			"error_msg":  "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormTaskRepository) MarkRetrying(ctx context.Context, id uint64, cause string, attempt int, nextRetryAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.FolderDeleteTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.TaskStatusRetrying,
			"error_msg":     cause,
			"retry_count":   attempt,
			"next_retry_at": &nextRetryAt,
		}).Error
}

func (r *GormTaskRepository) MarkCompleted(ctx context.Context, id uint64, counts TaskCounts, warning string) error {
	finishedAt := time.Now()
	return r.db.WithContext(ctx).Model(&model.FolderDeleteTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          model.TaskStatusCompleted,
			"pages":           counts.Pages,
			"objects_deleted": counts.ObjectsDeleted,
			"objects_failed":  counts.ObjectsFailed,
			"rows_deleted":    counts.RowsDeleted,
			"batches_failed":  counts.BatchesFailed,
			"error_msg":       warning,
			"finished_at":     &finishedAt,
		}).Error
}

func (r *GormTaskRepository) MarkFailed(ctx context.Context, id uint64, cause string) error {
	finishedAt := time.Now()
	return r.db.WithContext(ctx).Model(&model.FolderDeleteTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      model.TaskStatusFailed,
			"error_msg":   cause,
			"finished_at": &finishedAt,
		}).Error
}

// MemoryTaskRepository is the in-process TaskRepository.
type MemoryTaskRepository struct {
	mu     sync.Mutex
	nextID uint64
	tasks  map[uint64]model.FolderDeleteTask
}

func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{tasks: make(map[uint64]model.FolderDeleteTask)}
}

func (r *MemoryTaskRepository) Create(ctx context.Context, task *model.FolderDeleteTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	task.ID = r.nextID
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	now := time.Now()
	task.CreatedAt, task.UpdatedAt = now, now
	r.tasks[task.ID] = *task
	return nil
}

func (r *MemoryTaskRepository) Get(ctx context.Context, id uint64) (*model.FolderDeleteTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &task, nil
}

func (r *MemoryTaskRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]model.FolderDeleteTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.FolderDeleteTask
	for _, task := range r.tasks {
		if task.ActorID == actorID {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTaskRepository) MarkRunning(ctx context.Context, id uint64) (bool, error) {
	return r.update(id, func(t *model.FolderDeleteTask) bool {
		if t.Status != model.TaskStatusPending && t.Status != model.TaskStatusRetrying {
			return false
		}
		now := time.Now()
		t.Status = model.TaskStatusRunning
		t.StartedAt = &now
		t.ErrorMsg = ""
		return true
	})
}

func (r *MemoryTaskRepository) MarkRetrying(ctx context.Context, id uint64, cause string, attempt int, nextRetryAt time.Time) error {
	_, err := r.update(id, func(t *model.FolderDeleteTask) bool {
		t.Status = model.TaskStatusRetrying
		t.ErrorMsg = cause
		t.RetryCount = attempt
		t.NextRetryAt = &nextRetryAt
		return true
	})
	return err
}

func (r *MemoryTaskRepository) MarkCompleted(ctx context.Context, id uint64, counts TaskCounts, warning string) error {
	_, err := r.update(id, func(t *model.FolderDeleteTask) bool {
		now := time.Now()
		t.Status = model.TaskStatusCompleted
		t.Pages = counts.Pages
		t.ObjectsDeleted = counts.ObjectsDeleted
		t.ObjectsFailed = counts.ObjectsFailed
		t.RowsDeleted = counts.RowsDeleted
		t.BatchesFailed = counts.BatchesFailed
		t.ErrorMsg = warning
		t.FinishedAt = &now
		return true
	})
	return err
}

func (r *MemoryTaskRepository) MarkFailed(ctx context.Context, id uint64, cause string) error {
	_, err := r.update(id, func(t *model.FolderDeleteTask) bool {
		now := time.Now()
		t.Status = model.TaskStatusFailed
		t.ErrorMsg = cause
		t.FinishedAt = &now
		return true
	})
	return err
}

func (r *MemoryTaskRepository) update(id uint64, fn func(*model.FolderDeleteTask) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if !fn(&task) {
		return false, nil
	}
	task.UpdatedAt = time.Now()
	r.tasks[id] = task
	return true, nil
}
