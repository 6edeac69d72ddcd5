// Package task runs recursive folder deletes detached from the request that asked for them.
package task

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"BucketDash/internal/notify"
	"BucketDash/internal/repo"
	"BucketDash/internal/service"
	"BucketDash/model"

	"github.com/rs/zerolog/log"
)

// FolderDeleteMessage is the payload sent to the worker.
type FolderDeleteMessage struct {
	TaskID  uint64 `json:"task_id"`
	Attempt int    `json:"attempt"`
}

// Publisher enqueues task messages.
type Publisher interface {
	PublishTask(ctx context.Context, body []byte) error
}

// FolderDeleter is the part of service.FolderEngine a task drives.
type FolderDeleter interface {
	CheckFolderDelete(ctx context.Context, actor service.Actor, prefix string) error
	DeleteFolderRecursive(ctx context.Context, actor service.Actor, prefix string) (*service.FolderDeleteReport, error)
}

type Manager struct {
	tasks     repo.TaskRepository
	publisher Publisher
	folders   FolderDeleter
	mailer    notify.Mailer
	reportTo  string
}

// NewManager builds a Manager. mailer may be nil, and reports are only sent when reportTo is set.
func NewManager(tasks repo.TaskRepository, publisher Publisher, folders FolderDeleter, mailer notify.Mailer, reportTo string) *Manager {
	if mailer == nil {
		mailer = notify.NopMailer{}
	}
	return &Manager{
		tasks:     tasks,
		publisher: publisher,
		folders:   folders,
		mailer:    mailer,
		reportTo:  reportTo,
	}
}

// CreateFolderDeleteTask checks the request like an in-process delete would, then
// records and enqueues it.
func (m *Manager) CreateFolderDeleteTask(ctx context.Context, actor service.Actor, prefix string) (*model.FolderDeleteTask, error) {
	const op = "enqueue folder delete"
	if err := m.folders.CheckFolderDelete(ctx, actor, prefix); err != nil {
		return nil, err
	}
	task := &model.FolderDeleteTask{
		ActorID: actor.ID,
		Prefix:  prefix,
		Status:  model.TaskStatusPending,
	}
	if err := m.tasks.Create(ctx, task); err != nil {
		return nil, service.Classify(op, err)
	}
	body, err := json.Marshal(FolderDeleteMessage{TaskID: task.ID})
	if err != nil {
		m.markFailed(ctx, task.ID, err)
		return nil, service.Classify(op, err)
	}
	if err := m.publisher.PublishTask(ctx, body); err != nil {
		m.markFailed(ctx, task.ID, err)
		return nil, service.Classify(op, err)
	}
	log.Info().Uint64("task", task.ID).Str("prefix", prefix).Str("actor", actor.ID).Msg("folder delete queued")
	return task, nil
}

// GetTask returns a task owned by actor. Other actors' tasks read as not found.
func (m *Manager) GetTask(ctx context.Context, actor service.Actor, id uint64) (*model.FolderDeleteTask, error) {
	const op = "get task"
	if !actor.Authenticated() {
		return nil, service.Errorf(service.KindAuthorization, op, "authentication required")
	}
	task, err := m.tasks.Get(ctx, id)
	if err != nil {
		return nil, service.Classify(op, err)
	}
	if task.ActorID != actor.ID {
		return nil, service.Errorf(service.KindNotFound, op, "task %d not found", id)
	}
	return task, nil
}

// ListTasks returns actor's most recent tasks.
func (m *Manager) ListTasks(ctx context.Context, actor service.Actor, limit int) ([]model.FolderDeleteTask, error) {
	const op = "list tasks"
	if !actor.Authenticated() {
		return nil, service.Errorf(service.KindAuthorization, op, "authentication required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	tasks, err := m.tasks.ListByActor(ctx, actor.ID, limit)
	if err != nil {
		return nil, service.Classify(op, err)
	}
	return tasks, nil
}

// ProcessFolderDeleteTask runs one task. A task that is already finished or
// claimed by another worker is skipped. The returned error decides retry.
func (m *Manager) ProcessFolderDeleteTask(ctx context.Context, taskID uint64) error {
	task, err := m.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status == model.TaskStatusCompleted || task.Status == model.TaskStatusFailed {
		return nil
	}
	claimed, err := m.tasks.MarkRunning(ctx, taskID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	// The role is checked again here; it may have changed since the task was queued.
	report, err := m.folders.DeleteFolderRecursive(ctx, service.Actor{ID: task.ActorID}, task.Prefix)
	if err != nil {
		return err
	}

	warning := ""
	if report.Partial() {
		warning = strings.Join(report.Errors, "; ")
	}
	if err := m.tasks.MarkCompleted(ctx, taskID, report.Counts(), warning); err != nil {
		return err
	}
	if report.Partial() {
		m.sendReport(ctx, taskID)
	}
	return nil
}

// MarkRetrying records a failed attempt that will run again.
func (m *Manager) MarkRetrying(ctx context.Context, taskID uint64, cause error, attempt int, nextRetryAt time.Time) error {
	return m.tasks.MarkRetrying(ctx, taskID, cause.Error(), attempt, nextRetryAt)
}

// Fail marks the task failed for good and sends a report.
func (m *Manager) Fail(ctx context.Context, taskID uint64, cause error) error {
	if err := m.tasks.MarkFailed(ctx, taskID, cause.Error()); err != nil {
		return err
	}
	m.sendReport(ctx, taskID)
	return nil
}

func (m *Manager) markFailed(ctx context.Context, taskID uint64, cause error) {
	if err := m.tasks.MarkFailed(context.WithoutCancel(ctx), taskID, cause.Error()); err != nil {
		log.Error().Err(err).Uint64("task", taskID).Msg("mark task failed")
	}
}

func (m *Manager) sendReport(ctx context.Context, taskID uint64) {
	if m.reportTo == "" {
		return
	}
	task, err := m.tasks.Get(ctx, taskID)
	if err != nil {
		log.Warn().Err(err).Uint64("task", taskID).Msg("load task for report failed")
		return
	}
	if err := m.mailer.SendFolderDeleteReport(ctx, m.reportTo, task); err != nil {
		log.Warn().Err(err).Uint64("task", taskID).Msg("send folder delete report failed")
	}
}
