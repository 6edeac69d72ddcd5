package handler

import (
	"context"
	"errors"
	"net/http"

	"BucketDash/internal/service"
	"BucketDash/model"
	"BucketDash/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// FolderTasks queues recursive folder deletes and reports their status.
type FolderTasks interface {
	CreateFolderDeleteTask(ctx context.Context, actor service.Actor, prefix string) (*model.FolderDeleteTask, error)
	GetTask(ctx context.Context, actor service.Actor, id uint64) (*model.FolderDeleteTask, error)
	ListTasks(ctx context.Context, actor service.Actor, limit int) ([]model.FolderDeleteTask, error)
}

// Options toggles request handling.
type Options struct {
	MaxUploadBytes int64
	// AsyncFolderDelete queues folder deletes instead of running them in the request.
	AsyncFolderDelete bool
}

type Handler struct {
	svc   *service.Services
	tasks FolderTasks
	opts  Options
}

// New builds a Handler. tasks may be nil when folder deletes always run in-request.
func New(svc *service.Services, tasks FolderTasks, opts Options) *Handler {
	return &Handler{svc: svc, tasks: tasks, opts: opts}
}

func actorFrom(c *gin.Context) service.Actor {
	return service.Actor{ID: utils.UserID(c)}
}

func badRequest(c *gin.Context, err error) {
	utils.FailKind(c, http.StatusBadRequest, err, service.KindValidation.String(), false)
}

// writeError maps a service error onto an HTTP status.
func writeError(c *gin.Context, err error) {
	var se *service.Error
	if !errors.As(err, &se) {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("unclassified error")
		utils.Fail(c, http.StatusInternalServerError, err)
		return
	}
	status := http.StatusInternalServerError
	switch se.Kind {
	case service.KindValidation:
		status = http.StatusBadRequest
	case service.KindAuthorization:
		status = http.StatusForbidden
		if se.Unauthenticated {
			status = http.StatusUnauthorized
		}
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindConflict:
		status = http.StatusConflict
	case service.KindBackend:
		status = http.StatusServiceUnavailable
		log.Warn().Err(err).Str("path", c.FullPath()).Msg("backend unavailable")
	}
	utils.FailKind(c, status, err, se.Kind.String(), se.Retryable())
}
