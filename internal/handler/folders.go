package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"BucketDash/internal/dto"
	"BucketDash/utils"

	"github.com/gin-gonic/gin"
)

// CreateFolder creates a folder marker under current_prefix.
func (h *Handler) CreateFolder(c *gin.Context) {
	var req dto.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request: %w", err))
		return
	}
	rec, err := h.svc.Folders.CreateFolder(c.Request.Context(), actorFrom(c), req.CurrentPrefix, req.FolderName)
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, rec)
}

// DeleteFolder deletes a folder subtree. In async mode it queues a task and
// answers 202; otherwise the delete outlives a client disconnect.
func (h *Handler) DeleteFolder(c *gin.Context) {
	var req dto.DeleteFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request: %w", err))
		return
	}
	actor := actorFrom(c)

	if h.opts.AsyncFolderDelete && h.tasks != nil {
		task, err := h.tasks.CreateFolderDeleteTask(c.Request.Context(), actor, req.Prefix)
		if err != nil {
			writeError(c, err)
			return
		}
		utils.Accepted(c, dto.FolderDeleteTaskResponse{TaskID: task.ID, Status: task.Status, Prefix: task.Prefix})
		return
	}

	report, err := h.svc.Folders.DeleteFolderRecursive(context.WithoutCancel(c.Request.Context()), actor, req.Prefix)
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, report)
}

// GetFolderTask reports one queued folder delete.
func (h *Handler) GetFolderTask(c *gin.Context) {
	if h.tasks == nil {
		utils.Fail(c, http.StatusNotFound, fmt.Errorf("folder delete tasks are not enabled"))
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid task id %q", c.Param("id")))
		return
	}
	task, err := h.tasks.GetTask(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, dto.NewTaskStatusResponse(task))
}

// ListFolderTasks lists the caller's recent folder deletes.
func (h *Handler) ListFolderTasks(c *gin.Context) {
	if h.tasks == nil {
		utils.Success(c, []dto.TaskStatusResponse{})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	tasks, err := h.tasks.ListTasks(c.Request.Context(), actorFrom(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]dto.TaskStatusResponse, len(tasks))
	for i := range tasks {
		out[i] = dto.NewTaskStatusResponse(&tasks[i])
	}
	utils.Success(c, out)
}
