package router

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"BucketDash/internal/cache"
	"BucketDash/internal/handler"
	"BucketDash/internal/metrics"
	"BucketDash/internal/repo"
	"BucketDash/internal/service"
	"BucketDash/internal/storage"
	"BucketDash/internal/task"
	"BucketDash/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type stack struct {
	engine    *gin.Engine
	store     *storage.MemoryStore
	files     *repo.MemoryFileRepository
	published int
}

func (s *stack) PublishTask(ctx context.Context, body []byte) error {
	s.published++
	return nil
}

func newStack(t *testing.T, async bool) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &stack{store: storage.NewMemoryStore(), files: repo.NewMemoryFileRepository()}
	s.files.SetRole("root", "admin")
	svc := service.New(service.Deps{
		Store:   s.store,
		Files:   s.files,
		Listing: cache.NewListingCache(cache.NewMemoryCache(), time.Minute, time.Minute),
		Locker:  service.NewLocalPrefixLocker(),
		Metrics: metrics.New(),
		Options: service.Options{AdminRole: "admin", BackendTimeout: time.Second, MaxUploadBytes: 1 << 20},
	})
	tasks := task.NewManager(repo.NewMemoryTaskRepository(), s, svc.Folders, nil, "")
	h := handler.New(svc, tasks, handler.Options{MaxUploadBytes: 1 << 20, AsyncFolderDelete: async})
	s.engine = InitRouter(Deps{
		Handler:   h,
		Metrics:   metrics.New(),
		JWTSecret: secret,
		Checks: map[string]HealthCheck{
			"store": func(context.Context) error { return nil },
		},
	})
	return s
}

type envelope struct {
	Code      int             `json:"code"`
	Msg       string          `json:"msg"`
	Kind      string          `json:"kind"`
	Retryable bool            `json:"retryable"`
	Data      json.RawMessage `json:"data"`
}

func (s *stack) do(t *testing.T, user, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return s.send(t, user, req)
}

func (s *stack) send(t *testing.T, user string, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	if user != "" {
		token, err := utils.GenerateToken(secret, user, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *stack) upload(t *testing.T, user, prefix, name string, data []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("prefix", prefix))
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.send(t, user, req)
}

func TestPublicRoutes(t *testing.T) {
	s := newStack(t, false)

	w, _ := s.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, "", http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w, env := s.do(t, "", http.MethodPost, "/api/files/list", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, -1, env.Code)
}

func TestUploadListDeleteFlow(t *testing.T) {
	s := newStack(t, false)

	w, env := s.do(t, "alice", http.MethodPost, "/api/folders", map[string]string{"folder_name": "docs"})
	require.Equal(t, http.StatusOK, w.Code, env.Msg)

	w, env = s.upload(t, "alice", "docs/", "notes.txt", []byte("hello"))
	require.Equal(t, http.StatusOK, w.Code, env.Msg)
	var up struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &up))
	assert.True(t, strings.HasPrefix(up.Key, "docs/notes-"))

	w, env = s.do(t, "alice", http.MethodPost, "/api/files/list", map[string]interface{}{"prefix": ""})
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Directories []string `json:"directories"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, []string{"docs"}, page.Directories)

	w, _ = s.do(t, "bob", http.MethodPost, "/api/files/delete", map[string]interface{}{
		"items": []map[string]string{{"key": up.Key}},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(t, "alice", http.MethodPost, "/api/files/delete", map[string]interface{}{
		"items": []map[string]string{{"key": up.Key}},
	})
	require.Equal(t, http.StatusOK, w.Code, env.Msg)
	var res service.BatchDeleteResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.Deleted)
	assert.False(t, s.store.Has(up.Key))
}

func TestErrorsMapToStatus(t *testing.T) {
	s := newStack(t, false)

	w, env := s.do(t, "alice", http.MethodPost, "/api/folders", map[string]string{"folder_name": "bad name!"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", env.Kind)

	w, _ = s.do(t, "alice", http.MethodPost, "/api/folders", map[string]string{"folder_name": "dup"})
	require.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(t, "alice", http.MethodPost, "/api/folders", map[string]string{"folder_name": "dup"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, env.Retryable)

	w, _ = s.do(t, "alice", http.MethodPost, "/api/files/url", map[string]string{"key": "missing.txt"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.store.SetHooks(storage.MemoryHooks{List: func(string) error { return errors.New("store unreachable") }})
	w, env = s.do(t, "alice", http.MethodPost, "/api/files/list", map[string]string{})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.True(t, env.Retryable)
}

func TestDeleteFolderSync(t *testing.T) {
	s := newStack(t, false)
	s.upload(t, "alice", "old/", "a.txt", []byte("a"))

	w, _ := s.do(t, "alice", http.MethodPost, "/api/folders/delete", map[string]string{"prefix": "old/"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := s.do(t, "root", http.MethodPost, "/api/folders/delete", map[string]string{"prefix": "old/"})
	require.Equal(t, http.StatusOK, w.Code, env.Msg)
	var report service.FolderDeleteReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 1, report.ObjectsDeleted)
	assert.Empty(t, s.store.Keys())
}

func TestDeleteFolderAsync(t *testing.T) {
	s := newStack(t, true)

	w, env := s.do(t, "root", http.MethodPost, "/api/folders/delete", map[string]string{"prefix": "old/"})
	require.Equal(t, http.StatusAccepted, w.Code, env.Msg)
	var queued struct {
		TaskID uint64 `json:"task_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &queued))
	assert.Equal(t, "pending", queued.Status)
	assert.Equal(t, 1, s.published)

	w, env = s.do(t, "root", http.MethodGet, "/api/folders/tasks/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"prefix":"old/"`)

	w, _ = s.do(t, "alice", http.MethodGet, "/api/folders/tasks/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, "root", http.MethodGet, "/api/folders/tasks/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, "alice", http.MethodPost, "/api/folders/delete", map[string]string{"prefix": "old/"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, s.published)
}

func TestArchiveDownload(t *testing.T) {
	s := newStack(t, false)
	_, env := s.upload(t, "alice", "", "a.txt", []byte("alpha"))
	var up struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &up))

	w, _ := s.do(t, "alice", http.MethodPost, "/api/files/archive", map[string]interface{}{"keys": []string{up.Key}, "name": "bundle"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "bundle.zip")

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, up.Key, zr.File[0].Name)
}
