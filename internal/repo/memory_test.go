package repo

import (
	"context"
	"testing"
	"time"

	"BucketDash/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryFileRepository()
	for _, key := range []string{"docs/", "docs/Cat.png", "docs/dog.png", "cat.txt"} {
		require.NoError(t, r.Insert(ctx, &model.FileRecord{Key: key, Name: key, UploadedAt: time.Now()}))
	}
	assert.ErrorIs(t, r.Insert(ctx, &model.FileRecord{Key: "cat.txt"}), ErrDuplicateKey)

	rows, total, err := r.QueryBySearch(ctx, SearchQuery{Term: "CAT", Scope: ScopeCurrent, Prefix: "docs/", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "docs/Cat.png", rows[0].Key)

	_, total, err = r.QueryBySearch(ctx, SearchQuery{Term: "cat", Scope: ScopeGlobal, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	n, err := r.DeleteByPrefix(ctx, "docs/")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []string{"cat.txt"}, r.Keys())

	_, err = r.GetProfile(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTaskRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTaskRepository()
	task := &model.FolderDeleteTask{ActorID: "root", Prefix: "old/"}
	require.NoError(t, r.Create(ctx, task))
	assert.Equal(t, uint64(1), task.ID)

	ok, err := r.MarkRunning(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.MarkRunning(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.MarkCompleted(ctx, task.ID, TaskCounts{ObjectsDeleted: 4, Pages: 1}, ""))
	got, err := r.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.Equal(t, 4, got.ObjectsDeleted)
	assert.NotNil(t, got.FinishedAt)

	_, err = r.Get(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}
