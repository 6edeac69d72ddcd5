package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"BucketDash/internal/repo"
	"BucketDash/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedWithThumb(t *testing.T, f *fixture, key string, owner *string) {
	t.Helper()
	f.seed(t, key, owner)
	require.NoError(t, f.store.PutObject(context.Background(), ThumbnailKey(key), bytes.NewReader([]byte("t")), 1, storage.PutOptions{ContentType: "image/png"}))
}

func outcomesByKey(res *BatchDeleteResult) map[string]ItemOutcome {
	out := make(map[string]ItemOutcome, len(res.Items))
	for _, item := range res.Items {
		out[item.Key] = item
	}
	return out
}

func TestDeleteMany_ObjectFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	seedWithThumb(t, f, "a.txt", strptr("alice"))
	seedWithThumb(t, f, "b.txt", strptr("alice"))
	f.store.SetHooks(storage.MemoryHooks{Remove: func(key string) error {
		if key == "b.txt" {
			return errors.New("access denied")
		}
		return nil
	}})

	res, err := f.svc.Deleter.DeleteMany(context.Background(), alice, []DeleteItem{
		{Key: "a.txt", ThumbnailKey: "thumbnails/a.txt"},
		{Key: "b.txt"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.Partial)
	assert.Equal(t, int64(2), res.RowsTotal)

	items := outcomesByKey(res)
	assert.Equal(t, ItemOutcome{Key: "a.txt", Object: OutcomeFulfilled, Thumbnail: OutcomeFulfilled, Metadata: OutcomeFulfilled}, items["a.txt"])
	assert.Equal(t, OutcomeRejected, items["b.txt"].Object)
	assert.Equal(t, OutcomeFulfilled, items["b.txt"].Thumbnail)
	assert.Equal(t, OutcomeFulfilled, items["b.txt"].Metadata)
	assert.Contains(t, items["b.txt"].Error, "access denied")

	assert.Equal(t, []string{"b.txt"}, f.store.Keys())
	assert.Empty(t, f.files.Keys())
}

func TestDeleteMany_MetadataFailureKeepsObjectOutcomes(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a.txt", strptr("alice"))
	f.files.SetHooks(repo.MemoryHooks{DeleteByKeys: func([]string) error { return errors.New("db down") }})

	res, err := f.svc.Deleter.DeleteMany(context.Background(), alice, []DeleteItem{{Key: "a.txt"}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	item := res.Items[0]
	assert.Equal(t, OutcomeFulfilled, item.Object)
	assert.Equal(t, OutcomeFulfilled, item.Thumbnail)
	assert.Equal(t, OutcomeRejected, item.Metadata)
	assert.Equal(t, 1, res.Partial)
	assert.False(t, f.store.Has("a.txt"))
	assert.Equal(t, []string{"a.txt"}, f.files.Keys())
}

func TestScenarioC_NonOwnerCannotDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "report.pdf", strptr("alice"))
	f.seed(t, "mine.txt", strptr("bob"))

	_, err := f.svc.Deleter.DeleteMany(ctx, bob, []DeleteItem{{Key: "mine.txt"}, {Key: "report.pdf"}})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuthorization))

	// Nothing in the batch is touched.
	assert.True(t, f.store.Has("report.pdf"))
	assert.True(t, f.store.Has("mine.txt"))
	page, err := f.svc.Paginator.Page(ctx, PageRequest{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mine.txt", "report.pdf"}, fileKeys(page.Files))
}

func TestDeleteMany_AdminDeletesAnyFile(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "report.pdf", strptr("alice"))
	f.seed(t, "orphan.txt", nil)

	res, err := f.svc.Deleter.DeleteMany(context.Background(), root, []DeleteItem{{Key: "report.pdf"}, {Key: "orphan.txt"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Empty(t, f.store.Keys())
	assert.Empty(t, f.files.Keys())
}

func TestDeleteMany_UnownedRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "orphan.txt", nil)

	_, err := f.svc.Deleter.DeleteMany(context.Background(), alice, []DeleteItem{{Key: "orphan.txt"}})
	assert.True(t, IsKind(err, KindAuthorization))
	assert.True(t, f.store.Has("orphan.txt"))
}

func TestDeleteMany_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "a.txt", strptr("alice"))

	_, err := f.svc.Deleter.DeleteMany(ctx, alice, []DeleteItem{{Key: "a.txt", ThumbnailKey: "thumbnails/b.txt"}})
	assert.True(t, IsKind(err, KindValidation))

	_, err = f.svc.Deleter.DeleteMany(ctx, alice, nil)
	assert.True(t, IsKind(err, KindValidation))

	_, err = f.svc.Deleter.DeleteMany(ctx, alice, []DeleteItem{{Key: "../etc/passwd"}})
	assert.True(t, IsKind(err, KindValidation))

	_, err = f.svc.Deleter.DeleteMany(ctx, nobody, []DeleteItem{{Key: "a.txt"}})
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Unauthenticated)
	assert.True(t, f.store.Has("a.txt"))
}

func TestDeleteMany_DuplicatesCollapse(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a.txt", strptr("alice"))

	res, err := f.svc.Deleter.DeleteMany(context.Background(), alice, []DeleteItem{{Key: "a.txt"}, {Key: "a.txt"}})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, 1, res.Deleted)
}
