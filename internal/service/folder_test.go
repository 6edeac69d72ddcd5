package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"BucketDash/internal/storage"
	"BucketDash/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioA_CreateFolderThenUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Folders.CreateFolder(ctx, alice, "", "photos")
	require.NoError(t, err)
	assert.Equal(t, "photos/", rec.Key)
	assert.Equal(t, model.FolderContentType, rec.ContentType)
	assert.True(t, f.store.Has("photos/"))

	listing, err := f.svc.Folders.ListImmediateChildren(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"photos"}, listing.Directories)
	assert.Empty(t, listing.Files)

	f.upload(t, alice, "photos/", "a.png", "image/png", make([]byte, 2048))

	listing, err = f.svc.Folders.ListImmediateChildren(ctx, "photos/")
	require.NoError(t, err)
	require.Len(t, listing.Files, 1)
	assert.Empty(t, listing.Directories)
	file := listing.Files[0]
	assert.Regexp(t, regexp.MustCompile(`^a-[a-z0-9]{6}\.png$`), file.Name)
	assert.Equal(t, int64(2048), file.Size)
	assert.Equal(t, "alice", *file.UserID)
	assert.False(t, file.Degraded)
}

func TestCreateFolder_SecondCreateConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Folders.CreateFolder(ctx, alice, "docs/", "reports")
	require.NoError(t, err)
	_, err = f.svc.Folders.CreateFolder(ctx, bob, "docs/", "reports")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConflict))
	assert.Equal(t, []string{"docs/reports/"}, f.files.Keys())
}

func TestCreateFolder_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tc := range []struct{ prefix, name string }{
		{"", "a/b"},
		{"", "with space"},
		{"", ThumbnailRoot},
		{"../", "x"},
		{"noslash", "x"},
	} {
		_, err := f.svc.Folders.CreateFolder(ctx, alice, tc.prefix, tc.name)
		assert.True(t, IsKind(err, KindValidation), "%q %q: %v", tc.prefix, tc.name, err)
	}

	_, err := f.svc.Folders.CreateFolder(ctx, nobody, "", "x")
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Unauthenticated)
	assert.Empty(t, f.files.Keys())
	assert.Empty(t, f.store.Keys())
}

func TestCreateFolder_MarkerFailureRemovesRow(t *testing.T) {
	f := newFixture(t)
	f.store.SetHooks(storage.MemoryHooks{Put: func(key string) error {
		return errors.New("store offline")
	}})

	_, err := f.svc.Folders.CreateFolder(context.Background(), alice, "", "broken")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBackend))
	assert.Empty(t, f.files.Keys())
}

func TestCreateFolder_AdoptsOrphanMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.PutObject(ctx, "legacy/", emptyReader(), 0, storage.PutOptions{}))

	_, err := f.svc.Folders.CreateFolder(ctx, alice, "", "legacy")
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy/"}, f.files.Keys())
}

func TestListImmediateChildren_Reconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "kept.txt", strptr("alice"))
	require.NoError(t, f.store.PutObject(ctx, "loose.bin", emptyReader(), 0, storage.PutOptions{}))
	require.NoError(t, f.files.Insert(ctx, &model.FileRecord{Key: "ghost.txt", Name: "ghost.txt", ContentType: "text/plain"}))

	listing, err := f.svc.Folders.ListImmediateChildren(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"kept.txt", "loose.bin"}, fileKeys(listing.Files))

	loose := listing.Files[1]
	assert.True(t, loose.Degraded)
	assert.Equal(t, "loose.bin", loose.Name)
	assert.Nil(t, loose.UserID)
	assert.Nil(t, loose.BlurDataURL)
	assert.False(t, listing.Files[0].Degraded)
}

func TestDeleteFolderRecursive_Exhaustive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "proj/", strptr("alice"))
	for i := 0; i < 5; i++ {
		f.seed(t, fmt.Sprintf("proj/file%d.txt", i), strptr("alice"))
	}
	f.seed(t, "proj/sub/", strptr("alice"))
	f.seed(t, "proj/sub/deep.txt", strptr("alice"))
	f.seed(t, "project2/keep.txt", strptr("alice"))
	require.NoError(t, f.store.PutObject(ctx, ThumbnailKey("proj/file1.txt"), emptyReader(), 0, storage.PutOptions{}))
	require.NoError(t, f.store.PutObject(ctx, ThumbnailKey("proj/orphan.png"), emptyReader(), 0, storage.PutOptions{}))

	report, err := f.svc.Folders.DeleteFolderRecursive(ctx, root, "proj/")
	require.NoError(t, err)
	assert.False(t, report.Partial())
	// Eight objects under the prefix plus the orphaned preview.
	assert.Equal(t, 9, report.ObjectsDeleted)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 8, report.RowsDeleted)

	listing, err := f.svc.Folders.ListImmediateChildren(ctx, "proj/")
	require.NoError(t, err)
	assert.Empty(t, listing.Files)
	assert.Empty(t, listing.Directories)

	assert.Equal(t, []string{"project2/keep.txt"}, f.store.Keys())
	assert.Equal(t, []string{"project2/keep.txt"}, f.files.Keys())
}

func TestDeleteFolderRecursive_PartialFailureContinues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		f.seed(t, fmt.Sprintf("bulk/f%d.txt", i), strptr("alice"))
	}
	f.store.SetHooks(storage.MemoryHooks{Remove: func(key string) error {
		if key == "bulk/f2.txt" {
			return errors.New("access denied")
		}
		return nil
	}})

	report, err := f.svc.Folders.DeleteFolderRecursive(ctx, root, "bulk/")
	require.NoError(t, err)
	assert.True(t, report.Partial())
	assert.Equal(t, 1, report.ObjectsFailed)
	assert.Equal(t, 3, report.ObjectsDeleted)
	assert.Equal(t, 1, report.BatchesFailed)
	assert.NotEmpty(t, report.Errors)

	listing, err := f.svc.Folders.ListImmediateChildren(ctx, "bulk/")
	require.NoError(t, err)
	assert.Equal(t, []string{"bulk/f2.txt"}, fileKeys(listing.Files))
	assert.True(t, listing.Files[0].Degraded)
}

func TestDeleteFolderRecursive_ManyPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < storage.MaxDeleteBatch+250; i++ {
		f.seed(t, fmt.Sprintf("big/%05d.txt", i), nil)
	}

	report, err := f.svc.Folders.DeleteFolderRecursive(ctx, root, "big/")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, storage.MaxDeleteBatch+250, report.ObjectsDeleted)
	assert.Empty(t, f.store.Keys())
	assert.Empty(t, f.files.Keys())
}

func TestDeleteFolderRecursive_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "keep/a.txt", strptr("alice"))

	_, err := f.svc.Folders.DeleteFolderRecursive(ctx, alice, "keep/")
	assert.True(t, IsKind(err, KindAuthorization))

	_, err = f.svc.Folders.DeleteFolderRecursive(ctx, nobody, "keep/")
	assert.True(t, IsKind(err, KindAuthorization))

	_, err = f.svc.Folders.DeleteFolderRecursive(ctx, root, "")
	assert.True(t, IsKind(err, KindValidation))

	_, err = f.svc.Folders.DeleteFolderRecursive(ctx, root, "../")
	assert.True(t, IsKind(err, KindValidation))

	release, err := f.svc.Folders.locker.Acquire(ctx, "keep/")
	require.NoError(t, err)
	_, err = f.svc.Folders.DeleteFolderRecursive(ctx, root, "keep/")
	assert.True(t, IsKind(err, KindConflict))
	release()

	assert.Equal(t, []string{"keep/a.txt"}, f.store.Keys())
	assert.Equal(t, []string{"keep/a.txt"}, f.files.Keys())
}

func TestDeleteFolderRecursive_ListingFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "x/a.txt", nil)
	f.store.SetHooks(storage.MemoryHooks{List: func(prefix string) error {
		return errors.New("timeout")
	}})

	report, err := f.svc.Folders.DeleteFolderRecursive(context.Background(), root, "x/")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBackend))
	require.NotNil(t, report)
	assert.Equal(t, 0, report.Pages)
}
