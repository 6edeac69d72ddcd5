package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"BucketDash/internal/repo"
	"BucketDash/internal/storage"
	"BucketDash/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload_SameNameTwiceKeepsBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.upload(t, alice, "docs/", "notes.txt", "text/plain", []byte("one"))
	second := f.upload(t, alice, "docs/", "notes.txt", "text/plain", []byte("two"))
	require.NotEqual(t, first.Record.Key, second.Record.Key)
	for _, res := range []*UploadResult{first, second} {
		assert.True(t, strings.HasPrefix(res.Record.Key, "docs/notes-"))
		assert.True(t, strings.HasSuffix(res.Record.Key, ".txt"))
		assert.Equal(t, IconFile, res.ThumbnailURL)
		assert.Equal(t, "alice", *res.Record.UserID)
	}

	assert.Equal(t, "one", f.read(t, first.Record.Key))
	assert.Equal(t, "two", f.read(t, second.Record.Key))

	listing, err := f.svc.Folders.ListImmediateChildren(ctx, "docs/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.Record.Key, second.Record.Key}, fileKeys(listing.Files))
}

func TestUpload_KeyCollisionIsConflict(t *testing.T) {
	f := newFixture(t)
	f.svc.Uploader.newSuffix = func(int) (string, error) { return "fixed1", nil }

	f.upload(t, alice, "", "a.txt", "text/plain", []byte("one"))
	_, err := f.svc.Uploader.Upload(context.Background(), alice, UploadInput{Data: []byte("two"), FileName: "a.txt", ContentType: "text/plain"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConflict))
	assert.Equal(t, "one", f.read(t, "a-fixed1.txt"))
	assert.Equal(t, []string{"a-fixed1.txt"}, f.files.Keys())
}

func TestUpload_ImageGetsPreviewAndBlur(t *testing.T) {
	f := newFixture(t)
	res := f.upload(t, alice, "photos/", "cat.png", "image/png", pngBytes(t, 40, 30))

	require.NotNil(t, res.Record.BlurDataURL)
	assert.True(t, strings.HasPrefix(*res.Record.BlurDataURL, "data:image/jpeg;base64,"))
	assert.Equal(t, ThumbnailKey(res.Record.Key), res.ThumbnailKey)
	assert.True(t, f.store.Has(res.ThumbnailKey))
	assert.True(t, strings.HasPrefix(res.ThumbnailURL, "memory://thumbnails/photos/"))

	listing, err := f.svc.Folders.ListImmediateChildren(context.Background(), "photos/")
	require.NoError(t, err)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, res.ThumbnailKey, listing.Files[0].ThumbnailKey)
}

func TestUpload_SniffsMissingContentType(t *testing.T) {
	f := newFixture(t)
	res := f.upload(t, alice, "", "blob", "", pngBytes(t, 8, 8))
	assert.Equal(t, "image/png", res.Record.ContentType)
}

func TestUpload_VideoUsesIcon(t *testing.T) {
	f := newFixture(t)
	res := f.upload(t, alice, "", "clip.mp4", "video/mp4", []byte("not really a video"))
	assert.Equal(t, IconVideo, res.ThumbnailURL)
	assert.Empty(t, res.ThumbnailKey)
	assert.Nil(t, res.Record.BlurDataURL)
}

func TestUpload_UndecodableImageFallsBackToIcon(t *testing.T) {
	f := newFixture(t)
	res := f.upload(t, alice, "", "broken.png", "image/png", []byte("garbage"))
	assert.Equal(t, IconImage, res.ThumbnailURL)
	assert.Nil(t, res.Record.BlurDataURL)
	assert.False(t, f.store.Has(ThumbnailKey(res.Record.Key)))
}

func TestUpload_ThumbnailWriteFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.store.SetHooks(storage.MemoryHooks{Put: func(key string) error {
		if strings.HasPrefix(key, ThumbnailRoot+"/") {
			return errors.New("slow down")
		}
		return nil
	}})

	res := f.upload(t, alice, "", "cat.png", "image/png", pngBytes(t, 16, 16))
	assert.Nil(t, res.Record.BlurDataURL)
	assert.Empty(t, res.ThumbnailKey)
	assert.Equal(t, IconImage, res.ThumbnailURL)
	assert.Equal(t, []string{res.Record.Key}, f.store.Keys())
	assert.Equal(t, []string{res.Record.Key}, f.files.Keys())
}

func TestUpload_MetadataFailureRemovesObjects(t *testing.T) {
	f := newFixture(t)
	f.files.SetHooks(repo.MemoryHooks{Insert: func(*model.FileRecord) error { return errors.New("db down") }})

	_, err := f.svc.Uploader.Upload(context.Background(), alice, UploadInput{
		Data:        pngBytes(t, 16, 16),
		FileName:    "cat.png",
		ContentType: "image/png",
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBackend))
	assert.Empty(t, f.store.Keys())
	assert.Empty(t, f.files.Keys())
}

func TestUpload_FailedCompensationStillFails(t *testing.T) {
	f := newFixture(t)
	f.files.SetHooks(repo.MemoryHooks{Insert: func(*model.FileRecord) error { return errors.New("db down") }})
	f.store.SetHooks(storage.MemoryHooks{Remove: func(string) error { return errors.New("unreachable") }})

	_, err := f.svc.Uploader.Upload(context.Background(), alice, UploadInput{Data: []byte("x"), FileName: "a.txt", ContentType: "text/plain"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBackend))
	// The object is left dangling and invisible to metadata queries.
	assert.Len(t, f.store.Keys(), 1)
	assert.Empty(t, f.files.Keys())
}

func TestUpload_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Uploader.Upload(ctx, alice, UploadInput{Data: make([]byte, 2<<20), FileName: "big.bin"})
	assert.True(t, IsKind(err, KindValidation))

	_, err = f.svc.Uploader.Upload(ctx, alice, UploadInput{Data: []byte("x"), FileName: "a.txt", Prefix: "../"})
	assert.True(t, IsKind(err, KindValidation))

	_, err = f.svc.Uploader.Upload(ctx, alice, UploadInput{Data: []byte("x"), FileName: "  "})
	assert.True(t, IsKind(err, KindValidation))

	_, err = f.svc.Uploader.Upload(ctx, nobody, UploadInput{Data: []byte("x"), FileName: "a.txt"})
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Unauthenticated)

	assert.Empty(t, f.store.Keys())
}
