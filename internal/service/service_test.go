package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"BucketDash/internal/cache"
	"BucketDash/internal/repo"
	"BucketDash/internal/storage"
	"BucketDash/model"

	"github.com/stretchr/testify/require"
)

var (
	alice  = Actor{ID: "alice"}
	bob    = Actor{ID: "bob"}
	root   = Actor{ID: "root"}
	nobody = Actor{}
)

type fixture struct {
	svc   *Services
	store *storage.MemoryStore
	files *repo.MemoryFileRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	files := repo.NewMemoryFileRepository()
	files.SetRole(root.ID, "admin")
	files.SetRole(bob.ID, "user")
	svc := New(Deps{
		Store:   store,
		Files:   files,
		Listing: cache.NewListingCache(cache.NewMemoryCache(), time.Minute, time.Minute),
		Locker:  NewLocalPrefixLocker(),
		Options: Options{
			AdminRole:      "admin",
			BackendTimeout: 5 * time.Second,
			MaxUploadBytes: 1 << 20,
			ListingMaxPage: 1000,
		},
	})
	return &fixture{svc: svc, store: store, files: files}
}

func (f *fixture) upload(t *testing.T, actor Actor, prefix, name, contentType string, data []byte) *UploadResult {
	t.Helper()
	res, err := f.svc.Uploader.Upload(context.Background(), actor, UploadInput{
		Data:        data,
		FileName:    name,
		ContentType: contentType,
		Prefix:      prefix,
	})
	require.NoError(t, err)
	return res
}

// seed writes an object and its row with a fixed key.
func (f *fixture) seed(t *testing.T, key string, owner *string) {
	t.Helper()
	ctx := context.Background()
	contentType := "text/plain"
	if key[len(key)-1] == '/' {
		contentType = model.FolderContentType
	}
	require.NoError(t, f.store.PutObject(ctx, key, bytes.NewReader([]byte("x")), 1, storage.PutOptions{ContentType: contentType}))
	require.NoError(t, f.files.Insert(ctx, &model.FileRecord{
		Key:         key,
		Name:        LeafName(key),
		Size:        1,
		ContentType: contentType,
		UploadedAt:  time.Now(),
		UserID:      owner,
	}))
}

func (f *fixture) read(t *testing.T, key string) string {
	t.Helper()
	rc, _, err := f.store.GetObject(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(body)
}

func strptr(s string) *string { return &s }

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 3), G: uint8(y * 3), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func fileKeys(entries []FileEntry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

func emptyReader() io.Reader { return bytes.NewReader(nil) }
