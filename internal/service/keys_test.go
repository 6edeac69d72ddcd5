package service

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"BucketDash/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePrefix(t *testing.T) {
	valid := []string{"", "photos/", "a/b/c/", "日本/"}
	for _, p := range valid {
		assert.NoError(t, ValidatePrefix(p), p)
	}
	invalid := []string{"photos", "/photos/", "../", "a/../b/", "a//", "./", "a\\b/", "thumbnails/", "thumbnails/a/", "a\x00/"}
	for _, p := range invalid {
		assert.Error(t, ValidatePrefix(p), p)
	}
}

func TestValidateFolderName(t *testing.T) {
	for _, name := range []string{"photos", "A_b-9"} {
		assert.NoError(t, ValidateFolderName(name), name)
	}
	for _, name := range []string{"", "a b", "a/b", "..", "é", "a.b"} {
		assert.Error(t, ValidateFolderName(name), name)
	}
}

func TestBuildObjectKey(t *testing.T) {
	cases := []struct {
		prefix, name, want string
	}{
		{"", "a.png", "a-abc123.png"},
		{"photos/", "my photo (1).JPG", "photos/my_photo__1_-abc123.JPG"},
		{"", "archive.tar.gz", "archive.tar-abc123.gz"},
		{"", "README", "README-abc123"},
		{"", ".env", "env-abc123"},
		{"", "...", "file-abc123"},
		{"", "../../etc/passwd", "passwd-abc123"},
		{"docs/", "résumé.pdf", "docs/résumé-abc123.pdf"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, BuildObjectKey(tc.prefix, tc.name, "abc123"), tc.name)
	}
}

func TestRandomSuffix(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z0-9]{6}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		s, err := RandomSuffix(6)
		require.NoError(t, err)
		assert.Regexp(t, pattern, s)
		seen[s] = struct{}{}
	}
	assert.Greater(t, len(seen), 45)
}

func TestLeafNameAndThumbnailKey(t *testing.T) {
	assert.Equal(t, "x.png", LeafName("a/b/x.png"))
	assert.Equal(t, "b", LeafName("a/b/"))
	assert.Equal(t, "thumbnails/a/x.png", ThumbnailKey("a/x.png"))
	assert.True(t, IsReservedKey("thumbnails/a/x.png"))
	assert.False(t, IsReservedKey("thumbnailsx/a"))
}

func TestGuessContentType(t *testing.T) {
	assert.Equal(t, "image/png", GuessContentType("photos/a.PNG"))
	assert.Equal(t, "application/pdf", GuessContentType("report.pdf"))
	assert.Equal(t, "application/octet-stream", GuessContentType("blob.zz9"))
	assert.Equal(t, "application/octet-stream", GuessContentType("README"))
}

func objs(keys ...string) []storage.ObjectInfo {
	out := make([]storage.ObjectInfo, len(keys))
	for i, k := range keys {
		out[i] = storage.ObjectInfo{Key: k}
	}
	return out
}

func TestDeriveChildren(t *testing.T) {
	files, dirs := deriveChildren("", objs(
		"b.txt",
		"a.txt",
		"photos/",
		"photos/x.png",
		"photos/y/z.png",
		"docs/readme.md",
		"thumbnails/photos/x.png",
	))
	assert.Equal(t, []string{"a.txt", "b.txt"}, keysOf(files))
	assert.Equal(t, []string{"docs", "photos"}, dirs)

	files, dirs = deriveChildren("photos/", objs("photos/", "photos/x.png", "photos/y/", "photos/y/z.png", "other/q"))
	assert.Equal(t, []string{"photos/x.png"}, keysOf(files))
	assert.Equal(t, []string{"y"}, dirs)
}

// Every first segment appears once as a directory, every direct key once as a
// file, and no marker is ever a file.
func TestDeriveChildren_SetProperties(t *testing.T) {
	var keys []string
	for i := 0; i < 30; i++ {
		keys = append(keys, fmt.Sprintf("p/f%02d.txt", i))
		keys = append(keys, fmt.Sprintf("p/d%d/", i%5))
		keys = append(keys, fmt.Sprintf("p/d%d/n%02d.txt", i%5, i))
		keys = append(keys, fmt.Sprintf("p/f%02d.txt", i))
	}
	files, dirs := deriveChildren("p/", objs(keys...))

	assert.Len(t, files, 30)
	assert.Equal(t, []string{"d0", "d1", "d2", "d3", "d4"}, dirs)
	seen := make(map[string]bool)
	for _, f := range files {
		assert.False(t, seen[f.Key], f.Key)
		seen[f.Key] = true
		assert.False(t, strings.HasSuffix(f.Key, "/"), f.Key)
	}
}

func keysOf(in []storage.ObjectInfo) []string {
	out := make([]string, len(in))
	for i, o := range in {
		out[i] = o.Key
	}
	return out
}

func TestAuthorizationPredicates(t *testing.T) {
	owner := strptr("alice")
	assert.True(t, CanDeleteFile(alice, owner, "user", "admin"))
	assert.False(t, CanDeleteFile(bob, owner, "user", "admin"))
	assert.True(t, CanDeleteFile(bob, owner, "admin", "admin"))
	assert.False(t, CanDeleteFile(alice, nil, "user", "admin"))
	assert.True(t, CanDeleteFile(root, nil, "admin", "admin"))
	assert.False(t, CanDeleteFile(nobody, owner, "admin", "admin"))

	assert.True(t, CanDeleteFolder(root, "admin", "admin"))
	assert.False(t, CanDeleteFolder(alice, "user", "admin"))
	assert.False(t, CanDeleteFolder(nobody, "admin", "admin"))
	assert.False(t, CanDeleteFolder(alice, "", ""))
}
