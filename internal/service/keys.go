package service

import (
	"crypto/rand"
	"math/big"
	"mime"
	"path"
	"regexp"
	"strings"
	"unicode"
)

const (
	// ThumbnailRoot is the reserved namespace holding derived previews.
	ThumbnailRoot = "thumbnails"

	suffixLength   = 6
	suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var folderNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ThumbnailKey returns the preview key for an object key.
func ThumbnailKey(key string) string {
	return ThumbnailRoot + "/" + key
}

// IsReservedKey reports whether key lives in the thumbnail namespace.
func IsReservedKey(key string) bool {
	return key == ThumbnailRoot || strings.HasPrefix(key, ThumbnailRoot+"/")
}

// ValidatePrefix accepts "" (root) or a relative path ending in "/" with no
// empty, "." or ".." segments and no control characters.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	if !strings.HasSuffix(prefix, "/") {
		return errInvalidPath("prefix must end with /")
	}
	if err := validatePath(strings.TrimSuffix(prefix, "/")); err != nil {
		return err
	}
	if IsReservedKey(prefix) {
		return errInvalidPath("prefix is reserved")
	}
	return nil
}

// ValidateObjectKey accepts a file key: a non-reserved relative path not ending in "/".
func ValidateObjectKey(key string) error {
	if key == "" {
		return errInvalidPath("key is required")
	}
	if strings.HasSuffix(key, "/") {
		return errInvalidPath("key names a folder")
	}
	if err := validatePath(key); err != nil {
		return err
	}
	if IsReservedKey(key) {
		return errInvalidPath("key is reserved")
	}
	return nil
}

type pathError string

func (e pathError) Error() string { return string(e) }

func errInvalidPath(msg string) error { return pathError(msg) }

func validatePath(p string) error {
	if strings.HasPrefix(p, "/") {
		return errInvalidPath("path must be relative")
	}
	for _, r := range p {
		if r == '\\' || unicode.IsControl(r) {
			return errInvalidPath("path contains invalid characters")
		}
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "":
			return errInvalidPath("path contains an empty segment")
		case ".", "..":
			return errInvalidPath("path traversal is not allowed")
		}
	}
	return nil
}

// ValidateFolderName allows letters, digits, hyphen and underscore only.
func ValidateFolderName(name string) error {
	if !folderNamePattern.MatchString(name) {
		return errInvalidPath("folder name may only contain letters, digits, - and _")
	}
	return nil
}

// SanitizeFileName keeps Unicode letters and digits plus _ . - and replaces
// everything else with _.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// SplitFileName splits at the last dot. Leading-dot names have no extension.
func SplitFileName(name string) (stem, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 || idx == len(name)-1 {
		return strings.TrimRight(name, "."), ""
	}
	return name[:idx], name[idx+1:]
}

// RandomSuffix returns n lowercase alphanumerics from crypto/rand.
func RandomSuffix(n int) (string, error) {
	max := big.NewInt(int64(len(suffixAlphabet)))
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = suffixAlphabet[v.Int64()]
	}
	return string(out), nil
}

// BuildObjectKey derives "{prefix}{stem}-{suffix}.{ext}" from an uploaded file name.
func BuildObjectKey(prefix, fileName, suffix string) string {
	stem, ext := SplitFileName(SanitizeFileName(fileName))
	stem = strings.Trim(stem, ".")
	if stem == "" {
		stem = "file"
	}
	key := prefix + stem + "-" + suffix
	if ext != "" {
		key += "." + ext
	}
	return key
}

// LeafName returns the last path segment of key, ignoring a trailing "/".
func LeafName(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// GuessContentType maps an extension to a content type for objects that have no metadata row.
func GuessContentType(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
