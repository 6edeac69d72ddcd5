package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// MaxDeleteBatch is the conventional object-store cap on keys per batch delete request.
const MaxDeleteBatch = 1000

// DefaultListKeys is used when ListOptions.MaxKeys is zero.
const DefaultListKeys = 1000

var (
	ErrNotFound = errors.New("object not found")
	ErrConflict = errors.New("object already exists")
)

// PutOptions describes upload options for object storage.
type PutOptions struct {
	ContentType string
	// IfNotExists rejects the write with ErrConflict when the key is already taken.
	IfNotExists bool
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ListOptions configures one page of a prefix listing.
type ListOptions struct {
	// Prefix is matched literally.
	Prefix string
	// Delimiter rolls keys sharing prefix+segment+Delimiter into one CommonPrefixes
	// entry. Empty lists recursively.
	Delimiter string
	// ContinuationToken resumes from a previous ListPage. Opaque to callers.
	ContinuationToken string
	// MaxKeys limits the page size. Zero uses DefaultListKeys.
	MaxKeys int
}

// ListPage is one page of keys under a prefix.
type ListPage struct {
	Objects []ObjectInfo
	// CommonPrefixes end in the delimiter and are only set for delimited listings.
	// Each one counts against MaxKeys like an object.
	CommonPrefixes []string
	IsTruncated    bool
	NextToken      string
}

// Store abstracts the bucket the dashboard manages.
type Store interface {
	PutObject(ctx context.Context, key string, reader io.Reader, size int64, opts PutOptions) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	StatObject(ctx context.Context, key string) (ObjectInfo, error)
	RemoveObject(ctx context.Context, key string) error
	// RemoveObjects deletes keys with the native multi-object API, MaxDeleteBatch keys per request.
	// The map holds per-key failures; the error is reserved for cancellation.
	RemoveObjects(ctx context.Context, keys []string) (map[string]error, error)
	ListPage(ctx context.Context, opts ListOptions) (*ListPage, error)
	PresignedGetObject(ctx context.Context, key string, expiry time.Duration, params map[string]string) (string, error)
}

func chunkKeys(keys []string, size int) [][]string {
	if size <= 0 {
		size = MaxDeleteBatch
	}
	chunks := make([][]string, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}

func normalizeMaxKeys(n int) int {
	if n <= 0 || n > DefaultListKeys {
		return DefaultListKeys
	}
	return n
}
