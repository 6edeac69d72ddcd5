package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryHooks inject failures into a MemoryStore. Any hook returning non-nil
// aborts the operation for that key with the returned error.
type MemoryHooks struct {
	Put    func(key string) error
	Remove func(key string) error
	List   func(prefix string) error
}

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryStore is an in-process Store used by the memory backend and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	hooks   MemoryHooks
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

// SetHooks replaces the failure hooks.
func (s *MemoryStore) SetHooks(h MemoryHooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

// Keys returns all stored keys in lexicographic order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedKeysLocked("")
}

// Has reports whether key is stored.
func (s *MemoryStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

func (s *MemoryStore) PutObject(ctx context.Context, key string, reader io.Reader, size int64, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("put %s: size mismatch: declared %d, read %d", key, size, len(data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hooks.Put != nil {
		if err := s.hooks.Put(key); err != nil {
			return err
		}
	}
	if _, exists := s.objects[key]; exists && opts.IfNotExists {
		return ErrConflict
	}
	s.objects[key] = memoryObject{data: data, contentType: opts.ContentType, modified: s.now()}
	return nil
}

func (s *MemoryStore) GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, ObjectInfo{}, err
	}
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ObjectInfo{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.info(key), nil
}

func (s *MemoryStore) StatObject(ctx context.Context, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return ObjectInfo{}, ErrNotFound
	}
	return obj.info(key), nil
}

func (s *MemoryStore) RemoveObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hooks.Remove != nil {
		if err := s.hooks.Remove(key); err != nil {
			return err
		}
	}
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) RemoveObjects(ctx context.Context, keys []string) (map[string]error, error) {
	failures := make(map[string]error)
	for _, batch := range chunkKeys(keys, MaxDeleteBatch) {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		s.mu.Lock()
		for _, key := range batch {
			if s.hooks.Remove != nil {
				if err := s.hooks.Remove(key); err != nil {
					failures[key] = err
					continue
				}
			}
			delete(s.objects, key)
		}
		s.mu.Unlock()
	}
	return failures, nil
}

// ListPage pages through keys in lexicographic order. The token encodes the
// last key consumed, including keys folded into a common prefix.
func (s *MemoryStore) ListPage(ctx context.Context, opts ListOptions) (*ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	after := ""
	if opts.ContinuationToken != "" {
		raw, err := base64.RawURLEncoding.DecodeString(opts.ContinuationToken)
		if err != nil {
			return nil, fmt.Errorf("invalid continuation token: %w", err)
		}
		after = string(raw)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hooks.List != nil {
		if err := s.hooks.List(opts.Prefix); err != nil {
			return nil, err
		}
	}

	keys := s.sortedKeysLocked(opts.Prefix)
	start := 0
	if after != "" {
		start = sort.SearchStrings(keys, after)
		if start < len(keys) && keys[start] == after {
			start++
		}
	}
	limit := normalizeMaxKeys(opts.MaxKeys)
	page := &ListPage{Objects: make([]ObjectInfo, 0)}
	i, emitted, last := start, 0, ""
	for ; i < len(keys) && emitted < limit; i++ {
		key := keys[i]
		if opts.Delimiter != "" {
			rest := key[len(opts.Prefix):]
			if idx := strings.Index(rest, opts.Delimiter); idx >= 0 {
				// keys sharing a common prefix are contiguous in sorted order
				cp := opts.Prefix + rest[:idx+len(opts.Delimiter)]
				for i+1 < len(keys) && strings.HasPrefix(keys[i+1], cp) {
					i++
				}
				page.CommonPrefixes = append(page.CommonPrefixes, cp)
				last = keys[i]
				emitted++
				continue
			}
		}
		page.Objects = append(page.Objects, s.objects[key].info(key))
		last = key
		emitted++
	}
	if i < len(keys) {
		page.IsTruncated = true
		page.NextToken = base64.RawURLEncoding.EncodeToString([]byte(last))
	}
	return page, nil
}

func (s *MemoryStore) PresignedGetObject(ctx context.Context, key string, expiry time.Duration, params map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return fmt.Sprintf("memory://%s?expires=%d", key, int64(expiry.Seconds())), nil
}

func (s *MemoryStore) sortedKeysLocked(prefix string) []string {
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (o memoryObject) info(key string) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		Size:         int64(len(o.data)),
		ContentType:  o.contentType,
		LastModified: o.modified,
	}
}
