package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"BucketDash/model"
)

// MemoryHooks inject failures into a MemoryFileRepository.
type MemoryHooks struct {
	Insert       func(rec *model.FileRecord) error
	DeleteByKeys func(keys []string) error
	DeleteByKey  func(key string) error
}

// MemoryFileRepository keeps rows in a map. It backs the memory storage
// profile and the service tests.
type MemoryFileRepository struct {
	mu       sync.RWMutex
	rows     map[string]model.FileRecord
	profiles map[string]model.Profile
	hooks    MemoryHooks
}

func NewMemoryFileRepository() *MemoryFileRepository {
	return &MemoryFileRepository{
		rows:     make(map[string]model.FileRecord),
		profiles: make(map[string]model.Profile),
	}
}

func (r *MemoryFileRepository) SetHooks(h MemoryHooks) {
	r.mu.Lock()
	r.hooks = h
	r.mu.Unlock()
}

// SetRole upserts a profile.
func (r *MemoryFileRepository) SetRole(userID, role string) {
	r.mu.Lock()
	r.profiles[userID] = model.Profile{UserID: userID, Role: role}
	r.mu.Unlock()
}

// Keys returns all row keys in order.
func (r *MemoryFileRepository) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.rows))
	for k := range r.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *MemoryFileRepository) Insert(ctx context.Context, rec *model.FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hooks.Insert != nil {
		if err := r.hooks.Insert(rec); err != nil {
			return err
		}
	}
	if _, ok := r.rows[rec.Key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, rec.Key)
	}
	r.rows[rec.Key] = *rec
	return nil
}

func (r *MemoryFileRepository) GetByKey(ctx context.Context, key string) (*model.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.rows[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (r *MemoryFileRepository) GetByKeys(ctx context.Context, keys []string) (map[string]*model.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*model.FileRecord, len(keys))
	for _, key := range keys {
		if rec, ok := r.rows[key]; ok {
			rec := rec
			out[key] = &rec
		}
	}
	return out, nil
}

func (r *MemoryFileRepository) DeleteByKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hooks.DeleteByKey != nil {
		if err := r.hooks.DeleteByKey(key); err != nil {
			return err
		}
	}
	delete(r.rows, key)
	return nil
}

func (r *MemoryFileRepository) DeleteByKeys(ctx context.Context, keys []string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hooks.DeleteByKeys != nil {
		if err := r.hooks.DeleteByKeys(keys); err != nil {
			return 0, err
		}
	}
	var n int64
	for _, key := range keys {
		if _, ok := r.rows[key]; ok {
			delete(r.rows, key)
			n++
		}
	}
	return n, nil
}

func (r *MemoryFileRepository) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if prefix == "" {
		return 0, fmt.Errorf("refusing to delete by empty prefix")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key := range r.rows {
		if strings.HasPrefix(key, prefix) {
			delete(r.rows, key)
			n++
		}
	}
	return n, nil
}

func (r *MemoryFileRepository) QueryByPrefix(ctx context.Context, prefix string, limit, offset int) ([]model.FileRecord, int64, error) {
	return r.query(ctx, func(rec model.FileRecord) bool {
		return strings.HasPrefix(rec.Key, prefix)
	}, limit, offset)
}

func (r *MemoryFileRepository) QueryBySearch(ctx context.Context, q SearchQuery) ([]model.FileRecord, int64, error) {
	term := strings.ToLower(strings.TrimSpace(q.Term))
	return r.query(ctx, func(rec model.FileRecord) bool {
		if q.Scope != ScopeGlobal && !strings.HasPrefix(rec.Key, q.Prefix) {
			return false
		}
		return term == "" || strings.Contains(strings.ToLower(rec.Name), term)
	}, q.Limit, q.Offset)
}

func (r *MemoryFileRepository) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryFileRepository) query(ctx context.Context, match func(model.FileRecord) bool, limit, offset int) ([]model.FileRecord, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	matched := make([]model.FileRecord, 0)
	for _, rec := range r.rows {
		if match(rec) {
			matched = append(matched, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Key < matched[j].Key })
	total := int64(len(matched))
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []model.FileRecord{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}
