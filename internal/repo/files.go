package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"BucketDash/model"

	"gorm.io/gorm"
)

// MaxKeysPerQuery bounds IN (...) lists so a batch never exceeds one object-store delete page.
const MaxKeysPerQuery = 1000

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

// SearchScope selects where a search term is applied.
type SearchScope string

const (
	ScopeCurrent SearchScope = "current"
	ScopeGlobal  SearchScope = "global"
)

// SearchQuery is a filtered metadata query with offset pagination.
type SearchQuery struct {
	Term   string
	Scope  SearchScope
	Prefix string
	Limit  int
	Offset int
}

// FileRepository is the metadata side of the bucket: one row per object key plus profiles.
type FileRepository interface {
	Insert(ctx context.Context, rec *model.FileRecord) error
	GetByKey(ctx context.Context, key string) (*model.FileRecord, error)
	GetByKeys(ctx context.Context, keys []string) (map[string]*model.FileRecord, error)
	DeleteByKey(ctx context.Context, key string) error
	DeleteByKeys(ctx context.Context, keys []string) (int64, error)
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	QueryByPrefix(ctx context.Context, prefix string, limit, offset int) ([]model.FileRecord, int64, error)
	QueryBySearch(ctx context.Context, q SearchQuery) ([]model.FileRecord, int64, error)
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
}

// GormFileRepository implements FileRepository on MySQL through gorm.
type GormFileRepository struct {
	db *gorm.DB
}

func NewGormFileRepository(db *gorm.DB) *GormFileRepository {
	return &GormFileRepository{db: db}
}

// EscapeLike escapes LIKE wildcards so user input matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (r *GormFileRepository) Insert(ctx context.Context, rec *model.FileRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, rec.Key)
		}
		return err
	}
	return nil
}

func (r *GormFileRepository) GetByKey(ctx context.Context, key string) (*model.FileRecord, error) {
	var rec model.FileRecord
	err := r.db.WithContext(ctx).Where("`key` = ?", key).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// GetByKeys returns the rows that exist for keys; missing keys are absent from the map.
func (r *GormFileRepository) GetByKeys(ctx context.Context, keys []string) (map[string]*model.FileRecord, error) {
	out := make(map[string]*model.FileRecord, len(keys))
	for _, batch := range chunk(keys, MaxKeysPerQuery) {
		var rows []model.FileRecord
		if err := r.db.WithContext(ctx).Where("`key` IN ?", batch).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].Key] = &rows[i]
		}
	}
	return out, nil
}

func (r *GormFileRepository) DeleteByKey(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("`key` = ?", key).Delete(&model.FileRecord{}).Error
}

// DeleteByKeys issues one DELETE ... IN per MaxKeysPerQuery keys.
func (r *GormFileRepository) DeleteByKeys(ctx context.Context, keys []string) (int64, error) {
	var total int64
	for _, batch := range chunk(keys, MaxKeysPerQuery) {
		res := r.db.WithContext(ctx).Where("`key` IN ?", batch).Delete(&model.FileRecord{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

// DeleteByPrefix removes every row under a non-empty prefix.
func (r *GormFileRepository) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, errors.New("refusing to delete by empty prefix")
	}
	res := r.db.WithContext(ctx).
		Where("`key` LIKE ?", EscapeLike(prefix)+"%").
		Delete(&model.FileRecord{})
	return res.RowsAffected, res.Error
}

func (r *GormFileRepository) QueryByPrefix(ctx context.Context, prefix string, limit, offset int) ([]model.FileRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.FileRecord{})
	if prefix != "" {
		query = query.Where("`key` LIKE ?", EscapeLike(prefix)+"%")
	}
	return paged(query, limit, offset)
}

func (r *GormFileRepository) QueryBySearch(ctx context.Context, q SearchQuery) ([]model.FileRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.FileRecord{})
	if term := strings.TrimSpace(q.Term); term != "" {
		query = query.Where("name LIKE ?", "%"+EscapeLike(term)+"%")
	}
	if q.Scope != ScopeGlobal && q.Prefix != "" {
		query = query.Where("`key` LIKE ?", EscapeLike(q.Prefix)+"%")
	}
	return paged(query, q.Limit, q.Offset)
}

func (r *GormFileRepository) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func paged(query *gorm.DB, limit, offset int) ([]model.FileRecord, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var rows []model.FileRecord
	if int64(offset) >= total {
		return rows, total, nil
	}
	err := query.Order("`key` ASC").Limit(limit).Offset(offset).Find(&rows).Error
	return rows, total, err
}

func chunk(keys []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		out = append(out, keys[start:end])
	}
	return out
}
