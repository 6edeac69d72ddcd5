package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds connection settings for a MinIO endpoint.
type MinioConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	UseSSL   bool
	Bucket   string
}

// MinioStore implements Store with a MinIO client.
type MinioStore struct {
	client *minio.Client
	core   minio.Core
	bucket string
}

// NewMinioStore builds a Store from a MinIO client.
func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{
		client: client,
		core:   minio.Core{Client: client},
		bucket: bucket,
	}
}

// OpenMinio connects to MinIO and creates the bucket when it is missing.
func OpenMinio(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(fmt.Sprintf("%s:%s", cfg.Host, cfg.Port), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Username, cfg.Password, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return NewMinioStore(client, cfg.Bucket), nil
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.StatusCode == http.StatusNotFound
}

// PutObject uploads an object to MinIO.
// MinIO has no conditional put here, so IfNotExists is a stat-then-put; a concurrent writer can still win.
func (s *MinioStore) PutObject(ctx context.Context, key string, reader io.Reader, size int64, opts PutOptions) error {
	if opts.IfNotExists {
		_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if err == nil {
			return ErrConflict
		}
		if !isMinioNotFound(err) {
			return err
		}
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: opts.ContentType,
	})
	return err
}

// GetObject fetches an object and its info from MinIO.
func (s *MinioStore) GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, err
	}
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isMinioNotFound(err) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, err
	}
	return obj, minioInfo(stat), nil
}

// StatObject returns object info without the body.
func (s *MinioStore) StatObject(ctx context.Context, key string) (ObjectInfo, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return ObjectInfo{}, ErrNotFound
		}
		return ObjectInfo{}, err
	}
	return minioInfo(stat), nil
}

// RemoveObject deletes an object from MinIO.
func (s *MinioStore) RemoveObject(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// RemoveObjects deletes keys with MinIO's multi-object delete.
func (s *MinioStore) RemoveObjects(ctx context.Context, keys []string) (map[string]error, error) {
	failures := make(map[string]error)
	for _, batch := range chunkKeys(keys, MaxDeleteBatch) {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		objectsCh := make(chan minio.ObjectInfo, len(batch))
		for _, key := range batch {
			objectsCh <- minio.ObjectInfo{Key: key}
		}
		close(objectsCh)

		for removeErr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
			if removeErr.Err == nil {
				continue
			}
			failures[removeErr.ObjectName] = removeErr.Err
		}
	}
	return failures, nil
}

// ListPage lists one page of keys using ListObjectsV2 continuation tokens.
func (s *MinioStore) ListPage(ctx context.Context, opts ListOptions) (*ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := s.core.ListObjectsV2(
		s.bucket,
		opts.Prefix,
		"",
		opts.ContinuationToken,
		opts.Delimiter,
		normalizeMaxKeys(opts.MaxKeys),
	)
	if err != nil {
		return nil, err
	}
	page := &ListPage{
		Objects:     make([]ObjectInfo, 0, len(result.Contents)),
		IsTruncated: result.IsTruncated,
	}
	if result.IsTruncated {
		page.NextToken = result.NextContinuationToken
	}
	for _, obj := range result.Contents {
		page.Objects = append(page.Objects, minioInfo(obj))
	}
	for _, cp := range result.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, cp.Prefix)
	}
	return page, nil
}

// PresignedGetObject returns a presigned URL, optionally overriding response headers.
func (s *MinioStore) PresignedGetObject(ctx context.Context, key string, expiry time.Duration, params map[string]string) (string, error) {
	values := url.Values{}
	for k, v := range params {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, values)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func minioInfo(obj minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          obj.Key,
		Size:         obj.Size,
		ContentType:  obj.ContentType,
		LastModified: obj.LastModified,
	}
}
