package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config holds settings for an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	PathStyle bool
	Bucket    string
}

// S3Store implements Store on the AWS SDK.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3Store wraps an existing S3 client.
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
	}
}

// OpenS3 loads AWS config with static credentials and returns a Store bound to cfg.Bucket.
func OpenS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewS3Store(client, cfg.Bucket), nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound"
	}
	return false
}

func isS3PreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "PreconditionFailed" || code == "ConditionalRequestConflict"
	}
	return false
}

// PutObject uploads an object. IfNotExists maps to a conditional If-None-Match: * write.
func (s *S3Store) PutObject(ctx context.Context, key string, reader io.Reader, size int64, opts PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentLength: aws.Int64(size),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.IfNotExists {
		input.IfNoneMatch = aws.String("*")
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		if isS3PreconditionFailed(err) {
			return ErrConflict
		}
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// GetObject streams an object body.
func (s *S3Store) GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("get %s: %w", key, err)
	}
	return out.Body, ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// StatObject issues a HEAD request.
func (s *S3Store) StatObject(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return ObjectInfo{}, ErrNotFound
		}
		return ObjectInfo{}, fmt.Errorf("head %s: %w", key, err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// RemoveObject deletes a single key. Deleting a missing key is not an error on S3.
func (s *S3Store) RemoveObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// RemoveObjects deletes keys with DeleteObjects, chunked at MaxDeleteBatch.
// A failed request marks every key of that chunk; later chunks still run.
func (s *S3Store) RemoveObjects(ctx context.Context, keys []string) (map[string]error, error) {
	failures := make(map[string]error)
	chunks := chunkKeys(keys, MaxDeleteBatch)
	for i, batch := range chunks {
		if err := ctx.Err(); err != nil {
			for _, rest := range chunks[i:] {
				for _, key := range rest {
					failures[key] = err
				}
			}
			return failures, err
		}

		objects := make([]types.ObjectIdentifier, len(batch))
		for j, key := range batch {
			objects[j] = types.ObjectIdentifier{Key: aws.String(key)}
		}
		result, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			for _, key := range batch {
				failures[key] = err
			}
			continue
		}
		for _, deleteErr := range result.Errors {
			if deleteErr.Key == nil {
				continue
			}
			msg := "unknown error"
			if deleteErr.Code != nil && deleteErr.Message != nil {
				msg = fmt.Sprintf("%s: %s", *deleteErr.Code, *deleteErr.Message)
			}
			failures[*deleteErr.Key] = errors.New(msg)
		}
	}
	return failures, nil
}

// ListPage lists one ListObjectsV2 page.
func (s *S3Store) ListPage(ctx context.Context, opts ListOptions) (*ListPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(int32(normalizeMaxKeys(opts.MaxKeys))),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}
	if opts.Delimiter != "" {
		input.Delimiter = aws.String(opts.Delimiter)
	}
	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", opts.Prefix, err)
	}

	page := &ListPage{
		Objects:     make([]ObjectInfo, 0, len(out.Contents)),
		IsTruncated: aws.ToBool(out.IsTruncated),
	}
	if page.IsTruncated {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          *obj.Key,
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	for _, cp := range out.CommonPrefixes {
		if cp.Prefix != nil {
			page.CommonPrefixes = append(page.CommonPrefixes, *cp.Prefix)
		}
	}
	return page, nil
}

// PresignedGetObject signs a GET URL. Supported params are response-content-type
// and response-content-disposition.
func (s *S3Store) PresignedGetObject(ctx context.Context, key string, expiry time.Duration, params map[string]string) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if v := params["response-content-type"]; v != "" {
		input.ResponseContentType = aws.String(v)
	}
	if v := params["response-content-disposition"]; v != "" {
		input.ResponseContentDisposition = aws.String(v)
	}
	req, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
