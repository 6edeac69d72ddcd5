package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"BucketDash/internal/storage"
	"BucketDash/internal/thumbnail"
	"BucketDash/model"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Placeholder previews for files without a derived thumbnail.
const (
	IconImage = "/icons/image.svg"
	IconVideo = "/icons/video.svg"
	IconFile  = "/icons/file.svg"
)

// UploadInput is one file to store.
type UploadInput struct {
	Data        []byte
	FileName    string
	ContentType string
	Prefix      string
}

// UploadResult is the stored record plus URLs for display.
type UploadResult struct {
	Record       *model.FileRecord `json:"record"`
	URL          string            `json:"url"`
	ThumbnailKey string            `json:"thumbnail_key,omitempty"`
	ThumbnailURL string            `json:"thumbnail_url"`
}

// Uploader writes object, preview and row in that order and undoes the
// object writes when the row cannot be stored.
type Uploader struct {
	*core
	thumbs    thumbnail.Deriver
	urls      *Downloads
	newSuffix func(n int) (string, error)
}

func (u *Uploader) Upload(ctx context.Context, actor Actor, in UploadInput) (*UploadResult, error) {
	const op = "upload"
	if !CanMutate(actor) {
		return nil, unauthenticated(op)
	}
	if err := ValidatePrefix(in.Prefix); err != nil {
		return nil, validationError(op, "%v", err)
	}
	if strings.TrimSpace(in.FileName) == "" {
		return nil, validationError(op, "file name is required")
	}
	if u.opts.MaxUploadBytes > 0 && int64(len(in.Data)) > u.opts.MaxUploadBytes {
		return nil, validationError(op, "file exceeds %d bytes", u.opts.MaxUploadBytes)
	}

	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(in.Data).String()
	}

	suffix, err := u.newSuffix(suffixLength)
	if err != nil {
		return nil, backendError(op, err)
	}
	key := BuildObjectKey(in.Prefix, in.FileName, suffix)
	name := LeafName(key)

	// Codec failures only cost the preview.
	var thumb *thumbnail.Result
	icon := IconFile
	switch {
	case thumbnail.IsImage(contentType):
		icon = IconImage
		thumb, err = u.thumbs.Derive(ctx, in.Data, name, contentType)
		if err != nil {
			log.Debug().Err(err).Str("key", key).Msg("thumbnail derivation failed; using icon")
			thumb = nil
		}
	case thumbnail.IsVideo(contentType):
		icon = IconVideo
	}

	callCtx, cancel := u.call(ctx)
	start := time.Now()
	err = u.store.PutObject(callCtx, key, bytes.NewReader(in.Data), int64(len(in.Data)), storage.PutOptions{
		ContentType: contentType,
		IfNotExists: true,
	})
	cancel()
	u.observe("store", "put", start, err)
	if err != nil {
		u.metrics.Upload("failed")
		if errors.Is(err, storage.ErrConflict) {
			return nil, conflict(op, "object %s already exists", key)
		}
		return nil, backendError(op, err)
	}

	written := []string{key}
	thumbKey := ""
	if thumb != nil {
		thumbKey = ThumbnailKey(key)
		callCtx, cancel := u.call(ctx)
		start := time.Now()
		err := u.store.PutObject(callCtx, thumbKey, bytes.NewReader(thumb.Data), int64(len(thumb.Data)), storage.PutOptions{
			ContentType: thumb.ContentType,
		})
		cancel()
		u.observe("store", "put", start, err)
		if err != nil {
			log.Warn().Err(err).Str("key", thumbKey).Msg("thumbnail write failed; continuing without preview")
			thumb, thumbKey = nil, ""
		} else {
			written = append(written, thumbKey)
		}
	}

	owner := actor.ID
	rec := &model.FileRecord{
		Key:         key,
		Name:        name,
		Size:        int64(len(in.Data)),
		ContentType: contentType,
		UploadedAt:  time.Now().UTC(),
		UserID:      &owner,
	}
	if thumb != nil && thumb.BlurDataURL != "" {
		blur := thumb.BlurDataURL
		rec.BlurDataURL = &blur
	}

	callCtx, cancel = u.call(ctx)
	start = time.Now()
	err = u.files.Insert(callCtx, rec)
	cancel()
	u.observe("metadata", "insert", start, err)
	if err != nil {
		u.metrics.Upload("failed")
		u.compensate(ctx, written)
		return nil, classify(op, err)
	}

	u.invalidate(ctx)
	u.metrics.Upload("ok")
	log.Info().Str("key", key).Str("actor", actor.ID).Int64("size", rec.Size).Msg("file uploaded")

	result := &UploadResult{Record: rec, ThumbnailKey: thumbKey, ThumbnailURL: icon}
	if result.URL, err = u.urls.DisplayURL(ctx, key, contentType); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("display url failed")
	}
	if thumbKey != "" {
		if thumbURL, err := u.urls.DisplayURL(ctx, thumbKey, thumb.ContentType); err == nil {
			result.ThumbnailURL = thumbURL
		} else {
			log.Warn().Err(err).Str("key", thumbKey).Msg("thumbnail url failed")
		}
	}
	return result, nil
}

// compensate deletes objects written for an upload whose row failed. What it
// cannot delete stays behind as a dangling object and is logged as such.
func (u *Uploader) compensate(ctx context.Context, keys []string) {
	callCtx, cancel := u.call(context.WithoutCancel(ctx))
	defer cancel()
	failures, err := u.store.RemoveObjects(callCtx, keys)
	if err == nil && len(failures) == 0 {
		u.metrics.Compensation("upload", true)
		log.Warn().Strs("keys", keys).Msg("upload objects removed after metadata write failed")
		return
	}
	u.metrics.Compensation("upload", false)
	for _, key := range keys {
		ferr, failed := failures[key]
		if !failed && err == nil {
			continue
		}
		if ferr == nil {
			ferr = err
		}
		log.Error().Err(ferr).Str("key", key).Msg("dangling object: compensation delete failed")
	}
}
