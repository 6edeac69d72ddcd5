package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"BucketDash/internal/storage"
	"BucketDash/utils"
)

// maxArchiveEntries bounds one zip download.
const maxArchiveEntries = 10000

// DownloadLink is a time-limited URL for one object.
type DownloadLink struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ArchiveEntry is one zip member.
type ArchiveEntry struct {
	ZipPath string
	Key     string
	IsDir   bool
}

// Downloads builds object URLs and zip archives.
type Downloads struct {
	*core
}

// DisplayURL returns PublicBaseURL/key when a public base is configured, otherwise a presigned inline URL.
func (d *Downloads) DisplayURL(ctx context.Context, key, contentType string) (string, error) {
	if d.opts.PublicBaseURL != "" {
		return publicURL(d.opts.PublicBaseURL, key), nil
	}
	callCtx, cancel := d.call(ctx)
	defer cancel()
	return d.store.PresignedGetObject(callCtx, key, d.opts.PresignExpiry, map[string]string{
		"response-content-type": contentType,
	})
}

func publicURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

// DownloadURL presigns an attachment download for key.
func (d *Downloads) DownloadURL(ctx context.Context, actor Actor, key string) (*DownloadLink, error) {
	const op = "download url"
	if !actor.Authenticated() {
		return nil, unauthenticated(op)
	}
	if err := ValidateObjectKey(key); err != nil {
		return nil, validationError(op, "%v", err)
	}

	callCtx, cancel := d.call(ctx)
	info, err := d.store.StatObject(callCtx, key)
	cancel()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFound(op, "%s not found", key)
		}
		return nil, backendError(op, err)
	}

	name := LeafName(key)
	contentType := info.ContentType
	if contentType == "" {
		contentType = GuessContentType(name)
	}
	disposition := utils.AttachmentDisposition(name)

	callCtx, cancel = d.call(ctx)
	defer cancel()
	link, err := d.store.PresignedGetObject(callCtx, key, d.opts.PresignExpiry, map[string]string{
		"response-content-type":        contentType,
		"response-content-disposition": disposition,
	})
	if err != nil {
		return nil, backendError(op, err)
	}
	return &DownloadLink{Key: key, URL: link, ExpiresAt: time.Now().Add(d.opts.PresignExpiry)}, nil
}

func sanitizeArchiveName(name string) string {
	clean := strings.TrimSpace(name)
	clean = strings.ReplaceAll(clean, "\\", "_")
	clean = strings.ReplaceAll(clean, "..", "_")
	if clean == "" || clean == "." {
		return "unnamed"
	}
	return clean
}

// ArchiveEntries resolves keys and an optional folder prefix into zip members.
// Folder contents keep their layout below the folder's own name.
func (d *Downloads) ArchiveEntries(ctx context.Context, actor Actor, keys []string, prefix string) ([]ArchiveEntry, error) {
	const op = "archive"
	if !actor.Authenticated() {
		return nil, unauthenticated(op)
	}
	if len(keys) == 0 && prefix == "" {
		return nil, validationError(op, "keys or prefix required")
	}

	entries := make([]ArchiveEntry, 0, len(keys))
	used := make(map[string]struct{})
	add := func(e ArchiveEntry) {
		if _, dup := used[e.ZipPath]; dup {
			e.ZipPath = sanitizeArchiveName(strings.ReplaceAll(e.Key, "/", "_"))
		}
		used[e.ZipPath] = struct{}{}
		entries = append(entries, e)
	}

	for _, key := range keys {
		if err := ValidateObjectKey(key); err != nil {
			return nil, validationError(op, "%s: %v", key, err)
		}
		callCtx, cancel := d.call(ctx)
		_, err := d.store.StatObject(callCtx, key)
		cancel()
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, notFound(op, "%s not found", key)
			}
			return nil, backendError(op, err)
		}
		add(ArchiveEntry{ZipPath: sanitizeArchiveName(LeafName(key)), Key: key})
	}

	if prefix != "" {
		if err := ValidatePrefix(prefix); err != nil {
			return nil, validationError(op, "%v", err)
		}
		root := sanitizeArchiveName(LeafName(prefix))
		add(ArchiveEntry{ZipPath: root + "/", IsDir: true})
		token := ""
		for {
			callCtx, cancel := d.call(ctx)
			page, err := d.store.ListPage(callCtx, storage.ListOptions{Prefix: prefix, ContinuationToken: token})
			cancel()
			if err != nil {
				return nil, backendError(op, err)
			}
			for _, obj := range page.Objects {
				rest := strings.TrimPrefix(obj.Key, prefix)
				if rest == "" {
					continue
				}
				zipPath := path.Join(root, rest)
				if strings.HasSuffix(obj.Key, "/") {
					add(ArchiveEntry{ZipPath: zipPath + "/", Key: obj.Key, IsDir: true})
				} else {
					add(ArchiveEntry{ZipPath: zipPath, Key: obj.Key})
				}
				if len(entries) > maxArchiveEntries {
					return nil, validationError(op, "archive exceeds %d entries", maxArchiveEntries)
				}
			}
			if !page.IsTruncated || page.NextToken == "" {
				break
			}
			token = page.NextToken
		}
	}
	return entries, nil
}

// WriteArchive streams entries as a zip into w.
func (d *Downloads) WriteArchive(ctx context.Context, w io.Writer, entries []ArchiveEntry) error {
	zipWriter := zip.NewWriter(w)
	for _, entry := range entries {
		if entry.IsDir {
			if _, err := zipWriter.Create(entry.ZipPath); err != nil {
				return err
			}
			continue
		}
		if err := d.copyEntry(ctx, zipWriter, entry); err != nil {
			return err
		}
	}
	return zipWriter.Close()
}

func (d *Downloads) copyEntry(ctx context.Context, zipWriter *zip.Writer, entry ArchiveEntry) error {
	object, info, err := d.store.GetObject(ctx, entry.Key)
	if err != nil {
		return fmt.Errorf("get %s: %w", entry.Key, err)
	}
	defer object.Close()
	writer, err := zipWriter.CreateHeader(&zip.FileHeader{
		Name:     entry.ZipPath,
		Method:   zip.Deflate,
		Modified: info.LastModified,
	})
	if err != nil {
		return err
	}
	if _, err := io.Copy(writer, object); err != nil {
		return fmt.Errorf("copy %s: %w", entry.Key, err)
	}
	return nil
}
