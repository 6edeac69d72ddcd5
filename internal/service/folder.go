package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"BucketDash/internal/repo"
	"BucketDash/internal/storage"
	"BucketDash/model"

	"github.com/rs/zerolog/log"
)

// maxReportErrors caps the error strings kept on a FolderDeleteReport.
const maxReportErrors = 20

// FileEntry is a file row as shown in a listing.
type FileEntry struct {
	model.FileRecord
	ThumbnailKey string `json:"thumbnail_key,omitempty"`
	// Degraded marks an object that has no metadata row.
	Degraded bool `json:"degraded,omitempty"`
}

// Listing is the immediate children of a prefix.
type Listing struct {
	Files       []FileEntry `json:"files"`
	Directories []string    `json:"directories"`
}

// FolderDeleteReport totals one recursive delete. Failures here do not fail the operation.
type FolderDeleteReport struct {
	Prefix         string   `json:"prefix"`
	Pages          int      `json:"pages"`
	ObjectsDeleted int      `json:"objects_deleted"`
	ObjectsFailed  int      `json:"objects_failed"`
	RowsDeleted    int      `json:"rows_deleted"`
	BatchesFailed  int      `json:"batches_failed"`
	Errors         []string `json:"errors,omitempty"`
}

// Partial reports whether any batch had a failed sub-operation.
func (r *FolderDeleteReport) Partial() bool {
	return r.BatchesFailed > 0 || r.ObjectsFailed > 0
}

func (r *FolderDeleteReport) Counts() repo.TaskCounts {
	return repo.TaskCounts{
		Pages:          r.Pages,
		ObjectsDeleted: r.ObjectsDeleted,
		ObjectsFailed:  r.ObjectsFailed,
		RowsDeleted:    r.RowsDeleted,
		BatchesFailed:  r.BatchesFailed,
	}
}

func (r *FolderDeleteReport) addError(format string, args ...interface{}) {
	if len(r.Errors) < maxReportErrors {
		r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	}
}

// FolderEngine emulates folders over flat keys.
type FolderEngine struct {
	*core
	locker PrefixLocker
}

// ListImmediateChildren lists every key under prefix and derives its direct files and directories.
func (f *FolderEngine) ListImmediateChildren(ctx context.Context, prefix string) (*Listing, error) {
	const op = "list children"
	if err := ValidatePrefix(prefix); err != nil {
		return nil, validationError(op, "%v", err)
	}

	var objects []storage.ObjectInfo
	token := ""
	for {
		page, err := f.listPage(ctx, prefix, token, storage.DefaultListKeys)
		if err != nil {
			return nil, backendError(op, err)
		}
		objects = append(objects, page.Objects...)
		if !page.IsTruncated || page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	files, dirs := deriveChildren(prefix, objects)
	return &Listing{
		Files:       f.enrich(ctx, files),
		Directories: dirs,
	}, nil
}

// CreateFolder writes the folder row first, then the zero-byte marker object.
// A failed object write deletes the row again.
func (f *FolderEngine) CreateFolder(ctx context.Context, actor Actor, currentPrefix, folderName string) (*model.FileRecord, error) {
	const op = "create folder"
	if !CanMutate(actor) {
		return nil, unauthenticated(op)
	}
	if err := ValidatePrefix(currentPrefix); err != nil {
		return nil, validationError(op, "%v", err)
	}
	if err := ValidateFolderName(folderName); err != nil {
		return nil, validationError(op, "%v", err)
	}
	if currentPrefix == "" && folderName == ThumbnailRoot {
		return nil, validationError(op, "folder name %q is reserved", folderName)
	}

	key := currentPrefix + folderName + "/"
	owner := actor.ID
	rec := &model.FileRecord{
		Key:         key,
		Name:        folderName,
		Size:        0,
		ContentType: model.FolderContentType,
		UploadedAt:  time.Now().UTC(),
		UserID:      &owner,
	}

	callCtx, cancel := f.call(ctx)
	start := time.Now()
	err := f.files.Insert(callCtx, rec)
	cancel()
	f.observe("metadata", "insert", start, err)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateKey) {
			return nil, conflict(op, "folder %s already exists", key)
		}
		return nil, backendError(op, err)
	}

	callCtx, cancel = f.call(ctx)
	start = time.Now()
	err = f.store.PutObject(callCtx, key, bytes.NewReader(nil), 0, storage.PutOptions{
		ContentType: model.FolderContentType,
		IfNotExists: true,
	})
	cancel()
	f.observe("store", "put", start, err)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrConflict):
		// A marker without a row: the new row now covers it.
		log.Info().Str("key", key).Msg("adopted existing folder marker")
	default:
		f.compensateFolderRow(ctx, key)
		return nil, backendError(op, err)
	}

	f.invalidate(ctx)
	log.Info().Str("key", key).Str("actor", actor.ID).Msg("folder created")
	return rec, nil
}

func (f *FolderEngine) compensateFolderRow(ctx context.Context, key string) {
	callCtx, cancel := f.call(context.WithoutCancel(ctx))
	defer cancel()
	if err := f.files.DeleteByKey(callCtx, key); err != nil {
		f.metrics.Compensation("create_folder", false)
		log.Error().Err(err).Str("key", key).Msg("folder row compensation failed; row has no object")
		return
	}
	f.metrics.Compensation("create_folder", true)
	log.Warn().Str("key", key).Msg("folder row removed after marker write failed")
}

// DeleteFolderRecursive removes every object and row under prefix. It is admin-only.
// Batch failures are recorded on the report and never stop the walk; only a failed
// listing call ends it early, since without the token there is no next page.
func (f *FolderEngine) DeleteFolderRecursive(ctx context.Context, actor Actor, prefix string) (*FolderDeleteReport, error) {
	const op = "delete folder"
	if err := f.checkFolderDelete(ctx, op, actor, prefix); err != nil {
		return nil, err
	}

	if f.locker != nil {
		release, err := f.locker.Acquire(ctx, prefix)
		if err != nil {
			if errors.Is(err, ErrPrefixBusy) {
				return nil, conflict(op, "a delete of %s is already running", prefix)
			}
			return nil, backendError(op, err)
		}
		defer release()
	}

	report := &FolderDeleteReport{Prefix: prefix}
	defer f.invalidate(context.WithoutCancel(ctx))

	if err := f.purge(ctx, prefix, true, report); err != nil {
		return report, backendError(op, err)
	}
	// Previews whose source object was already gone.
	if err := f.purge(ctx, ThumbnailKey(prefix), false, report); err != nil {
		return report, backendError(op, err)
	}

	callCtx, cancel := f.call(ctx)
	swept, err := f.files.DeleteByPrefix(callCtx, prefix)
	cancel()
	if err != nil {
		report.addError("metadata sweep: %v", err)
		log.Warn().Err(err).Str("prefix", prefix).Msg("metadata sweep failed")
	} else {
		report.RowsDeleted += int(swept)
	}

	ev := log.Info()
	if report.Partial() {
		ev = log.Warn()
	}
	ev.Str("prefix", prefix).
		Str("actor", actor.ID).
		Int("pages", report.Pages).
		Int("deleted", report.ObjectsDeleted).
		Int("failed", report.ObjectsFailed).
		Int("rows", report.RowsDeleted).
		Int("batches_failed", report.BatchesFailed).
		Msg("folder deleted")
	return report, nil
}

// CheckFolderDelete runs the argument and role checks of DeleteFolderRecursive
// without deleting anything, so a detached delete can be refused before it is queued.
func (f *FolderEngine) CheckFolderDelete(ctx context.Context, actor Actor, prefix string) error {
	return f.checkFolderDelete(ctx, "delete folder", actor, prefix)
}

func (f *FolderEngine) checkFolderDelete(ctx context.Context, op string, actor Actor, prefix string) error {
	if !actor.Authenticated() {
		return unauthenticated(op)
	}
	if err := ValidatePrefix(prefix); err != nil {
		return validationError(op, "%v", err)
	}
	if prefix == "" {
		return validationError(op, "refusing to delete the bucket root")
	}
	return f.authz.RequireFolderDelete(ctx, op, actor)
}

// purge walks listPrefix page by page. Each page's object batch delete and row
// delete run concurrently and both are always attempted.
func (f *FolderEngine) purge(ctx context.Context, listPrefix string, withRows bool, report *FolderDeleteReport) error {
	token := ""
	for {
		page, err := f.listPage(ctx, listPrefix, token, storage.MaxDeleteBatch)
		if err != nil {
			report.addError("list %s: %v", listPrefix, err)
			log.Error().Err(err).Str("prefix", listPrefix).Int("batch", report.Pages+1).Msg("folder delete listing failed")
			return err
		}
		if len(page.Objects) > 0 {
			report.Pages++
			f.deletePage(ctx, page.Objects, withRows, report)
		}
		if !page.IsTruncated {
			return nil
		}
		if page.NextToken == "" {
			return fmt.Errorf("list %s: truncated page without continuation token", listPrefix)
		}
		token = page.NextToken
	}
}

func (f *FolderEngine) deletePage(ctx context.Context, objects []storage.ObjectInfo, withRows bool, report *FolderDeleteReport) {
	keys := make([]string, 0, len(objects))
	objectKeys := make([]string, 0, 2*len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
		objectKeys = append(objectKeys, obj.Key)
		if withRows && !strings.HasSuffix(obj.Key, "/") {
			objectKeys = append(objectKeys, ThumbnailKey(obj.Key))
		}
	}

	var (
		wg        sync.WaitGroup
		failures  map[string]error
		removeErr error
		rows      int64
		rowsErr   error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		callCtx, cancel := f.call(ctx)
		defer cancel()
		start := time.Now()
		failures, removeErr = f.store.RemoveObjects(callCtx, objectKeys)
		f.observe("store", "delete_batch", start, removeErr)
	}()
	if withRows {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := f.call(ctx)
			defer cancel()
			start := time.Now()
			rows, rowsErr = f.files.DeleteByKeys(callCtx, keys)
			f.observe("metadata", "delete_batch", start, rowsErr)
		}()
	}
	wg.Wait()

	failed := 0
	for _, key := range keys {
		if _, ok := failures[key]; ok {
			failed++
		}
	}
	if removeErr != nil {
		// The request was cut short; nothing in this page can be counted as gone.
		failed = len(keys)
	}
	report.ObjectsDeleted += len(keys) - failed
	report.ObjectsFailed += failed
	report.RowsDeleted += int(rows)

	batchFailed := failed > 0 || rowsErr != nil || removeErr != nil
	if batchFailed {
		report.BatchesFailed++
		if removeErr != nil {
			report.addError("batch %d objects: %v", report.Pages, removeErr)
		}
		for key, err := range failures {
			report.addError("%s: %v", key, err)
		}
		if rowsErr != nil {
			report.addError("batch %d metadata: %v", report.Pages, rowsErr)
		}
		log.Warn().
			AnErr("objects_err", removeErr).
			AnErr("metadata_err", rowsErr).
			Int("batch", report.Pages).
			Int("failed", failed).
			Msg("folder delete batch partially failed")
	}
	f.metrics.FolderBatch(!batchFailed)
}

func (f *FolderEngine) listPage(ctx context.Context, prefix, token string, maxKeys int) (*storage.ListPage, error) {
	callCtx, cancel := f.call(ctx)
	defer cancel()
	start := time.Now()
	page, err := f.store.ListPage(callCtx, storage.ListOptions{
		Prefix:            prefix,
		ContinuationToken: token,
		MaxKeys:           maxKeys,
	})
	f.observe("store", "list", start, err)
	return page, err
}

// deriveChildren splits recursive listing results into direct files and
// directory names. Keys outside prefix are dropped. Folder markers become
// directories and never files. The root thumbnail namespace is hidden.
func deriveChildren(prefix string, objects []storage.ObjectInfo) ([]storage.ObjectInfo, []string) {
	files := make([]storage.ObjectInfo, 0, len(objects))
	seenFiles := make(map[string]struct{}, len(objects))
	dirSet := make(map[string]struct{})
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, prefix) {
			continue
		}
		rest := obj.Key[len(prefix):]
		if rest == "" {
			continue
		}
		idx := strings.IndexByte(rest, '/')
		if idx < 0 {
			if _, dup := seenFiles[obj.Key]; !dup {
				seenFiles[obj.Key] = struct{}{}
				files = append(files, obj)
			}
			continue
		}
		if idx == 0 {
			continue
		}
		name := rest[:idx]
		if prefix == "" && name == ThumbnailRoot {
			continue
		}
		dirSet[name] = struct{}{}
	}

	dirs := make([]string, 0, len(dirSet))
	for name := range dirSet {
		dirs = append(dirs, name)
	}
	sort.Strings(dirs)
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, dirs
}

// enrich joins objects with their metadata rows. Objects without a row are
// shown degraded; a metadata outage degrades the whole page rather than failing it.
func (c *core) enrich(ctx context.Context, objects []storage.ObjectInfo) []FileEntry {
	entries := make([]FileEntry, 0, len(objects))
	if len(objects) == 0 {
		return entries
	}
	keys := make([]string, len(objects))
	for i, obj := range objects {
		keys[i] = obj.Key
	}

	callCtx, cancel := c.call(ctx)
	start := time.Now()
	rows, err := c.files.GetByKeys(callCtx, keys)
	cancel()
	c.observe("metadata", "get_batch", start, err)
	if err != nil {
		log.Warn().Err(err).Int("keys", len(keys)).Msg("metadata lookup failed; listing without metadata")
		rows = nil
	}

	for _, obj := range objects {
		if rec, ok := rows[obj.Key]; ok {
			entry := fileEntry(*rec)
			entry.Size = obj.Size
			entries = append(entries, entry)
			continue
		}
		if err == nil {
			log.Debug().Str("key", obj.Key).Msg("object has no metadata row")
		}
		contentType := obj.ContentType
		if contentType == "" {
			contentType = GuessContentType(obj.Key)
		}
		entries = append(entries, FileEntry{
			FileRecord: model.FileRecord{
				Key:         obj.Key,
				Name:        LeafName(obj.Key),
				Size:        obj.Size,
				ContentType: contentType,
				UploadedAt:  obj.LastModified,
			},
			Degraded: true,
		})
	}
	return entries
}
