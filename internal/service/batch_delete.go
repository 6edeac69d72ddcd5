package service

import (
	"context"
	"sync"
	"time"

	"BucketDash/internal/storage"

	"github.com/rs/zerolog/log"
)

// Outcome of one sub-operation of a batch delete.
type Outcome string

const (
	OutcomeFulfilled Outcome = "fulfilled"
	OutcomeRejected  Outcome = "rejected"
)

// DeleteItem names a file and, optionally, its preview.
type DeleteItem struct {
	Key          string `json:"key"`
	ThumbnailKey string `json:"thumbnail_key,omitempty"`
}

// ItemOutcome is the per-store result for one item.
type ItemOutcome struct {
	Key       string  `json:"key"`
	Object    Outcome `json:"object"`
	Thumbnail Outcome `json:"thumbnail"`
	Metadata  Outcome `json:"metadata"`
	Error     string  `json:"error,omitempty"`
}

func (o ItemOutcome) fullyDeleted() bool {
	return o.Object == OutcomeFulfilled && o.Thumbnail == OutcomeFulfilled && o.Metadata == OutcomeFulfilled
}

// BatchDeleteResult reports every item. Rejected sub-operations do not make the call fail.
type BatchDeleteResult struct {
	Items     []ItemOutcome `json:"items"`
	Deleted   int           `json:"deleted"`
	Partial   int           `json:"partial"`
	RowsTotal int64         `json:"rows_deleted"`
}

// BatchDeleter removes object, preview and row for a set of files.
type BatchDeleter struct {
	*core
}

// DeleteMany authorizes every item up front, then runs one multi-object delete
// and one metadata IN delete concurrently. Neither side rolls back the other.
func (b *BatchDeleter) DeleteMany(ctx context.Context, actor Actor, items []DeleteItem) (*BatchDeleteResult, error) {
	const op = "delete files"
	if !actor.Authenticated() {
		return nil, unauthenticated(op)
	}
	if len(items) == 0 {
		return nil, validationError(op, "no items")
	}
	if len(items) > storage.MaxDeleteBatch {
		return nil, validationError(op, "at most %d items per request", storage.MaxDeleteBatch)
	}

	keys := make([]string, 0, len(items))
	thumbs := make(map[string]string, len(items))
	for _, item := range items {
		if err := ValidateObjectKey(item.Key); err != nil {
			return nil, validationError(op, "%s: %v", item.Key, err)
		}
		want := ThumbnailKey(item.Key)
		if item.ThumbnailKey != "" && item.ThumbnailKey != want {
			return nil, validationError(op, "%s: thumbnail key does not belong to the file", item.Key)
		}
		if _, dup := thumbs[item.Key]; dup {
			continue
		}
		thumbs[item.Key] = want
		keys = append(keys, item.Key)
	}

	if err := b.authorize(ctx, op, actor, keys); err != nil {
		return nil, err
	}

	objectKeys := make([]string, 0, 2*len(keys))
	for _, key := range keys {
		objectKeys = append(objectKeys, key, thumbs[key])
	}

	var (
		wg        sync.WaitGroup
		failures  map[string]error
		removeErr error
		rows      int64
		rowsErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		callCtx, cancel := b.call(ctx)
		defer cancel()
		start := time.Now()
		failures, removeErr = b.store.RemoveObjects(callCtx, objectKeys)
		b.observe("store", "delete_batch", start, removeErr)
	}()
	go func() {
		defer wg.Done()
		callCtx, cancel := b.call(ctx)
		defer cancel()
		start := time.Now()
		rows, rowsErr = b.files.DeleteByKeys(callCtx, keys)
		b.observe("metadata", "delete_batch", start, rowsErr)
	}()
	wg.Wait()

	result := &BatchDeleteResult{Items: make([]ItemOutcome, 0, len(keys)), RowsTotal: rows}
	counts := map[string]map[Outcome]int{
		"object":    {},
		"thumbnail": {},
		"metadata":  {},
	}
	for _, key := range keys {
		out := ItemOutcome{
			Key:       key,
			Object:    removeOutcome(key, failures, removeErr),
			Thumbnail: removeOutcome(thumbs[key], failures, removeErr),
			Metadata:  OutcomeFulfilled,
		}
		if rowsErr != nil {
			out.Metadata = OutcomeRejected
		}
		out.Error = firstError(failures[key], failures[thumbs[key]], removeErr, rowsErr)
		counts["object"][out.Object]++
		counts["thumbnail"][out.Thumbnail]++
		counts["metadata"][out.Metadata]++

		if out.fullyDeleted() {
			result.Deleted++
		} else {
			result.Partial++
			log.Warn().
				Str("key", key).
				Str("actor", actor.ID).
				Str("object", string(out.Object)).
				Str("thumbnail", string(out.Thumbnail)).
				Str("metadata", string(out.Metadata)).
				Str("error", out.Error).
				Msg("batch delete sub-operation rejected")
		}
		result.Items = append(result.Items, out)
	}
	for target, byOutcome := range counts {
		for outcome, n := range byOutcome {
			b.metrics.BatchItems(target, string(outcome), n)
		}
	}

	b.invalidate(context.WithoutCancel(ctx))
	log.Info().Str("actor", actor.ID).Int("deleted", result.Deleted).Int("failed", result.Partial).Msg("files deleted")
	return result, nil
}

// authorize rejects the whole batch if any item is neither owned by actor nor
// deletable through the admin role. Keys with no row count as unowned.
func (b *BatchDeleter) authorize(ctx context.Context, op string, actor Actor, keys []string) error {
	callCtx, cancel := b.call(ctx)
	start := time.Now()
	rows, err := b.files.GetByKeys(callCtx, keys)
	cancel()
	b.observe("metadata", "get_batch", start, err)
	if err != nil {
		return backendError(op, err)
	}

	role := ""
	roleLoaded := false
	for _, key := range keys {
		var owner *string
		if rec, ok := rows[key]; ok {
			owner = rec.UserID
		}
		if CanDeleteFile(actor, owner, "", b.authz.AdminRole()) {
			continue
		}
		if !roleLoaded {
			callCtx, cancel := b.call(ctx)
			role, err = b.authz.Role(callCtx, actor)
			cancel()
			if err != nil {
				return backendError(op, err)
			}
			roleLoaded = true
		}
		if !CanDeleteFile(actor, owner, role, b.authz.AdminRole()) {
			log.Warn().Str("actor", actor.ID).Str("key", key).Msg("delete forbidden")
			return forbidden(op, "not allowed to delete %s", key)
		}
	}
	return nil
}

func removeOutcome(key string, failures map[string]error, removeErr error) Outcome {
	if removeErr != nil {
		return OutcomeRejected
	}
	if _, failed := failures[key]; failed {
		return OutcomeRejected
	}
	return OutcomeFulfilled
}

func firstError(errs ...error) string {
	for _, err := range errs {
		if err != nil {
			return err.Error()
		}
	}
	return ""
}
