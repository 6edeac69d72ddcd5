package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"BucketDash/internal/cache"
	"BucketDash/internal/repo"
	"BucketDash/internal/storage"
	"BucketDash/model"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize = 20

	ModeUnfiltered = "unfiltered"
	ModeFiltered   = "filtered"
)

// PageRequest asks for one listing page. PageToken drives unfiltered
// listings; PageNumber drives filtered ones.
type PageRequest struct {
	Prefix      string
	PageSize    int
	PageToken   string
	PageNumber  int
	SearchTerm  string
	SearchScope repo.SearchScope
}

// Page is one page of a listing.
type Page struct {
	Files       []FileEntry `json:"files"`
	Directories []string    `json:"directories"`
	NextToken   string      `json:"next_token,omitempty"`
	IsTruncated bool        `json:"is_truncated"`
	TotalCount  *int64      `json:"total_count,omitempty"`
	TotalPages  *int        `json:"total_pages,omitempty"`
	PageNumber  int         `json:"page_number,omitempty"`
	Mode        string      `json:"mode"`
	// Reset is set when the request's cursor did not fit its shape and page 1 was served instead.
	Reset bool `json:"reset,omitempty"`
	// DirectoryKeys holds the full folder keys behind Directories in filtered
	// mode, where matches can sit at any depth.
	DirectoryKeys []string `json:"directory_keys,omitempty"`
}

// Paginator serves listing pages from the object store (no search term) or
// from the metadata table (search term present).
type Paginator struct {
	*core
}

func (p *Paginator) Page(ctx context.Context, req PageRequest) (*Page, error) {
	const op = "list page"
	if err := ValidatePrefix(req.Prefix); err != nil {
		return nil, validationError(op, "%v", err)
	}
	if req.PageSize <= 0 {
		req.PageSize = DefaultPageSize
	}
	if req.PageSize > p.opts.ListingMaxPage {
		req.PageSize = p.opts.ListingMaxPage
	}
	req.SearchTerm = strings.TrimSpace(req.SearchTerm)
	if req.SearchTerm != "" {
		return p.filtered(ctx, op, req)
	}
	return p.unfiltered(ctx, op, req)
}

// unfiltered follows the store's forward-only continuation tokens over a
// delimited listing, so each directory appears once across the whole walk.
// A token issued for another prefix or page size, or a page number with no
// token, restarts at page 1.
func (p *Paginator) unfiltered(ctx context.Context, op string, req PageRequest) (*Page, error) {
	shape := cache.CursorShape{Prefix: req.Prefix, PageSize: req.PageSize}
	out := &Page{Mode: ModeUnfiltered}

	token := req.PageToken
	if token != "" && !p.listing.CursorMatches(ctx, token, shape) {
		token = ""
		out.Reset = true
	}
	if token == "" && req.PageNumber > 1 {
		out.Reset = true
	}

	// The folder's own marker and the root thumbnail namespace take store
	// slots but are never shown; top the page up when they did.
	var objects []storage.ObjectInfo
	var prefixes []string
	visible, truncated := 0, false
	for round := 0; round < maxFillRounds; round++ {
		page, err := p.listDelimited(ctx, req.Prefix, token, req.PageSize-visible)
		if err != nil {
			return nil, backendError(op, err)
		}
		objects = append(objects, page.Objects...)
		prefixes = append(prefixes, page.CommonPrefixes...)
		visible += countVisible(req.Prefix, page)
		truncated = page.IsTruncated
		token = page.NextToken
		if !truncated || visible >= req.PageSize {
			break
		}
	}

	// A walk whose only remaining entry is hidden is finished.
	if truncated && req.Prefix == "" {
		peek, err := p.listDelimited(ctx, req.Prefix, token, 1)
		if err != nil {
			return nil, backendError(op, err)
		}
		if !peek.IsTruncated && countVisible(req.Prefix, peek) == 0 {
			truncated = false
		}
	}

	files, dirs := deriveChildren(req.Prefix, withPrefixes(objects, prefixes))
	out.Files = p.enrich(ctx, files)
	out.Directories = dirs
	out.IsTruncated = truncated
	if truncated {
		out.NextToken = token
		p.listing.RememberCursor(ctx, token, shape)
	}
	p.metrics.Listing(ModeUnfiltered)
	return out, nil
}

// maxFillRounds bounds the store calls for one page. Hidden entries are at
// most the folder marker plus the thumbnail namespace, so two rounds suffice.
const maxFillRounds = 3

func (p *Paginator) listDelimited(ctx context.Context, prefix, token string, maxKeys int) (*storage.ListPage, error) {
	callCtx, cancel := p.call(ctx)
	defer cancel()
	start := time.Now()
	page, err := p.store.ListPage(callCtx, storage.ListOptions{
		Prefix:            prefix,
		Delimiter:         "/",
		ContinuationToken: token,
		MaxKeys:           maxKeys,
	})
	p.observe("store", "list", start, err)
	return page, err
}

// countVisible counts the entries of a delimited page that a listing shows.
func countVisible(prefix string, page *storage.ListPage) int {
	files, dirs := deriveChildren(prefix, withPrefixes(page.Objects, page.CommonPrefixes))
	return len(files) + len(dirs)
}

// withPrefixes folds common prefixes in as keys so deriveChildren turns them
// into directory names.
func withPrefixes(objects []storage.ObjectInfo, prefixes []string) []storage.ObjectInfo {
	if len(prefixes) == 0 {
		return objects
	}
	out := make([]storage.ObjectInfo, 0, len(objects)+len(prefixes))
	out = append(out, objects...)
	for _, cp := range prefixes {
		out = append(out, storage.ObjectInfo{Key: cp})
	}
	return out
}

func (p *Paginator) filtered(ctx context.Context, op string, req PageRequest) (*Page, error) {
	scope := req.SearchScope
	switch scope {
	case "":
		scope = repo.ScopeCurrent
	case repo.ScopeCurrent, repo.ScopeGlobal:
	default:
		return nil, validationError(op, "unknown search scope %q", scope)
	}
	pageNumber := req.PageNumber
	reset := false
	if req.PageToken != "" && pageNumber <= 0 {
		// Object-store cursors do not translate into offsets.
		reset = true
	}
	if pageNumber <= 0 {
		pageNumber = 1
	}

	var cached Page
	if p.listing.GetSearchPage(ctx, req.Prefix, req.SearchTerm, string(scope), req.PageSize, pageNumber, &cached) {
		cached.Reset = reset
		p.metrics.Listing(ModeFiltered)
		return &cached, nil
	}

	callCtx, cancel := p.call(ctx)
	start := time.Now()
	rows, total, err := p.files.QueryBySearch(callCtx, repo.SearchQuery{
		Term:   req.SearchTerm,
		Scope:  scope,
		Prefix: req.Prefix,
		Limit:  req.PageSize,
		Offset: (pageNumber - 1) * req.PageSize,
	})
	cancel()
	p.observe("metadata", "search", start, err)
	if err != nil {
		return nil, backendError(op, err)
	}

	present := p.existing(ctx, rows)
	out := &Page{
		Files:       make([]FileEntry, 0, len(rows)),
		Directories: make([]string, 0),
		Mode:        ModeFiltered,
		PageNumber:  pageNumber,
		IsTruncated: int64(pageNumber)*int64(req.PageSize) < total,
	}
	for i := range rows {
		rec := rows[i]
		if IsReservedKey(rec.Key) || !present[rec.Key] {
			continue
		}
		if rec.IsFolder() {
			out.Directories = append(out.Directories, LeafName(rec.Key))
			out.DirectoryKeys = append(out.DirectoryKeys, rec.Key)
			continue
		}
		out.Files = append(out.Files, fileEntry(rec))
	}
	totalPages := int((total + int64(req.PageSize) - 1) / int64(req.PageSize))
	out.TotalCount = &total
	out.TotalPages = &totalPages

	p.listing.SetSearchPage(ctx, req.Prefix, req.SearchTerm, string(scope), req.PageSize, pageNumber, out)
	out.Reset = reset
	p.metrics.Listing(ModeFiltered)
	return out, nil
}

// statConcurrency bounds the existence checks for one filtered page.
const statConcurrency = 8

// existing reports which rows still have an object. Rows whose object is gone
// are hidden; a failed check keeps the row so an outage degrades instead of
// emptying the page.
func (p *Paginator) existing(ctx context.Context, rows []model.FileRecord) map[string]bool {
	present := make(map[string]bool, len(rows))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(statConcurrency)
	for i := range rows {
		key := rows[i].Key
		g.Go(func() error {
			callCtx, cancel := p.call(ctx)
			start := time.Now()
			_, err := p.store.StatObject(callCtx, key)
			cancel()
			p.observe("store", "stat", start, err)
			found := true
			switch {
			case errors.Is(err, storage.ErrNotFound):
				log.Debug().Str("key", key).Msg("metadata row has no object; hidden from search")
				found = false
			case err != nil:
				log.Warn().Err(err).Str("key", key).Msg("existence check failed; showing row")
			}
			mu.Lock()
			present[key] = found
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return present
}

func fileEntry(rec model.FileRecord) FileEntry {
	entry := FileEntry{FileRecord: rec}
	if rec.BlurDataURL != nil {
		entry.ThumbnailKey = ThumbnailKey(rec.Key)
	}
	return entry
}
