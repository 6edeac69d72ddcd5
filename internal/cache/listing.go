package cache

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	CacheKeySearchPage = "listing:search"
	CacheKeyCursor     = "listing:cursor"
)

// CursorShape is the listing shape a continuation token was issued for.
type CursorShape struct {
	Prefix   string `json:"prefix"`
	PageSize int    `json:"page_size"`
}

// ListingCache holds search result pages and the shape each unfiltered token was issued for.
// Cache errors are logged and treated as misses; listing never fails because of them.
type ListingCache struct {
	cache     Cache
	searchTTL time.Duration
	cursorTTL time.Duration
}

func NewListingCache(c Cache, searchTTL, cursorTTL time.Duration) *ListingCache {
	return &ListingCache{cache: c, searchTTL: searchTTL, cursorTTL: cursorTTL}
}

func searchKey(prefix, term, scope string, pageSize, page int) string {
	return BuildCacheKey(CacheKeySearchPage, url.QueryEscape(prefix), url.QueryEscape(term), scope, pageSize, page)
}

// GetSearchPage loads a cached search page into dest.
func (l *ListingCache) GetSearchPage(ctx context.Context, prefix, term, scope string, pageSize, page int, dest interface{}) bool {
	if l == nil || l.searchTTL <= 0 {
		return false
	}
	err := l.cache.Get(ctx, searchKey(prefix, term, scope, pageSize, page), dest)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			log.Warn().Err(err).Msg("search cache read failed")
		}
		return false
	}
	return true
}

func (l *ListingCache) SetSearchPage(ctx context.Context, prefix, term, scope string, pageSize, page int, value interface{}) {
	if l == nil || l.searchTTL <= 0 {
		return
	}
	if err := l.cache.Set(ctx, searchKey(prefix, term, scope, pageSize, page), value, l.searchTTL); err != nil {
		log.Warn().Err(err).Msg("search cache write failed")
	}
}

// InvalidateSearch drops every cached search page. Called after any mutation.
func (l *ListingCache) InvalidateSearch(ctx context.Context) {
	if l == nil {
		return
	}
	if err := l.cache.DeleteByPattern(ctx, CacheKeySearchPage+":*"); err != nil {
		log.Warn().Err(err).Msg("search cache invalidate failed")
	}
}

// RememberCursor records the shape a token was issued for.
func (l *ListingCache) RememberCursor(ctx context.Context, token string, shape CursorShape) {
	if l == nil || token == "" || l.cursorTTL <= 0 {
		return
	}
	if err := l.cache.Set(ctx, BuildCacheKey(CacheKeyCursor, url.QueryEscape(token)), shape, l.cursorTTL); err != nil {
		log.Warn().Err(err).Msg("cursor guard write failed")
	}
}

// CursorMatches reports whether token was issued for shape. Unknown tokens
// match: the guard only rejects tokens it knows belong to another shape.
func (l *ListingCache) CursorMatches(ctx context.Context, token string, shape CursorShape) bool {
	if l == nil || token == "" || l.cursorTTL <= 0 {
		return true
	}
	var stored CursorShape
	if err := l.cache.Get(ctx, BuildCacheKey(CacheKeyCursor, url.QueryEscape(token)), &stored); err != nil {
		return true
	}
	return stored == shape
}
