package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_ExpiryAndPattern(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "listing:search:a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "listing:search:b", 2, time.Minute))
	require.NoError(t, c.Set(ctx, "listing:cursor:x", 3, time.Minute))

	var v int
	require.NoError(t, c.Get(ctx, "listing:search:a", &v))
	assert.Equal(t, 1, v)

	require.NoError(t, c.DeleteByPattern(ctx, "listing:search:*"))
	assert.ErrorIs(t, c.Get(ctx, "listing:search:a", &v), ErrMiss)
	require.NoError(t, c.Get(ctx, "listing:cursor:x", &v))

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "listing:cursor:x", &v), ErrMiss)
}

func TestListingCache_CursorShape(t *testing.T) {
	ctx := context.Background()
	l := NewListingCache(NewMemoryCache(), time.Minute, time.Minute)
	shape := CursorShape{Prefix: "photos/", PageSize: 2}
	l.RememberCursor(ctx, "tok", shape)

	assert.True(t, l.CursorMatches(ctx, "tok", shape))
	assert.False(t, l.CursorMatches(ctx, "tok", CursorShape{Prefix: "photos/", PageSize: 3}))
	assert.False(t, l.CursorMatches(ctx, "tok", CursorShape{Prefix: "docs/", PageSize: 2}))
	assert.True(t, l.CursorMatches(ctx, "unknown", shape))
}

func TestListingCache_SearchInvalidate(t *testing.T) {
	ctx := context.Background()
	l := NewListingCache(NewMemoryCache(), time.Minute, time.Minute)
	l.SetSearchPage(ctx, "", "cat", "global", 10, 1, []string{"cat.png"})

	var got []string
	require.True(t, l.GetSearchPage(ctx, "", "cat", "global", 10, 1, &got))
	assert.Equal(t, []string{"cat.png"}, got)

	l.InvalidateSearch(ctx)
	assert.False(t, l.GetSearchPage(ctx, "", "cat", "global", 10, 1, &got))
}
