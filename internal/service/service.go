package service

import (
	"context"
	"time"

	"BucketDash/internal/cache"
	"BucketDash/internal/metrics"
	"BucketDash/internal/repo"
	"BucketDash/internal/storage"
	"BucketDash/internal/thumbnail"
)

// Options are the config values the services read.
type Options struct {
	AdminRole      string
	BackendTimeout time.Duration
	MaxUploadBytes int64
	ListingMaxPage int
	PublicBaseURL  string
	PresignExpiry  time.Duration
}

func (o Options) withDefaults() Options {
	if o.AdminRole == "" {
		o.AdminRole = "admin"
	}
	if o.ListingMaxPage <= 0 || o.ListingMaxPage > storage.MaxDeleteBatch {
		o.ListingMaxPage = storage.MaxDeleteBatch
	}
	if o.PresignExpiry <= 0 {
		o.PresignExpiry = 10 * time.Minute
	}
	return o
}

// Deps are the collaborators shared by every component. Store and Files are required.
type Deps struct {
	Store   storage.Store
	Files   repo.FileRepository
	Thumbs  thumbnail.Deriver
	Listing *cache.ListingCache
	Metrics *metrics.Metrics
	Locker  PrefixLocker
	Options Options
}

// Services groups the components built from one set of Deps.
type Services struct {
	Folders   *FolderEngine
	Paginator *Paginator
	Deleter   *BatchDeleter
	Uploader  *Uploader
	Downloads *Downloads
	Authz     *Authorizer
}

func New(d Deps) *Services {
	c := &core{
		store:   d.Store,
		files:   d.Files,
		listing: d.Listing,
		metrics: d.Metrics,
		opts:    d.Options.withDefaults(),
	}
	c.authz = NewAuthorizer(d.Files, c.opts.AdminRole)
	thumbs := d.Thumbs
	if thumbs == nil {
		thumbs = thumbnail.NewImagingDeriver()
	}
	downloads := &Downloads{core: c}
	return &Services{
		Folders:   &FolderEngine{core: c, locker: d.Locker},
		Paginator: &Paginator{core: c},
		Deleter:   &BatchDeleter{core: c},
		Uploader:  &Uploader{core: c, thumbs: thumbs, urls: downloads, newSuffix: RandomSuffix},
		Downloads: downloads,
		Authz:     c.authz,
	}
}

type core struct {
	store   storage.Store
	files   repo.FileRepository
	authz   *Authorizer
	listing *cache.ListingCache
	metrics *metrics.Metrics
	opts    Options
}

// call bounds one backend call by BackendTimeout.
func (c *core) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.BackendTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.BackendTimeout)
}

func (c *core) observe(backend, op string, start time.Time, err error) {
	c.metrics.ObserveBackend(backend, op, start, err)
}

func (c *core) invalidate(ctx context.Context) {
	c.listing.InvalidateSearch(ctx)
}
