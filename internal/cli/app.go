package cli

import (
	"context"
	"fmt"

	"BucketDash/config"
	"BucketDash/internal/cache"
	"BucketDash/internal/metrics"
	"BucketDash/internal/notify"
	"BucketDash/internal/repo"
	"BucketDash/internal/service"
	"BucketDash/internal/storage"
	"BucketDash/internal/thumbnail"
	"BucketDash/router"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// app holds the clients built once from config and shared by every component.
type app struct {
	cfg      *config.Config
	store    storage.Store
	files    repo.FileRepository
	tasks    repo.TaskRepository
	metrics  *metrics.Metrics
	services *service.Services
	mailer   notify.Mailer
	checks   map[string]router.HealthCheck
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: metrics.New(),
		checks:  make(map[string]router.HealthCheck),
		mailer:  notify.NopMailer{},
	}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openMetadata(); err != nil {
		a.Close()
		return nil, err
	}

	var rdb *redis.Client
	if cfg.StorageBackend != "memory" && cfg.RedisAddr() != "" {
		client, err := repo.OpenRedis(ctx, repo.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable; using in-process cache and locks")
		} else {
			rdb = client
			a.closers = append(a.closers, func() { _ = client.Close() })
			a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		}
	}

	var (
		backing cache.Cache          = cache.NewMemoryCache()
		locker  service.PrefixLocker = service.NewLocalPrefixLocker()
	)
	if rdb != nil {
		backing = cache.NewRedisCache(rdb)
		locker = service.NewRedisPrefixLocker(rdb, 0)
	}

	if cfg.SMTPConfigured() {
		mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Pass:     cfg.SMTPPass,
			From:     cfg.SMTPFrom,
			TLS:      cfg.SMTPTLS,
			StartTLS: cfg.SMTPStartTLS,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.mailer = mailer
	}

	a.services = service.New(service.Deps{
		Store:   a.store,
		Files:   a.files,
		Thumbs:  thumbnail.NewImagingDeriver(),
		Listing: cache.NewListingCache(backing, cfg.SearchCacheTTL, cfg.CursorTTL),
		Metrics: a.metrics,
		Locker:  locker,
		Options: service.Options{
			AdminRole:      cfg.AdminRole,
			BackendTimeout: cfg.BackendTimeout,
			MaxUploadBytes: cfg.MaxUploadBytes,
			ListingMaxPage: cfg.ListingMaxPage,
			PublicBaseURL:  cfg.PublicBaseURL,
			PresignExpiry:  cfg.PresignExpiry,
		},
	})
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	cfg := a.cfg
	switch cfg.StorageBackend {
	case "minio":
		store, err := storage.OpenMinio(ctx, storage.MinioConfig{
			Host:     cfg.MinioHost,
			Port:     cfg.MinioPort,
			Username: cfg.MinioUsername,
			Password: cfg.MinioPassword,
			UseSSL:   cfg.MinioUseSSL,
			Bucket:   cfg.BucketName,
		})
		if err != nil {
			return err
		}
		a.store = store
	case "s3":
		store, err := storage.OpenS3(ctx, storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
			Bucket:    cfg.BucketName,
		})
		if err != nil {
			return err
		}
		a.store = store
	case "memory":
		log.Warn().Msg("memory backend: objects and metadata are lost on exit")
		a.store = storage.NewMemoryStore()
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	store := a.store
	a.checks["store"] = func(ctx context.Context) error {
		_, err := store.ListPage(ctx, storage.ListOptions{MaxKeys: 1})
		return err
	}
	return nil
}

func (a *app) openMetadata() error {
	if a.cfg.StorageBackend == "memory" {
		a.files = repo.NewMemoryFileRepository()
		a.tasks = repo.NewMemoryTaskRepository()
		return nil
	}
	db, err := repo.OpenMySQL(repo.MySQLConfig{
		DSN:       a.cfg.MySQLDSN(),
		ServerDSN: a.cfg.MySQLServerDSN(),
		DBName:    a.cfg.DBName,
	})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = sqlDB.Close() })
	a.checks["metadata"] = sqlDB.PingContext
	a.files = repo.NewGormFileRepository(db)
	a.tasks = repo.NewGormTaskRepository(db)
	return nil
}
