package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is built once at startup and handed to every component that needs it.
type Config struct {
	HTTPAddr  string `mapstructure:"http_addr" validate:"required"`
	LogLevel  string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"required,oneof=console json"`
	JWTSecret string `mapstructure:"jwt_secret" validate:"required"`
	AdminRole string `mapstructure:"admin_role" validate:"required"`
	// CORSOrigins limits browser origins; empty allows any.
	CORSOrigins []string `mapstructure:"cors_origins"`

	DBHost string `mapstructure:"db_host" validate:"required"`
	DBPort string `mapstructure:"db_port" validate:"required"`
	DBUser string `mapstructure:"db_user"`
	DBPass string `mapstructure:"db_pass"`
	DBName string `mapstructure:"db_name" validate:"required"`

	RedisHost     string `mapstructure:"redis_host"`
	RedisPort     string `mapstructure:"redis_port"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0"`

	// StorageBackend selects the object store implementation.
	StorageBackend string `mapstructure:"storage_backend" validate:"required,oneof=minio s3 memory"`
	BucketName     string `mapstructure:"bucket_name" validate:"required"`

	MinioHost     string `mapstructure:"minio_host"`
	MinioPort     string `mapstructure:"minio_port"`
	MinioUsername string `mapstructure:"minio_username"`
	MinioPassword string `mapstructure:"minio_password"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`

	// S3 settings also cover R2 and other S3-compatible endpoints.
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3Region    string `mapstructure:"s3_region"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3PathStyle bool   `mapstructure:"s3_path_style"`

	PublicBaseURL  string        `mapstructure:"public_base_url"`
	PresignExpiry  time.Duration `mapstructure:"presign_expiry" validate:"gt=0"`
	BackendTimeout time.Duration `mapstructure:"backend_timeout" validate:"gt=0"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
	ListingMaxPage int           `mapstructure:"listing_max_page" validate:"gt=0,lte=1000"`
	SearchCacheTTL time.Duration `mapstructure:"search_cache_ttl"`
	CursorTTL      time.Duration `mapstructure:"cursor_ttl"`

	RabbitMQURL               string          `mapstructure:"rabbitmq_url"`
	RabbitMQHost              string          `mapstructure:"rabbitmq_host"`
	RabbitMQPort              string          `mapstructure:"rabbitmq_port"`
	RabbitMQUser              string          `mapstructure:"rabbitmq_user"`
	RabbitMQPass              string          `mapstructure:"rabbitmq_password"`
	RabbitMQVhost             string          `mapstructure:"rabbitmq_vhost"`
	RabbitMQPrefetch          int             `mapstructure:"rabbitmq_prefetch"`
	FolderDeleteAsync         bool            `mapstructure:"folder_delete_async"`
	FolderWorkerConcurrency   int             `mapstructure:"folder_worker_concurrency"`
	FolderWorkerRate          float64         `mapstructure:"folder_worker_rate"`
	FolderWorkerBurst         int             `mapstructure:"folder_worker_burst"`
	FolderDeleteRetryMax      int             `mapstructure:"folder_delete_retry_max" validate:"gte=0"`
	FolderDeleteRetryDelays   []time.Duration `mapstructure:"folder_delete_retry_delays"`
	FolderDeleteReportAddress string          `mapstructure:"folder_delete_report_address"`

	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     string `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPass     string `mapstructure:"smtp_pass"`
	SMTPFrom     string `mapstructure:"smtp_from"`
	SMTPTLS      bool   `mapstructure:"smtp_tls"`
	SMTPStartTLS bool   `mapstructure:"smtp_starttls"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("jwt_secret", "l=ax+b")
	v.SetDefault("admin_role", "admin")
	v.SetDefault("cors_origins", []string{})

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "3306")
	v.SetDefault("db_user", "root")
	v.SetDefault("db_pass", "root")
	v.SetDefault("db_name", "bucket_dash")

	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", "6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("storage_backend", "minio")
	v.SetDefault("bucket_name", "bucketdash")
	v.SetDefault("minio_host", "localhost")
	v.SetDefault("minio_port", "9000")
	v.SetDefault("minio_username", "minioadmin")
	v.SetDefault("minio_password", "minioadmin")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_region", "auto")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")
	v.SetDefault("s3_path_style", false)

	v.SetDefault("public_base_url", "")
	v.SetDefault("presign_expiry", 10*time.Minute)
	v.SetDefault("backend_timeout", 15*time.Second)
	v.SetDefault("max_upload_bytes", int64(50*1024*1024))
	v.SetDefault("listing_max_page", 200)
	v.SetDefault("search_cache_ttl", 30*time.Second)
	v.SetDefault("cursor_ttl", 30*time.Minute)

	v.SetDefault("rabbitmq_url", "")
	v.SetDefault("rabbitmq_host", "localhost")
	v.SetDefault("rabbitmq_port", "5672")
	v.SetDefault("rabbitmq_user", "guest")
	v.SetDefault("rabbitmq_password", "guest")
	v.SetDefault("rabbitmq_vhost", "/")
	v.SetDefault("rabbitmq_prefetch", 4)
	v.SetDefault("folder_delete_async", false)
	v.SetDefault("folder_worker_concurrency", 2)
	v.SetDefault("folder_worker_rate", 1.0)
	v.SetDefault("folder_worker_burst", 2)
	v.SetDefault("folder_delete_retry_max", 3)
	v.SetDefault("folder_delete_retry_delays", []time.Duration{30 * time.Second, 2 * time.Minute, 10 * time.Minute})
	v.SetDefault("folder_delete_report_address", "")

	v.SetDefault("smtp_host", "")
	v.SetDefault("smtp_port", "")
	v.SetDefault("smtp_user", "")
	v.SetDefault("smtp_pass", "")
	v.SetDefault("smtp_from", "")
	v.SetDefault("smtp_tls", false)
	v.SetDefault("smtp_starttls", false)
}

// Load reads defaults, an optional config file and the environment, in that order.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.RabbitMQURL == "" {
		cfg.RabbitMQURL = fmt.Sprintf(
			"amqp://%s:%s@%s:%s/%s",
			url.PathEscape(cfg.RabbitMQUser),
			url.PathEscape(cfg.RabbitMQPass),
			cfg.RabbitMQHost,
			cfg.RabbitMQPort,
			url.PathEscape(cfg.RabbitMQVhost),
		)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags plus the per-backend requirements tags can't express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.StorageBackend {
	case "minio":
		if c.MinioHost == "" || c.MinioPort == "" {
			return fmt.Errorf("invalid config: minio_host and minio_port required for minio backend")
		}
	case "s3":
		if c.S3Endpoint == "" && c.S3Region == "" {
			return fmt.Errorf("invalid config: s3_endpoint or s3_region required for s3 backend")
		}
	}
	if c.PublicBaseURL != "" {
		if _, err := url.Parse(c.PublicBaseURL); err != nil {
			return fmt.Errorf("invalid config: public_base_url: %w", err)
		}
	}
	return nil
}

// MySQLDSN returns the gorm/mysql connection string.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.DBUser,
		c.DBPass,
		c.DBHost,
		c.DBPort,
		c.DBName,
	)
}

// MySQLServerDSN connects to the server without selecting a database.
func (c *Config) MySQLServerDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/?charset=utf8mb4&parseTime=True&loc=Local",
		c.DBUser,
		c.DBPass,
		c.DBHost,
		c.DBPort,
	)
}

// RedisAddr returns host:port, or "" when redis is not configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// SMTPConfigured reports whether task report mails can be sent.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPPort != "" && c.SMTPFrom != ""
}
