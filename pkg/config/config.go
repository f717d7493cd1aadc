package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers supported for invoice documents.
const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

type Config struct {
	Env         string
	Port        int
	APIPrefix   string
	AutoMigrate bool

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Cache    CacheConfig
	Referral ReferralConfig
	Invoices InvoiceConfig
	S3       S3Config
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	MigrationsDir string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to verify access tokens issued by the identity service.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig governs the Redis read-model cache and its TTLs.
type CacheConfig struct {
	Enabled        bool
	CourseTTL      time.Duration
	EnrollmentsTTL time.Duration
	SettingsTTL    time.Duration
}

// ReferralConfig supplies defaults used until referral settings are persisted.
type ReferralConfig struct {
	DiscountPercentage string
	PointsPerReferral  int
}

// InvoiceConfig configures invoice documents and the reconciliation worker.
type InvoiceConfig struct {
	StorageDriver     string
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	ReconcileSchedule string
	ReconcileBatch    int
	WorkerConcurrency int
	WorkerRetries     int
	WorkerRetryDelay  time.Duration
}

// S3Config points invoice storage at an S3 compatible bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *fs.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.AutoMigrate = v.GetBool("AUTO_MIGRATE")

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrationsDir: v.GetString("DB_MIGRATIONS_DIR"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled:        v.GetBool("CACHE_ENABLED"),
		CourseTTL:      parseDuration(v.GetString("COURSE_CACHE_TTL"), 10*time.Minute),
		EnrollmentsTTL: parseDuration(v.GetString("ENROLLMENTS_CACHE_TTL"), 5*time.Minute),
		SettingsTTL:    parseDuration(v.GetString("SETTINGS_CACHE_TTL"), time.Minute),
	}

	cfg.Referral = ReferralConfig{
		DiscountPercentage: v.GetString("REFERRAL_DISCOUNT_PERCENTAGE"),
		PointsPerReferral:  v.GetInt("REFERRAL_POINTS_PER_REFERRAL"),
	}

	cfg.Invoices = InvoiceConfig{
		StorageDriver:     strings.ToLower(v.GetString("INVOICE_STORAGE_DRIVER")),
		StorageDir:        v.GetString("INVOICE_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("INVOICE_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("INVOICE_SIGNED_URL_TTL"), 15*time.Minute),
		ReconcileSchedule: v.GetString("INVOICE_RECONCILE_SCHEDULE"),
		ReconcileBatch:    v.GetInt("INVOICE_RECONCILE_BATCH"),
		WorkerConcurrency: v.GetInt("INVOICE_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("INVOICE_WORKER_RETRIES"),
		WorkerRetryDelay:  parseDuration(v.GetString("INVOICE_WORKER_RETRY_DELAY"), 5*time.Second),
	}

	cfg.S3 = S3Config{
		Endpoint:  v.GetString("S3_ENDPOINT"),
		Region:    v.GetString("S3_REGION"),
		Bucket:    v.GetString("S3_BUCKET"),
		AccessKey: v.GetString("S3_ACCESS_KEY"),
		SecretKey: v.GetString("S3_SECRET_KEY"),
		PathStyle: v.GetBool("S3_FORCE_PATH_STYLE"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("AUTO_MIGRATE", false)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "rdc_learning")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MIGRATIONS_DIR", "")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("COURSE_CACHE_TTL", "10m")
	v.SetDefault("ENROLLMENTS_CACHE_TTL", "5m")
	v.SetDefault("SETTINGS_CACHE_TTL", "1m")

	v.SetDefault("REFERRAL_DISCOUNT_PERCENTAGE", "10")
	v.SetDefault("REFERRAL_POINTS_PER_REFERRAL", 10)

	v.SetDefault("INVOICE_STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("INVOICE_STORAGE_DIR", "./invoices")
	v.SetDefault("INVOICE_SIGNED_URL_SECRET", "dev_invoice_secret")
	v.SetDefault("INVOICE_SIGNED_URL_TTL", "15m")
	v.SetDefault("INVOICE_RECONCILE_SCHEDULE", "@every 1m")
	v.SetDefault("INVOICE_RECONCILE_BATCH", 50)
	v.SetDefault("INVOICE_WORKER_CONCURRENCY", 2)
	v.SetDefault("INVOICE_WORKER_RETRIES", 3)
	v.SetDefault("INVOICE_WORKER_RETRY_DELAY", "5s")

	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_REGION", "ap-southeast-1")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("S3_FORCE_PATH_STYLE", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
