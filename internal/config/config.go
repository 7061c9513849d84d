package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PaulBabatuyi/filesync/internal/database"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	AppEnv      string `mapstructure:"APP_ENV"`
	Port        string `mapstructure:"PORT"`
	MetricsPort string `mapstructure:"METRICS_PORT"`
	UploadDir   string `mapstructure:"UPLOAD_DIR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	MaxUploadBytes       int64 `mapstructure:"MAX_UPLOAD_BYTES"`
	MaxConcurrentWrites  int64 `mapstructure:"MAX_CONCURRENT_WRITES"`
	AllowAnonymousDelete bool  `mapstructure:"ALLOW_ANONYMOUS_DELETE"`

	AdminUsername string `mapstructure:"ADMIN_USERNAME"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`

	AuthRateLimit    float64       `mapstructure:"AUTH_RATE_LIMIT"`
	AuthRateBurst    int           `mapstructure:"AUTH_RATE_BURST"`
	PreviewCacheSize int           `mapstructure:"PREVIEW_CACHE_SIZE"`
	PreviewCacheTTL  time.Duration `mapstructure:"PREVIEW_CACHE_TTL"`

	ReconcileInterval time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	OrphanGrace       time.Duration `mapstructure:"ORPHAN_GRACE"`
	TracingEnabled    bool          `mapstructure:"TRACING_ENABLED"`
}

var defaults = map[string]any{
	"APP_ENV":                EnvDevelopment,
	"PORT":                   "3001",
	"METRICS_PORT":           "9090",
	"UPLOAD_DIR":             "uploads",
	"DATABASE_URL":           "",
	"MAX_UPLOAD_BYTES":       int64(50 << 20),
	"MAX_CONCURRENT_WRITES":  int64(0),
	"ALLOW_ANONYMOUS_DELETE": false,
	"ADMIN_USERNAME":         "admin",
	"ADMIN_PASSWORD":         "123456",
	"AUTH_RATE_LIMIT":        1.0,
	"AUTH_RATE_BURST":        10,
	"PREVIEW_CACHE_SIZE":     256,
	"PREVIEW_CACHE_TTL":      10 * time.Minute,
	"RECONCILE_INTERVAL":     10 * time.Minute,
	"ORPHAN_GRACE":           time.Hour,
	"TRACING_ENABLED":        false,
}

// String prints the config with secrets masked.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  AppEnv: %s\n", c.AppEnv))
	sb.WriteString(fmt.Sprintf("  Port: %s\n", c.Port))
	sb.WriteString(fmt.Sprintf("  MetricsPort: %s\n", c.MetricsPort))
	sb.WriteString(fmt.Sprintf("  UploadDir: %s\n", c.UploadDir))

	driver, _ := c.Database()
	sb.WriteString(fmt.Sprintf("  Database: %s\n", driver))
	if c.DatabaseURL != "" {
		sb.WriteString("  DatabaseURL: ********\n")
	}

	sb.WriteString(fmt.Sprintf("  MaxUploadBytes: %d\n", c.MaxUploadBytes))
	sb.WriteString(fmt.Sprintf("  MaxConcurrentWrites: %d\n", c.MaxConcurrentWrites))
	sb.WriteString(fmt.Sprintf("  AllowAnonymousDelete: %v\n", c.AllowAnonymousDelete))
	sb.WriteString(fmt.Sprintf("  AdminUsername: %s\n", c.AdminUsername))
	if c.AdminPassword != "" {
		sb.WriteString("  AdminPassword: ********\n")
	} else {
		sb.WriteString("  AdminPassword: (empty)\n")
	}
	sb.WriteString(fmt.Sprintf("  AuthRateLimit: %g/s burst %d\n", c.AuthRateLimit, c.AuthRateBurst))
	sb.WriteString(fmt.Sprintf("  PreviewCache: %d entries, ttl %s\n", c.PreviewCacheSize, c.PreviewCacheTTL))
	sb.WriteString(fmt.Sprintf("  ReconcileInterval: %s\n", c.ReconcileInterval))
	sb.WriteString(fmt.Sprintf("  OrphanGrace: %s\n", c.OrphanGrace))
	sb.WriteString(fmt.Sprintf("  TracingEnabled: %v\n", c.TracingEnabled))
	return sb.String()
}

// LoadFromEnv reads configuration from the environment, loading .env first
// when one exists in the working directory.
func LoadFromEnv() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, errors.New("failed to load .env")
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, def := range defaults {
		v.SetDefault(k, def)
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool { return c.AppEnv != EnvProduction }

// Database selects the metadata store: Postgres when DATABASE_URL is set,
// otherwise a SQLite file whose location depends on APP_ENV.
func (c *Config) Database() (driver, dsn string) {
	if c.DatabaseURL != "" {
		return database.DriverPostgres, c.DatabaseURL
	}
	path := "./database.db"
	if c.AppEnv == EnvProduction {
		path = "/tmp/database.db"
	}
	return database.DriverSQLite, database.SQLiteDSN(path)
}

func (c *Config) validate() error {
	if c.AppEnv != EnvDevelopment && c.AppEnv != EnvProduction {
		return fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.AppEnv)
	}
	if c.Port == "" {
		return errors.New("PORT must not be empty")
	}
	if c.UploadDir == "" {
		return errors.New("UPLOAD_DIR must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.AuthRateLimit < 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT must not be negative, got %g", c.AuthRateLimit)
	}
	if c.ReconcileInterval < 0 || c.OrphanGrace < 0 {
		return errors.New("RECONCILE_INTERVAL and ORPHAN_GRACE must not be negative")
	}
	return nil
}
