package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	RelayNone  = "none"
	RelayRedis = "redis"
	RelayNATS  = "nats"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	ServerPort   int
	JWTSecretKey string
	BaseDomain   string
	CORSOrigins  []string

	// Master tenant catalog. Empty means an in-memory catalog seeded from
	// SeedTenants.
	CatalogDatabaseURL string
	SeedTenants        []string

	TenantStoreDriver   string
	TenantDSNTemplate   string
	MongoURI            string
	MaxTenants          int
	TenantIdleTTL       time.Duration
	TenantSweepInterval time.Duration
	ConnectTimeout      time.Duration

	EventRelay  string
	RedisURL    string
	NATSURL     string
	RelayPrefix string

	ScoringConfigPath string

	LogFormat     string
	LogLevel      string
	LogDir        string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	HistoryEndpoint        string
	HistoryRegion          string
	HistoryAccessKeyID     string
	HistorySecretAccessKey string
	HistoryBucket          string
	HistoryPublicBaseURL   string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		JWTSecretKey:       os.Getenv("JWT_SECRET_KEY"),
		BaseDomain:         os.Getenv("BASE_DOMAIN"),
		CORSOrigins:        getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CatalogDatabaseURL: os.Getenv("CATALOG_DATABASE_URL"),
		SeedTenants:        getList("SEED_TENANTS", nil),

		TenantStoreDriver: getString("TENANT_STORE_DRIVER", StoreMemory),
		TenantDSNTemplate: os.Getenv("TENANT_DSN_TEMPLATE"),
		MongoURI:          os.Getenv("MONGO_URI"),

		EventRelay:  getString("EVENT_RELAY", RelayNone),
		RedisURL:    os.Getenv("REDIS_URL"),
		NATSURL:     os.Getenv("NATS_URL"),
		RelayPrefix: getString("RELAY_PREFIX", "tournament.events"),

		ScoringConfigPath: os.Getenv("SCORING_CONFIG_PATH"),

		LogFormat: getString("LOG_FORMAT", "json"),
		LogLevel:  getString("LOG_LEVEL", "info"),
		LogDir:    os.Getenv("LOG_DIR"),

		HistoryEndpoint:        os.Getenv("HISTORY_S3_ENDPOINT"),
		HistoryRegion:          os.Getenv("HISTORY_S3_REGION"),
		HistoryAccessKeyID:     os.Getenv("HISTORY_S3_ACCESS_KEY_ID"),
		HistorySecretAccessKey: os.Getenv("HISTORY_S3_SECRET_ACCESS_KEY"),
		HistoryBucket:          os.Getenv("HISTORY_S3_BUCKET"),
		HistoryPublicBaseURL:   os.Getenv("HISTORY_S3_PUBLIC_BASE_URL"),
	}

	var err error
	if cfg.ServerPort, err = getInt("SERVER_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.MaxTenants, err = getInt("MAX_TENANTS", 64); err != nil {
		return nil, err
	}
	if cfg.LogMaxSizeMB, err = getInt("LOG_MAX_SIZE_MB", 100); err != nil {
		return nil, err
	}
	if cfg.LogMaxBackups, err = getInt("LOG_MAX_BACKUPS", 5); err != nil {
		return nil, err
	}
	if cfg.LogMaxAgeDays, err = getInt("LOG_MAX_AGE_DAYS", 14); err != nil {
		return nil, err
	}
	if cfg.TenantIdleTTL, err = getDuration("TENANT_IDLE_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TenantSweepInterval, err = getDuration("TENANT_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout, err = getDuration("CONNECT_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RegisterFlags binds command-line overrides to cfg. Defaults are the
// values already loaded from the environment.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.ServerPort, "port", c.ServerPort, "HTTP listen port")
	fs.StringVar(&c.TenantStoreDriver, "store", c.TenantStoreDriver, "tenant store driver: memory, postgres or mongo")
	fs.StringVar(&c.EventRelay, "relay", c.EventRelay, "cross-instance event relay: none, redis or nats")
	fs.StringVar(&c.ScoringConfigPath, "scoring", c.ScoringConfigPath, "path to the default scoring policy (YAML)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: json or text")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn or error")
	fs.IntVar(&c.MaxTenants, "max-tenants", c.MaxTenants, "number of tenant stores kept open")
	fs.DurationVar(&c.TenantIdleTTL, "tenant-idle-ttl", c.TenantIdleTTL, "close tenant stores unused for this long (0 disables)")
	fs.StringSliceVar(&c.SeedTenants, "seed-tenant", c.SeedTenants, "tenant slug registered in the in-memory catalog (repeatable)")
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	if c.JWTSecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	if c.MaxTenants < 1 {
		return fmt.Errorf("MAX_TENANTS must be positive, got %d", c.MaxTenants)
	}

	switch c.TenantStoreDriver {
	case StoreMemory:
	case StorePostgres:
		if !strings.Contains(c.TenantDSNTemplate, "{db}") {
			return fmt.Errorf("TENANT_DSN_TEMPLATE must contain the {db} placeholder for the postgres driver")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown TENANT_STORE_DRIVER %q", c.TenantStoreDriver)
	}

	switch c.EventRelay {
	case RelayNone:
	case RelayRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis relay")
		}
	case RelayNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required for the nats relay")
		}
	default:
		return fmt.Errorf("unknown EVENT_RELAY %q", c.EventRelay)
	}

	if c.CatalogDatabaseURL == "" && len(c.SeedTenants) == 0 {
		return fmt.Errorf("either CATALOG_DATABASE_URL or SEED_TENANTS must be set")
	}
	return nil
}

// HistoryEnabled reports whether match history objects should be written.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryBucket != ""
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func getList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
