// Package config loads the import service configuration from environment
// variables. Defaults cover a single-node development setup with the
// in-memory store; Validate fails fast on anything inconsistent.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Import    ImportConfig
	Transport TransportConfig
	Headers   HeadersConfig
	Notify    NotifyConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout bounds reading a request, upload body included (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is 0 so event streams stay open (default: 0s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds the graceful drain of running imports (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and tunes the entity store.
type DatabaseConfig struct {
	// Driver is memory, sqlite or postgres (default: memory)
	Driver string `env:"DB_DRIVER" default:"memory"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SQLitePath is the database file for the sqlite driver (default: stockimport.db)
	SQLitePath string `env:"SQLITE_PATH" default:"stockimport.db"`

	// MaxConns is the maximum number of pooled connections (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the number of connections kept open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime closes connections idle this long (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RedisConfig enables shared job state and cross-instance push updates.
// An empty URL keeps both in process.
type RedisConfig struct {
	URL string `env:"REDIS_URL"`

	// JobTTL is how long finished and running job state is kept (default: 24h)
	JobTTL time.Duration `env:"REDIS_JOB_TTL" default:"24h"`

	// ChannelPrefix namespaces the progress channels (default: stockimport:progress:)
	ChannelPrefix string `env:"REDIS_CHANNEL_PREFIX" default:"stockimport:progress:"`
}

// ImportConfig holds job execution limits.
type ImportConfig struct {
	// MaxFileSize is the upload limit in bytes; accepts KB/MB/GB suffixes (default: 50MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" envAlt:"UPLOAD_MAX_FILE_SIZE" default:"50MB"`

	// MaxConcurrent is the number of jobs run at once (default: 4)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"4"`

	// MaxPerTenant caps one tenant's share of the slots; 0 disables (default: 2)
	MaxPerTenant int `env:"IMPORT_MAX_PER_TENANT" default:"2"`

	// MaxWaitTime is how long an upload waits for a slot (default: 10s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"10s"`

	// ProgressEvery publishes progress at least every N rows (default: 100)
	ProgressEvery int `env:"IMPORT_PROGRESS_EVERY" default:"100"`

	// ProgressInterval publishes progress at least this often (default: 500ms)
	ProgressInterval time.Duration `env:"IMPORT_PROGRESS_INTERVAL" default:"500ms"`

	// JobRetention keeps finished jobs cancellable and waitable in memory (default: 5m)
	JobRetention time.Duration `env:"IMPORT_JOB_RETENTION" default:"5m"`

	// HistoryRetention is how long job records and audit rows are kept (default: 168h)
	HistoryRetention time.Duration `env:"IMPORT_HISTORY_RETENTION" default:"168h"`

	// SweepInterval is how often expired history is removed (default: 1h)
	SweepInterval time.Duration `env:"IMPORT_SWEEP_INTERVAL" default:"1h"`
}

// TransportConfig holds the poll/push recommendation thresholds.
type TransportConfig struct {
	CSVBytesPerRow  int `env:"TRANSPORT_CSV_BYTES_PER_ROW" default:"120"`
	XLSXBytesPerRow int `env:"TRANSPORT_XLSX_BYTES_PER_ROW" default:"45"`

	SimpleRowCost  time.Duration `env:"TRANSPORT_SIMPLE_ROW_COST" default:"2ms"`
	MediumRowCost  time.Duration `env:"TRANSPORT_MEDIUM_ROW_COST" default:"5ms"`
	ComplexRowCost time.Duration `env:"TRANSPORT_COMPLEX_ROW_COST" default:"12ms"`

	MediumRows  int `env:"TRANSPORT_MEDIUM_ROWS" default:"1000"`
	ComplexRows int `env:"TRANSPORT_COMPLEX_ROWS" default:"20000"`

	// Any one of these recommends push.
	PushSizeBytes int64         `env:"TRANSPORT_PUSH_SIZE" default:"5MB"`
	PushRows      int           `env:"TRANSPORT_PUSH_ROWS" default:"5000"`
	PushDuration  time.Duration `env:"TRANSPORT_PUSH_DURATION" default:"30s"`
}

// HeadersConfig points at an optional alias dictionary file.
type HeadersConfig struct {
	// AliasFile is a YAML or JSON file replacing built-in header aliases
	AliasFile string `env:"HEADER_ALIAS_FILE"`
}

// Notification drivers.
const (
	NotifyNone = "none"
	NotifyLog  = "log"
	NotifySNS  = "sns"
)

// NotifyConfig selects where completion notifications go.
type NotifyConfig struct {
	// Driver is none, log or sns (default: log)
	Driver string `env:"NOTIFY_DRIVER" default:"log"`

	// TopicARN is the SNS topic, required for the sns driver
	TopicARN string `env:"SNS_TOPIC_ARN"`

	// Region overrides the AWS region from the default credential chain
	Region string `env:"AWS_REGION"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the limit per client IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is uploads per minute per client IP (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey rejects requests without a valid key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// AllowedOrigins is the CORS origin list (default: *)
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"*"`

	// DefaultTenant is used when a request carries no X-Tenant-ID (default: default)
	DefaultTenant string `env:"DEFAULT_TENANT" default:"default"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
