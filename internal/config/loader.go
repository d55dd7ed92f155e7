package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/stockimport/internal/core"
)

// lookupFunc resolves an environment variable. os.LookupEnv in production.
type lookupFunc func(string) (string, bool)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	return load(os.LookupEnv)
}

func load(lookup lookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

var durationType = reflect.TypeOf(time.Duration(0))

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value, lookup lookupFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value, _ := lookup(envName)
		value = strings.TrimSpace(value)
		if value == "" && envAlt != "" {
			alt, _ := lookup(envAlt)
			value = strings.TrimSpace(alt)
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		if field.Kind() == reflect.Int64 {
			n, err := parseByteSize(value)
			if err != nil {
				return err
			}
			field.SetInt(n)
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

var byteUnits = []struct {
	suffix string
	mult   int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// parseByteSize parses "52428800", "50MB" or "512kb".
func parseByteSize(value string) (int64, error) {
	upper := strings.ToUpper(strings.TrimSpace(value))
	mult := int64(1)
	for _, u := range byteUnits {
		if strings.HasSuffix(upper, u.suffix) {
			upper = strings.TrimSpace(strings.TrimSuffix(upper, u.suffix))
			mult = u.mult
			break
		}
	}
	n, err := strconv.ParseInt(upper, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %w", err)
	}
	return n * mult, nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, "SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres driver")
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: memory, sqlite, postgres", c.Database.Driver))
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Import validation
	if c.Import.MaxFileSize <= 0 {
		errs = append(errs, "IMPORT_MAX_FILE_SIZE must be positive")
	}
	if c.Import.MaxConcurrent <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxPerTenant < 0 {
		errs = append(errs, "IMPORT_MAX_PER_TENANT must be non-negative")
	}
	if c.Import.MaxWaitTime <= 0 {
		errs = append(errs, "IMPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Import.ProgressEvery <= 0 {
		errs = append(errs, "IMPORT_PROGRESS_EVERY must be positive")
	}
	if c.Import.JobRetention <= 0 {
		errs = append(errs, "IMPORT_JOB_RETENTION must be positive")
	}
	if c.Import.HistoryRetention <= 0 {
		errs = append(errs, "IMPORT_HISTORY_RETENTION must be positive")
	}
	if c.Import.SweepInterval <= 0 {
		errs = append(errs, "IMPORT_SWEEP_INTERVAL must be positive")
	}

	// Transport validation
	if c.Transport.PushRows <= 0 || c.Transport.PushSizeBytes <= 0 || c.Transport.PushDuration <= 0 {
		errs = append(errs, "TRANSPORT_PUSH_ROWS, TRANSPORT_PUSH_SIZE and TRANSPORT_PUSH_DURATION must be positive")
	}
	if c.Transport.ComplexRows < c.Transport.MediumRows {
		errs = append(errs, fmt.Sprintf("TRANSPORT_COMPLEX_ROWS (%d) must be >= TRANSPORT_MEDIUM_ROWS (%d)",
			c.Transport.ComplexRows, c.Transport.MediumRows))
	}

	// Redis validation
	if c.Redis.URL != "" && c.Redis.JobTTL <= 0 {
		errs = append(errs, "REDIS_JOB_TTL must be positive when REDIS_URL is set")
	}

	// Notification validation
	switch c.Notify.Driver {
	case NotifyNone, NotifyLog:
	case NotifySNS:
		if c.Notify.TopicARN == "" {
			errs = append(errs, "SNS_TOPIC_ARN is required for the sns notify driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("NOTIFY_DRIVER (%q) must be one of: none, log, sns", c.Notify.Driver))
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.UploadLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}
	if c.Security.DefaultTenant == "" {
		errs = append(errs, "DEFAULT_TENANT must not be empty")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ServiceConfig maps the import settings onto the core service tunables.
func (c *Config) ServiceConfig() core.Config {
	return core.Config{
		MaxFileSize:      c.Import.MaxFileSize,
		MaxConcurrent:    c.Import.MaxConcurrent,
		MaxPerTenant:     c.Import.MaxPerTenant,
		MaxWait:          c.Import.MaxWaitTime,
		ProgressEvery:    c.Import.ProgressEvery,
		ProgressInterval: c.Import.ProgressInterval,
		JobRetention:     c.Import.JobRetention,
		Estimator: core.EstimatorConfig{
			CSVBytesPerRow:  c.Transport.CSVBytesPerRow,
			XLSXBytesPerRow: c.Transport.XLSXBytesPerRow,
			SimpleRowCost:   c.Transport.SimpleRowCost,
			MediumRowCost:   c.Transport.MediumRowCost,
			ComplexRowCost:  c.Transport.ComplexRowCost,
			MediumRows:      c.Transport.MediumRows,
			ComplexRows:     c.Transport.ComplexRows,
			PushSizeBytes:   c.Transport.PushSizeBytes,
			PushRows:        c.Transport.PushRows,
			PushDuration:    c.Transport.PushDuration,
		},
	}
}

// RetentionConfig returns the history sweep settings.
func (c *Config) RetentionConfig() core.RetentionConfig {
	return core.RetentionConfig{
		MaxAge:        c.Import.HistoryRetention,
		CheckInterval: c.Import.SweepInterval,
	}
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {Driver: %q, URL: %s, MaxConns: %d, MinConns: %d}, ",
		c.Database.Driver, mask(c.Database.URL), c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Redis: {URL: %s, JobTTL: %s}, ", mask(c.Redis.URL), c.Redis.JobTTL)
	fmt.Fprintf(&b, "Import: {MaxFileSize: %d, MaxConcurrent: %d, MaxPerTenant: %d}, ",
		c.Import.MaxFileSize, c.Import.MaxConcurrent, c.Import.MaxPerTenant)
	fmt.Fprintf(&b, "Notify: {Driver: %q}, ", c.Notify.Driver)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[unset]"
	}
	return "[MASKED]"
}
