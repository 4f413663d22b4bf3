package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 20 * time.Second
	defaultStoreDriver     = StoreDriverMemory
	defaultMySQLPort       = 3306
	defaultMySQLMaxConns   = 20
	defaultLockDriver      = LockDriverMemory
	defaultLockTTL         = 10 * time.Second
	defaultLockWait        = 5 * time.Second
	defaultEventsDriver    = EventsDriverNone
	defaultEventsTopic     = "webshop.orders"
	defaultTokenTTL        = 12 * time.Hour
	defaultTokenIssuer     = "webshop-api"
	defaultIdemDriver      = IdempotencyDriverMemory
	defaultIdemTTL         = 24 * time.Hour
	defaultIdemCleanup     = 10 * time.Minute
	defaultIdemBatch       = 200
)

// Supported store drivers.
const (
	StoreDriverMemory    = "memory"
	StoreDriverFirestore = "firestore"
	StoreDriverMySQL     = "mysql"
)

// Supported lock drivers.
const (
	LockDriverMemory = "memory"
	LockDriverRedis  = "redis"
)

// Supported event drivers.
const (
	EventsDriverNone   = "none"
	EventsDriverPubSub = "pubsub"
	EventsDriverKafka  = "kafka"
)

// Supported idempotency record stores.
const (
	IdempotencyDriverMemory    = "memory"
	IdempotencyDriverRedis     = "redis"
	IdempotencyDriverFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Firestore FirestoreConfig
	MySQL     MySQLConfig
	Redis     RedisConfig
	Locking   LockingConfig
	Events    EventsConfig
	Auth      AuthConfig
	Idem      IdempotencyConfig
	Seed      SeedConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID       string
	EmulatorHost    string
	CredentialsFile string
}

// MySQLConfig describes the relational store connection.
type MySQLConfig struct {
	DSN          string
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LockingConfig controls per-order mutual exclusion.
type LockingConfig struct {
	Driver string
	TTL    time.Duration
	Wait   time.Duration
}

// EventsConfig configures order event publication.
type EventsConfig struct {
	Driver        string
	PubSubProject string
	Topic         string
	KafkaBrokers  []string
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	Issuer    string
}

// IdempotencyConfig controls replay protection for checkout and order commands.
type IdempotencyConfig struct {
	Driver           string
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SeedConfig points at an optional fixture file applied to an empty store.
type SeedConfig struct {
	File string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "WEBSHOP_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "WEBSHOP_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "WEBSHOP_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "WEBSHOP_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "WEBSHOP_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			MetricsEnabled:  boolWithDefault(lookup, "WEBSHOP_METRICS_ENABLED", true),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(stringWithDefault(lookup, "WEBSHOP_STORE_DRIVER", defaultStoreDriver)),
		},
		Firestore: FirestoreConfig{
			ProjectID:       stringWithDefault(lookup, "WEBSHOP_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost:    stringWithDefault(lookup, "WEBSHOP_FIRESTORE_EMULATOR_HOST", ""),
			CredentialsFile: stringWithDefault(lookup, "WEBSHOP_FIRESTORE_CREDENTIALS_FILE", ""),
		},
		MySQL: MySQLConfig{
			DSN:          stringWithDefault(lookup, "WEBSHOP_MYSQL_DSN", ""),
			Host:         stringWithDefault(lookup, "WEBSHOP_MYSQL_HOST", ""),
			Port:         intWithDefault(lookup, "WEBSHOP_MYSQL_PORT", defaultMySQLPort),
			User:         stringWithDefault(lookup, "WEBSHOP_MYSQL_USER", ""),
			Password:     stringWithDefault(lookup, "WEBSHOP_MYSQL_PASSWORD", ""),
			Database:     stringWithDefault(lookup, "WEBSHOP_MYSQL_DATABASE", "webshop"),
			MaxOpenConns: intWithDefault(lookup, "WEBSHOP_MYSQL_MAX_OPEN_CONNS", defaultMySQLMaxConns),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "WEBSHOP_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "WEBSHOP_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "WEBSHOP_REDIS_DB", 0),
		},
		Locking: LockingConfig{
			Driver: strings.ToLower(stringWithDefault(lookup, "WEBSHOP_LOCK_DRIVER", defaultLockDriver)),
			TTL:    durationWithDefault(lookup, "WEBSHOP_LOCK_TTL", defaultLockTTL),
			Wait:   durationWithDefault(lookup, "WEBSHOP_LOCK_WAIT", defaultLockWait),
		},
		Events: EventsConfig{
			Driver:        strings.ToLower(stringWithDefault(lookup, "WEBSHOP_EVENTS_DRIVER", defaultEventsDriver)),
			PubSubProject: stringWithDefault(lookup, "WEBSHOP_EVENTS_PUBSUB_PROJECT", ""),
			Topic:         stringWithDefault(lookup, "WEBSHOP_EVENTS_TOPIC", defaultEventsTopic),
			KafkaBrokers:  csvWithDefault(lookup, "WEBSHOP_EVENTS_KAFKA_BROKERS"),
		},
		Auth: AuthConfig{
			JWTSecret: stringWithDefault(lookup, "WEBSHOP_AUTH_JWT_SECRET", ""),
			TokenTTL:  durationWithDefault(lookup, "WEBSHOP_AUTH_TOKEN_TTL", defaultTokenTTL),
			Issuer:    stringWithDefault(lookup, "WEBSHOP_AUTH_ISSUER", defaultTokenIssuer),
		},
		Idem: IdempotencyConfig{
			Driver:           strings.ToLower(stringWithDefault(lookup, "WEBSHOP_IDEMPOTENCY_DRIVER", defaultIdemDriver)),
			Header:           stringWithDefault(lookup, "WEBSHOP_IDEMPOTENCY_HEADER", "Idempotency-Key"),
			TTL:              durationWithDefault(lookup, "WEBSHOP_IDEMPOTENCY_TTL", defaultIdemTTL),
			CleanupInterval:  durationWithDefault(lookup, "WEBSHOP_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdemCleanup),
			CleanupBatchSize: intWithDefault(lookup, "WEBSHOP_IDEMPOTENCY_CLEANUP_BATCH", defaultIdemBatch),
		},
		Seed: SeedConfig{
			File: stringWithDefault(lookup, "WEBSHOP_SEED_FILE", ""),
		},
	}

	// Pub/Sub project defaults to the Firestore project when unspecified.
	if cfg.Events.PubSubProject == "" {
		cfg.Events.PubSubProject = cfg.Firestore.ProjectID
	}

	if cfg.MySQL.DSN == "" && cfg.MySQL.Host != "" {
		cfg.MySQL.DSN = buildMySQLDSN(cfg.MySQL)
	}

	secret, err := resolveSecret(ctx, cfg.Auth.JWTSecret, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.Auth.JWTSecret = secret

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func buildMySQLDSN(cfg MySQLConfig) string {
	driverCfg := mysqldriver.NewConfig()
	driverCfg.User = cfg.User
	driverCfg.Passwd = cfg.Password
	driverCfg.Net = "tcp"
	driverCfg.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	driverCfg.DBName = cfg.Database
	driverCfg.ParseTime = true
	driverCfg.Loc = time.UTC
	return driverCfg.FormatDSN()
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		missing = append(missing, "Auth.JWTSecret")
	}
	if cfg.Auth.TokenTTL <= 0 {
		missing = append(missing, "Auth.TokenTTL")
	}

	switch cfg.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case StoreDriverMySQL:
		if cfg.MySQL.DSN == "" {
			missing = append(missing, "MySQL.DSN")
		} else if _, err := mysqldriver.ParseDSN(cfg.MySQL.DSN); err != nil {
			missing = append(missing, "MySQL.DSN")
		}
	default:
		missing = append(missing, "Store.Driver")
	}

	switch cfg.Locking.Driver {
	case LockDriverMemory:
	case LockDriverRedis:
		if cfg.Redis.Addr == "" {
			missing = append(missing, "Redis.Addr")
		}
	default:
		missing = append(missing, "Locking.Driver")
	}
	if cfg.Locking.TTL <= 0 {
		missing = append(missing, "Locking.TTL")
	}

	switch cfg.Events.Driver {
	case EventsDriverNone:
	case EventsDriverPubSub:
		if cfg.Events.PubSubProject == "" {
			missing = append(missing, "Events.PubSubProject")
		}
		if cfg.Events.Topic == "" {
			missing = append(missing, "Events.Topic")
		}
	case EventsDriverKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			missing = append(missing, "Events.KafkaBrokers")
		}
		if cfg.Events.Topic == "" {
			missing = append(missing, "Events.Topic")
		}
	default:
		missing = append(missing, "Events.Driver")
	}

	switch cfg.Idem.Driver {
	case IdempotencyDriverMemory:
	case IdempotencyDriverRedis:
		if cfg.Redis.Addr == "" && cfg.Locking.Driver != LockDriverRedis {
			missing = append(missing, "Redis.Addr")
		}
	case IdempotencyDriverFirestore:
		if cfg.Firestore.ProjectID == "" && cfg.Store.Driver != StoreDriverFirestore {
			missing = append(missing, "Firestore.ProjectID")
		}
	default:
		missing = append(missing, "Idem.Driver")
	}
	if cfg.Idem.TTL <= 0 {
		missing = append(missing, "Idem.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
