package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"WEBSHOP_AUTH_JWT_SECRET": "dev-secret",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if !cfg.Server.MetricsEnabled {
		t.Errorf("expected metrics enabled by default")
	}
	if cfg.Store.Driver != StoreDriverMemory {
		t.Errorf("expected memory store, got %s", cfg.Store.Driver)
	}
	if cfg.Locking.Driver != LockDriverMemory {
		t.Errorf("expected memory locks, got %s", cfg.Locking.Driver)
	}
	if cfg.Locking.TTL != defaultLockTTL {
		t.Errorf("unexpected lock ttl: %s", cfg.Locking.TTL)
	}
	if cfg.Events.Driver != EventsDriverNone {
		t.Errorf("expected events disabled, got %s", cfg.Events.Driver)
	}
	if cfg.Auth.TokenTTL != defaultTokenTTL {
		t.Errorf("unexpected token ttl: %s", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.Issuer != defaultTokenIssuer {
		t.Errorf("unexpected issuer: %s", cfg.Auth.Issuer)
	}
	if cfg.Idem.Driver != IdempotencyDriverMemory || cfg.Idem.Header != "Idempotency-Key" {
		t.Errorf("unexpected idempotency defaults: %+v", cfg.Idem)
	}
	if cfg.Idem.TTL != defaultIdemTTL || cfg.Idem.CleanupInterval != defaultIdemCleanup {
		t.Errorf("unexpected idempotency timings: %+v", cfg.Idem)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"WEBSHOP_SERVER_PORT":           "9090",
		"WEBSHOP_SERVER_READ_TIMEOUT":   "20s",
		"WEBSHOP_METRICS_ENABLED":       "false",
		"WEBSHOP_STORE_DRIVER":          "FIRESTORE",
		"WEBSHOP_FIRESTORE_PROJECT_ID":  "webshop-prod",
		"WEBSHOP_LOCK_DRIVER":           "redis",
		"WEBSHOP_REDIS_ADDR":            "redis:6379",
		"WEBSHOP_LOCK_TTL":              "30s",
		"WEBSHOP_EVENTS_DRIVER":         "kafka",
		"WEBSHOP_EVENTS_KAFKA_BROKERS":  "kafka-1:9092, kafka-2:9092",
		"WEBSHOP_EVENTS_TOPIC":          "orders",
		"WEBSHOP_AUTH_JWT_SECRET":       "sm://projects/webshop/secrets/jwt/versions/latest",
		"WEBSHOP_AUTH_TOKEN_TTL":        "1h",
		"WEBSHOP_SEED_FILE":             "fixtures/seed.yaml",
	}

	var requested string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		requested = ref
		return "resolved-jwt", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.MetricsEnabled {
		t.Errorf("expected metrics disabled")
	}
	if cfg.Store.Driver != StoreDriverFirestore {
		t.Errorf("expected firestore driver, got %s", cfg.Store.Driver)
	}
	if cfg.Events.PubSubProject != "webshop-prod" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.Events.PubSubProject)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Events.KafkaBrokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected kafka brokers: %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Locking.TTL != 30*time.Second {
		t.Errorf("unexpected lock ttl: %s", cfg.Locking.TTL)
	}
	if requested != "secret://projects/webshop/secrets/jwt/versions/latest" {
		t.Errorf("expected normalised secret ref, got %s", requested)
	}
	if cfg.Auth.JWTSecret != "resolved-jwt" {
		t.Errorf("expected resolved secret, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Seed.File != "fixtures/seed.yaml" {
		t.Errorf("unexpected seed file: %s", cfg.Seed.File)
	}
}

func TestLoadBuildsMySQLDSN(t *testing.T) {
	env := map[string]string{
		"WEBSHOP_AUTH_JWT_SECRET": "dev-secret",
		"WEBSHOP_STORE_DRIVER":    "mysql",
		"WEBSHOP_MYSQL_HOST":      "db.internal",
		"WEBSHOP_MYSQL_USER":      "shop",
		"WEBSHOP_MYSQL_PASSWORD":  "pw",
		"WEBSHOP_MYSQL_DATABASE":  "webshop_test",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	parsed, err := mysqldriver.ParseDSN(cfg.MySQL.DSN)
	if err != nil {
		t.Fatalf("expected parseable dsn, got %v", err)
	}
	if parsed.Addr != "db.internal:3306" {
		t.Errorf("unexpected addr %s", parsed.Addr)
	}
	if parsed.DBName != "webshop_test" || parsed.User != "shop" {
		t.Errorf("unexpected dsn fields: %+v", parsed)
	}
	if !parsed.ParseTime {
		t.Errorf("expected parseTime enabled")
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"WEBSHOP_STORE_DRIVER":       "cassandra",
		"WEBSHOP_LOCK_DRIVER":        "redis",
		"WEBSHOP_EVENTS_DRIVER":      "kafka",
		"WEBSHOP_IDEMPOTENCY_DRIVER": "etcd",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	expected := []string{"Auth.JWTSecret", "Store.Driver", "Redis.Addr", "Events.KafkaBrokers", "Idem.Driver"}
	fields := strings.Join(vErr.Fields(), ",")
	for _, want := range expected {
		if !strings.Contains(fields, want) {
			t.Errorf("expected %s in %v", want, vErr.Fields())
		}
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := map[string]string{
		"WEBSHOP_AUTH_JWT_SECRET": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatalf("expected secret error")
	}
	var sErr *SecretError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if sErr.Ref != "secret://missing" {
		t.Fatalf("unexpected ref %s", sErr.Ref)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport WEBSHOP_AUTH_JWT_SECRET=\"from-dotenv\"\nWEBSHOP_SERVER_PORT=7070\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(path), WithEnvMap(map[string]string{
		"WEBSHOP_SERVER_PORT": "6060",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-dotenv" {
		t.Errorf("expected secret from dotenv, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected env map to override dotenv, got %s", cfg.Server.Port)
	}
}
