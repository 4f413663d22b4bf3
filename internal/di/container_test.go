package di

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/webshop/api/internal/platform/config"
	"github.com/webshop/api/internal/services"
)

const fixtureYAML = `
categories:
  - name: Kitchen
items:
  - name: Mug
    category: Kitchen
    description: Stoneware
    price: 1200
    quantity: 3
accounts:
  - role: user
    login: ann@example.com
    password: hunter2
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(seedPath, []byte(fixtureYAML), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return config.Config{
		Server:  config.ServerConfig{MetricsEnabled: true},
		Store:   config.StoreConfig{Driver: "memory"},
		Locking: config.LockingConfig{Driver: "memory"},
		Events:  config.EventsConfig{Driver: "none"},
		Auth:    config.AuthConfig{JWTSecret: "container-secret", TokenTTL: time.Hour, Issuer: "webshop-test"},
		Seed:    config.SeedConfig{File: seedPath},
	}
}

func TestNewContainerServesSeededStore(t *testing.T) {
	ctx := context.Background()
	container, err := NewContainer(ctx, testConfig(t), nil, WithBuildInfo(services.BuildInfo{Version: "test"}))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Close(context.Background()); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	rec := httptest.NewRecorder()
	container.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing items, got %d: %s", rec.Code, rec.Body.String())
	}
	var items struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items.Items) != 1 || items.Items[0].Name != "Mug" {
		t.Fatalf("unexpected items %+v", items)
	}

	rec = httptest.NewRecorder()
	body := strings.NewReader(`{"login":"ann@example.com","password":"hunter2"}`)
	container.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/users/login", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected seeded login to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	identity, err := container.Tokens.Verify(session.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.UserID <= 0 {
		t.Fatalf("unexpected identity %+v", identity)
	}

	for _, path := range []string{"/readyz", "/metrics"} {
		rec = httptest.NewRecorder()
		container.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 from %s, got %d: %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestNewContainerRejectsUnknownDrivers(t *testing.T) {
	cases := map[string]func(*config.Config){
		"store":  func(cfg *config.Config) { cfg.Store.Driver = "sqlite" },
		"lock":   func(cfg *config.Config) { cfg.Locking.Driver = "zookeeper" },
		"events": func(cfg *config.Config) { cfg.Events.Driver = "nats" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(&cfg)
			if _, err := NewContainer(context.Background(), cfg, nil); err == nil {
				t.Fatalf("expected error for unsupported %s driver", name)
			}
		})
	}
}

func TestNewContainerRequiresSigningKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	if _, err := NewContainer(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected missing signing key to fail")
	}
}
