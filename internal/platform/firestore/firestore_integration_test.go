//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	pconfig "github.com/webshop/api/internal/platform/config"
	pfirestore "github.com/webshop/api/internal/platform/firestore"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

type sampleEntity struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

func TestProviderAndScopedCollectionIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	defer stopContainer(containerID)

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "test-project",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	samples := pfirestore.NewCollection[sampleEntity]("samples", nil, nil)

	if _, err := samples.Get(ctx, "sample-1"); !errors.Is(err, pfirestore.ErrNoScope) {
		t.Fatalf("expected scope error outside a transaction, got %v", err)
	}

	err := provider.RunInScope(ctx, func(ctx context.Context) error {
		if err := samples.Set(ctx, "sample-1", sampleEntity{Name: "alpha", Count: 1}); err != nil {
			return err
		}
		staged, err := samples.Get(ctx, "sample-1")
		if err != nil {
			return err
		}
		if staged.Count != 1 {
			return fmt.Errorf("expected staged count 1, got %d", staged.Count)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scoped write failed: %v", err)
	}

	err = provider.RunInScope(ctx, func(ctx context.Context) error {
		entity, err := samples.Get(ctx, "sample-1")
		if err != nil {
			return err
		}
		entity.Count++
		if err := samples.Set(ctx, "sample-1", entity); err != nil {
			return err
		}
		docs, err := samples.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("name", "==", "alpha")
		})
		if err != nil {
			return err
		}
		if len(docs) != 1 || docs[0].Data.Count != 2 {
			return fmt.Errorf("expected query to observe staged count 2, got %#v", docs)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scoped update failed: %v", err)
	}

	errBoom := errors.New("boom")
	err = provider.RunInScope(ctx, func(ctx context.Context) error {
		if err := samples.Set(ctx, "sample-1", sampleEntity{Name: "alpha", Count: 99}); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected callback error passed through, got %v", err)
	}

	err = provider.RunInScope(ctx, func(ctx context.Context) error {
		entity, err := samples.Get(ctx, "sample-1")
		if err != nil {
			return err
		}
		if entity.Count != 2 {
			return fmt.Errorf("expected rolled back count 2, got %d", entity.Count)
		}
		if _, err := samples.Get(ctx, "missing"); !pfirestore.IsNotFound(err) {
			return fmt.Errorf("expected not found classification, got %v", err)
		}
		return samples.Delete(ctx, "sample-1")
	})
	if err != nil {
		t.Fatalf("scoped read failed: %v", err)
	}

	cancelCtx, cancelTxn := context.WithCancel(context.Background())
	cancelTxn()
	if err := provider.RunInScope(cancelCtx, func(ctx context.Context) error {
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	// Shorten the ID to match docker CLI behaviour for stop/remove commands.
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for endpoint")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
