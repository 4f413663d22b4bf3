package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/webshop/api/internal/di"
	"github.com/webshop/api/internal/platform/config"
	"github.com/webshop/api/internal/platform/observability"
	"github.com/webshop/api/internal/platform/secrets"
	"github.com/webshop/api/internal/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "webshop api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	resolver := &lazySecretResolver{logger: logger.Named("secrets")}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Error("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		return fmt.Errorf("load configuration: %w", err)
	}

	container, err := di.NewContainer(ctx, cfg, logger, di.WithBuildInfo(buildInfoFromEnv(startedAt)))
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      container.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	serverLogger := logger.Named("http").With(
		zap.String("addr", server.Addr),
		zap.String("store", cfg.Store.Driver),
		zap.String("locks", cfg.Locking.Driver),
		zap.String("events", cfg.Events.Driver),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		serverLogger.Info("webshop api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		runIdempotencyCleanup(groupCtx, container, logger.Named("idempotency"))
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// runIdempotencyCleanup purges expired idempotency records until ctx is cancelled.
func runIdempotencyCleanup(ctx context.Context, container *di.Container, logger *zap.Logger) {
	interval := container.Config.Idem.CleanupInterval
	if interval <= 0 || container.Idempotency == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := container.Idempotency.CleanupExpired(ctx, time.Now().UTC(), container.Config.Idem.CleanupBatchSize)
			if err != nil {
				logger.Warn("idempotency cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency records purged", zap.Int("removed", removed))
			}
		}
	}
}

func buildInfoFromEnv(started time.Time) services.BuildInfo {
	version := strings.TrimSpace(os.Getenv("WEBSHOP_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("WEBSHOP_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("WEBSHOP_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// lazySecretResolver creates the Secret Manager client only when configuration holds a reference.
type lazySecretResolver struct {
	logger *zap.Logger

	once     sync.Once
	resolver *secrets.Resolver
	err      error
}

func (l *lazySecretResolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	l.once.Do(func() {
		opts := []secrets.Option{secrets.WithLogger(l.logger)}
		if project := strings.TrimSpace(os.Getenv("WEBSHOP_SECRETS_PROJECT_ID")); project != "" {
			opts = append(opts, secrets.WithDefaultProject(project))
		} else if project := strings.TrimSpace(os.Getenv("WEBSHOP_FIRESTORE_PROJECT_ID")); project != "" {
			opts = append(opts, secrets.WithDefaultProject(project))
		}
		if path := strings.TrimSpace(os.Getenv("WEBSHOP_SECRETS_FALLBACK_FILE")); path != "" {
			opts = append(opts, secrets.WithFallbackFile(path))
		}
		l.resolver, l.err = secrets.NewResolver(ctx, opts...)
	})
	if l.err != nil {
		return "", l.err
	}
	return l.resolver.ResolveSecret(ctx, ref)
}

func (l *lazySecretResolver) Close() error {
	if l.resolver == nil {
		return nil
	}
	return l.resolver.Close()
}
