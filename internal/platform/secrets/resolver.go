// Package secrets resolves Secret Manager references used in configuration values.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultVersion      = "latest"
	metricNamespace     = "github.com/webshop/api/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver resolves secret:// and sm:// references through Google Secret Manager, caching values
// for the process lifetime and falling back to a local file when Secret Manager is unreachable.
type Resolver struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger

	defaultProject string

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string

	latency        metric.Float64Histogram
	latencyEnabled bool
}

type resolverConfig struct {
	logger       *zap.Logger
	defaultProj  string
	fallbackPath string
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
}

// Option customises Resolver construction.
type Option func(*resolverConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *resolverConfig) {
		cfg.logger = logger
	}
}

// WithDefaultProject sets the project used for short references that do not name one.
func WithDefaultProject(projectID string) Option {
	return func(cfg *resolverConfig) {
		cfg.defaultProj = strings.TrimSpace(projectID)
	}
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *resolverConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *resolverConfig) {
		cfg.meter = m
	}
}

// WithSecretManagerClient injects a preconfigured Secret Manager client.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *resolverConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *resolverConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewResolver builds a Resolver. A missing Secret Manager client is not fatal: the resolver then
// serves references from the fallback file only.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	cfg := resolverConfig{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	latency, latencyErr := meter.Float64Histogram(
		"secrets.resolve.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret resolution"),
	)
	if latencyErr != nil {
		cfg.logger.Warn("secrets: unable to register latency metric", zap.Error(latencyErr))
	}

	r := &Resolver{
		logger:         cfg.logger,
		defaultProject: cfg.defaultProj,
		fallbackPath:   cfg.fallbackPath,
		cache:          make(map[string]string),
		latency:        latency,
		latencyEnabled: latencyErr == nil,
	}

	if cfg.client != nil {
		r.client = cfg.client
	} else {
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r, nil
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret returns the value behind ref. Accepted forms are secret://<name>,
// secret://<name>?project=<p>&version=<v>, and sm://projects/<p>/secrets/<name>/versions/<v>.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	if parsed.Project == "" {
		parsed.Project = r.defaultProject
	}

	key := parsed.key()
	if value, ok := r.lookupCache(key); ok {
		r.recordLatency(ctx, time.Since(start), "cache")
		return value, nil
	}

	if parsed.Project != "" && r.client != nil {
		value, fetchErr := r.fetchRemote(ctx, parsed)
		if fetchErr == nil {
			r.storeCache(key, value)
			r.recordLatency(ctx, time.Since(start), "remote")
			return value, nil
		}
		if !isFallbackError(fetchErr) {
			r.recordLatency(ctx, time.Since(start), "error")
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", parsed.Secret, fetchErr)
		}
		r.logger.Debug("secrets: falling back to local secrets", zap.String("secret", parsed.Secret), zap.Error(fetchErr))
	}

	value, ok := r.lookupFallback(parsed)
	if !ok {
		r.recordLatency(ctx, time.Since(start), "error")
		return "", fmt.Errorf("secrets: no value available for %s", parsed.Secret)
	}
	r.storeCache(key, value)
	r.recordLatency(ctx, time.Since(start), "fallback")
	return value, nil
}

func (r *Resolver) lookupCache(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.cache[key]
	return value, ok
}

func (r *Resolver) storeCache(key, value string) {
	r.mu.Lock()
	r.cache[key] = value
	r.mu.Unlock()
}

func (r *Resolver) fetchRemote(ctx context.Context, ref reference) (string, error) {
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: ref.resourceName()})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", ref.resourceName())
	}
	return string(resp.Payload.GetData()), nil
}

// lookupFallback matches fallback entries by secret name, with or without a pinned version.
func (r *Resolver) lookupFallback(ref reference) (string, bool) {
	r.fallbackOnce.Do(r.loadFallback)
	if r.fallbackErr != nil {
		r.logger.Debug("secrets: fallback load error", zap.Error(r.fallbackErr))
		return "", false
	}
	if value, ok := r.fallbackVals[ref.Secret+"#"+ref.Version]; ok {
		return value, true
	}
	value, ok := r.fallbackVals[ref.Secret]
	return value, ok
}

func (r *Resolver) loadFallback() {
	r.fallbackVals = map[string]string{}
	path := strings.TrimSpace(r.fallbackPath)
	if path == "" {
		return
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.fallbackErr = fmt.Errorf("secrets: unable to open fallback file %s: %w", absPath, err)
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rawKey, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		parsed, err := parseReference(strings.TrimSpace(rawKey))
		if err != nil {
			continue
		}
		value = strings.TrimSpace(value)
		r.fallbackVals[parsed.Secret+"#"+parsed.Version] = value
		if parsed.Version == defaultVersion {
			r.fallbackVals[parsed.Secret] = value
		}
	}
	if err := scanner.Err(); err != nil {
		r.fallbackErr = fmt.Errorf("secrets: failed reading %s: %w", absPath, err)
	}
}

func (r *Resolver) recordLatency(ctx context.Context, d time.Duration, source string) {
	if !r.latencyEnabled {
		return
	}
	r.latency.Record(ctx, float64(d)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

type reference struct {
	Project string
	Secret  string
	Version string
}

func (r reference) resourceName() string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", r.Project, r.Secret, r.Version)
}

func (r reference) key() string {
	return r.Project + "/" + r.Secret + "#" + r.Version
}

func parseReference(ref string) (reference, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		trimmed = "secret://" + rest
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}

	path := strings.Trim(u.Host+u.Path, "/")
	parsed := reference{
		Project: strings.TrimSpace(u.Query().Get("project")),
		Version: strings.TrimSpace(u.Query().Get("version")),
	}

	segments := strings.Split(path, "/")
	switch {
	case len(segments) == 1:
		parsed.Secret = segments[0]
	case len(segments) >= 4 && segments[0] == "projects" && segments[2] == "secrets":
		parsed.Project = segments[1]
		parsed.Secret = segments[3]
		if len(segments) == 6 && segments[4] == "versions" {
			parsed.Version = segments[5]
		} else if len(segments) != 4 {
			return reference{}, fmt.Errorf("secrets: malformed resource path in %q", ref)
		}
	default:
		return reference{}, fmt.Errorf("secrets: malformed reference %q", ref)
	}

	if parsed.Secret == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	if parsed.Version == "" {
		parsed.Version = defaultVersion
	}
	return parsed, nil
}

func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
