package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/webshop/api/internal/handlers"
	"github.com/webshop/api/internal/platform/auth"
	"github.com/webshop/api/internal/platform/config"
	"github.com/webshop/api/internal/platform/events"
	pfirestore "github.com/webshop/api/internal/platform/firestore"
	"github.com/webshop/api/internal/platform/idempotency"
	"github.com/webshop/api/internal/platform/locking"
	"github.com/webshop/api/internal/platform/observability"
	"github.com/webshop/api/internal/repositories"
	firestoreRepo "github.com/webshop/api/internal/repositories/firestore"
	"github.com/webshop/api/internal/repositories/memory"
	mysqlRepo "github.com/webshop/api/internal/repositories/mysql"
	"github.com/webshop/api/internal/repositories/seed"
	"github.com/webshop/api/internal/services"
)

const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Accounts services.AccountService
	Catalog  services.CatalogService
	Cart     services.CartService
	Orders   services.OrderService
	System   services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Logger       *zap.Logger
	Repositories repositories.Registry
	Locker       locking.Locker
	Idempotency  idempotency.Store
	Metrics      *observability.Metrics
	Tokens       *auth.TokenManager
	Services     Services
	Router       http.Handler

	redis     *redis.Client
	firestore *pfirestore.Provider
	closers   []func(ctx context.Context) error
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	registry repositories.Registry
	locker   locking.Locker
	idem     idempotency.Store
	events   services.OrderEventPublisher
	build    services.BuildInfo
	clock    func() time.Time
}

// WithRegistry supplies a prebuilt registry instead of opening the configured store driver.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *containerOptions) {
		o.registry = reg
	}
}

// WithLocker supplies the order locker instead of building the configured driver.
func WithLocker(locker locking.Locker) Option {
	return func(o *containerOptions) {
		o.locker = locker
	}
}

// WithIdempotencyStore supplies the idempotency record store instead of building the configured driver.
func WithIdempotencyStore(store idempotency.Store) Option {
	return func(o *containerOptions) {
		o.idem = store
	}
}

// WithEventPublisher supplies the order event publisher instead of building the configured driver.
func WithEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *containerOptions) {
		o.events = publisher
	}
}

// WithBuildInfo sets the metadata reported by the health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// WithClock overrides the clock handed to services.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies from cfg. Resources opened along the way are
// released by Close, including when construction fails part way.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	c := &Container{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			if closeErr := c.Close(context.Background()); closeErr != nil {
				logger.Warn("container cleanup failed", zap.Error(closeErr))
			}
		}
	}()

	var checks []repositories.DependencyCheck

	reg := options.registry
	if reg == nil {
		reg, err = c.openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	c.Repositories = reg
	checks = append(checks, repositories.DependencyCheck{Name: "store", Check: reg.Ping})

	c.Locker = options.locker
	if c.Locker == nil {
		locker, check, err := c.newLocker(cfg)
		if err != nil {
			return nil, err
		}
		c.Locker = locker
		if check != nil {
			checks = append(checks, *check)
		}
	}

	c.Idempotency = options.idem
	if c.Idempotency == nil {
		c.Idempotency, err = c.newIdempotencyStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	publisher := options.events
	if publisher == nil {
		publisher, err = c.newEventPublisher(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Server.MetricsEnabled {
		c.Metrics = observability.NewMetrics()
	}

	c.Tokens, err = auth.NewTokenManager(cfg.Auth.JWTSecret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
		auth.WithClock(options.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("build token manager: %w", err)
	}
	hasher := auth.PasswordHasher{}

	if cfg.Seed.File != "" {
		fixture, err := seed.LoadFile(cfg.Seed.File)
		if err != nil {
			return nil, err
		}
		if _, err := seed.Apply(ctx, reg, hasher, fixture, logger.Named("seed")); err != nil {
			return nil, err
		}
	}

	svc, err := buildServices(reg, c.Locker, publisher, c.Metrics, c.Tokens, hasher, checks, options, logger)
	if err != nil {
		return nil, err
	}
	c.Services = svc
	c.Router = c.buildRouter(options)
	return c, nil
}

// Close releases resources in reverse order of acquisition and reports every failure.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) onClose(fn func(ctx context.Context) error) {
	c.closers = append(c.closers, fn)
}

func (c *Container) openStore(ctx context.Context, cfg config.Config) (repositories.Registry, error) {
	switch cfg.Store.Driver {
	case "", "memory":
		store := memory.New()
		c.onClose(store.Close)
		return store, nil
	case "firestore":
		store, err := firestoreRepo.New(c.firestoreProvider(cfg))
		if err != nil {
			return nil, fmt.Errorf("build firestore store: %w", err)
		}
		return store, nil
	case "mysql":
		store, err := mysqlRepo.Open(cfg.MySQL,
			mysqlRepo.WithLogWriter(observability.NewPrintfAdapter(c.Logger.Named("gorm"))),
		)
		if err != nil {
			return nil, err
		}
		c.onClose(store.Close)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate mysql store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

func (c *Container) newLocker(cfg config.Config) (locking.Locker, *repositories.DependencyCheck, error) {
	switch cfg.Locking.Driver {
	case "", "memory":
		return locking.NewKeyedMutex(), nil, nil
	case "redis":
		client := c.redisClient(cfg)
		locker := locking.NewRedisLocker(client,
			locking.WithTTL(cfg.Locking.TTL),
			locking.WithWait(cfg.Locking.Wait),
		)
		check := &repositories.DependencyCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		}
		return locker, check, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock driver %q", cfg.Locking.Driver)
	}
}

func (c *Container) newIdempotencyStore(cfg config.Config) (idempotency.Store, error) {
	switch cfg.Idem.Driver {
	case "", config.IdempotencyDriverMemory:
		return idempotency.NewMemoryStore(), nil
	case config.IdempotencyDriverRedis:
		return idempotency.NewRedisStore(c.redisClient(cfg)), nil
	case config.IdempotencyDriverFirestore:
		return idempotency.NewFirestoreStore(c.firestoreProvider(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported idempotency driver %q", cfg.Idem.Driver)
	}
}

// redisClient returns the client shared by the locker and the idempotency store.
func (c *Container) redisClient(cfg config.Config) *redis.Client {
	if c.redis == nil {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.onClose(func(context.Context) error { return client.Close() })
		c.redis = client
	}
	return c.redis
}

func (c *Container) firestoreProvider(cfg config.Config) *pfirestore.Provider {
	if c.firestore == nil {
		provider := pfirestore.NewProvider(cfg.Firestore)
		c.onClose(provider.Close)
		c.firestore = provider
	}
	return c.firestore
}

func (c *Container) newEventPublisher(ctx context.Context, cfg config.Config) (services.OrderEventPublisher, error) {
	switch cfg.Events.Driver {
	case "", "none":
		return nil, nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.Events.PubSubProject)
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		c.onClose(func(context.Context) error { return client.Close() })
		publisher, err := events.NewPubSubPublisher(client.Topic(cfg.Events.Topic))
		if err != nil {
			return nil, err
		}
		c.onClose(func(context.Context) error { return publisher.Close() })
		return publisher, nil
	case "kafka":
		publisher, err := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.Topic))
		if err != nil {
			return nil, err
		}
		c.onClose(func(context.Context) error { return publisher.Close() })
		return publisher, nil
	default:
		return nil, fmt.Errorf("unsupported events driver %q", cfg.Events.Driver)
	}
}

func buildServices(
	reg repositories.Registry,
	locker locking.Locker,
	publisher services.OrderEventPublisher,
	metrics *observability.Metrics,
	tokens *auth.TokenManager,
	hasher auth.PasswordHasher,
	checks []repositories.DependencyCheck,
	options containerOptions,
	logger *zap.Logger,
) (Services, error) {
	var svc Services
	var err error

	svc.Accounts, err = services.NewAccountService(services.AccountServiceDeps{
		Accounts:   reg.Accounts(),
		UnitOfWork: reg,
		Sessions:   tokens,
		Hasher:     hasher,
		Clock:      options.clock,
		Logger:     observability.EventLogger(logger.Named("accounts")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build account service: %w", err)
	}

	svc.Catalog, err = services.NewCatalogService(services.CatalogServiceDeps{
		Categories: reg.Categories(),
		Items:      reg.Items(),
		UnitOfWork: reg,
		Clock:      options.clock,
		Logger:     observability.EventLogger(logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}

	svc.Cart, err = services.NewCartService(services.CartServiceDeps{
		Carts:      reg.Carts(),
		Items:      reg.Items(),
		UnitOfWork: reg,
		Logger:     observability.EventLogger(logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}

	orderDeps := services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Inventory:  reg.Inventory(),
		Carts:      reg.Carts(),
		UnitOfWork: reg,
		Locker:     locker,
		Clock:      options.clock,
		Events:     publisher,
		Logger:     observability.EventLogger(logger.Named("orders")),
	}
	if metrics != nil {
		orderDeps.Metrics = metrics
	}
	svc.Orders, err = services.NewOrderService(orderDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks,
		repositories.WithDependencyClock(options.clock),
	)
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}
	svc.System, err = services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            options.clock,
		Build:            options.build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}

	return svc, nil
}

func (c *Container) buildRouter(options containerOptions) http.Handler {
	authenticator := auth.NewAuthenticator(c.Tokens)

	accountHandlers := handlers.NewAccountHandlers(authenticator, c.Services.Accounts,
		handlers.WithLoginRateLimit(loginRateLimit, loginRateWindow, options.clock),
	)
	catalogHandlers := handlers.NewCatalogHandlers(authenticator, c.Services.Catalog)
	cartHandlers := handlers.NewCartHandlers(authenticator, c.Services.Cart)
	orderHandlers := handlers.NewOrderHandlers(authenticator, c.Services.Orders,
		handlers.WithCommandMiddlewares(idempotency.Middleware(c.Idempotency,
			idempotency.WithOptionalKey(),
			idempotency.WithHeader(c.Config.Idem.Header),
			idempotency.WithTTL(c.Config.Idem.TTL),
			idempotency.WithClock(options.clock),
			idempotency.WithLogger(observability.NewPrintfAdapter(c.Logger.Named("idempotency"))),
		)),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(options.build),
		handlers.WithHealthSystemService(c.Services.System),
		handlers.WithHealthClock(options.clock),
	)

	httpLogger := c.Logger.Named("http")
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(c.Config.Firestore.ProjectID),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(c.Metrics),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithUserRoutes(accountHandlers.UserRoutes),
		handlers.WithWorkerRoutes(accountHandlers.WorkerRoutes),
		handlers.WithAdminRoutes(accountHandlers.AdminRoutes),
		handlers.WithCategoryRoutes(catalogHandlers.CategoryRoutes),
		handlers.WithItemRoutes(catalogHandlers.ItemRoutes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithStaffOrderRoutes(orderHandlers.StaffRoutes),
		handlers.WithStaffMiddlewares(middleware.NoCache),
	}
	if c.Metrics != nil {
		opts = append(opts, handlers.WithMetricsHandler(c.Metrics.Handler()))
	}
	return handlers.NewRouter(opts...)
}
