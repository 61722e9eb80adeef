package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/habitkit/habitkit/modules/billing"
	"github.com/habitkit/habitkit/pkg/config"
	"github.com/habitkit/habitkit/pkg/datastore"
	"github.com/habitkit/habitkit/pkg/datasync"
	"github.com/habitkit/habitkit/pkg/entitlement"
	"github.com/habitkit/habitkit/pkg/environment"
	"github.com/habitkit/habitkit/pkg/httpserver"
	"github.com/habitkit/habitkit/pkg/jwt"
	"github.com/habitkit/habitkit/pkg/logger"
	"github.com/habitkit/habitkit/pkg/mongo"
	"github.com/habitkit/habitkit/pkg/pg"
	"github.com/habitkit/habitkit/pkg/redis"
	"github.com/habitkit/habitkit/pkg/requestid"

	"github.com/habitkit/habitkit/modules/syncdata"
)

type appConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	JWTSecret   string `env:"JWT_SECRET,required"`

	// CatalogPath points at the YAML price catalog. Empty means trial-only
	// defaults, useful in development.
	CatalogPath string `env:"BILLING_CATALOG_PATH"`

	// PaddleWebhookSecret enables the Paddle webhook endpoint when set.
	PaddleWebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`

	// SyncBackend selects the cloud aggregate store: s3, mongo or redis.
	SyncBackend string `env:"SYNC_BACKEND" envDefault:"s3"`
	MongoDB     string `env:"SYNC_MONGO_DATABASE" envDefault:"habitkit"`
	MongoColl   string `env:"SYNC_MONGO_COLLECTION" envDefault:"aggregates"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Environment, "habitkit"),
		logger.WithContextExtractors(requestid.LoggerExtractor(), environment.LoggerExtractor()),
	)

	var pgCfg pg.Config
	config.MustLoad(&pgCfg)
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	store := entitlement.NewPGStore(pool)

	catalog := entitlement.NewCatalog(entitlement.DefaultTrialDuration, nil)
	if cfg.CatalogPath != "" {
		catalog, err = entitlement.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to load price catalog: %w", err)
		}
	}

	var stripeCfg entitlement.StripeConfig
	config.MustLoad(&stripeCfg)
	provider, err := entitlement.NewStripeProvider(stripeCfg)
	if err != nil {
		return fmt.Errorf("failed to create stripe provider: %w", err)
	}

	resolver := entitlement.NewResolver(store, provider, catalog,
		entitlement.WithResolverLogger(log))

	jwtSvc, err := jwt.NewFromString(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("failed to create jwt service: %w", err)
	}
	verifier := billing.NewJWTVerifier(jwtSvc)

	billingOpts := []billing.Option{
		billing.WithLogger(log),
		billing.WithStripeIngestor(entitlement.NewIngestor(store, provider, catalog,
			entitlement.WithIngestorLogger(log))),
		billing.WithCheckout(provider, store),
	}
	if cfg.PaddleWebhookSecret != "" {
		paddleParser, err := entitlement.NewPaddleParser(cfg.PaddleWebhookSecret)
		if err != nil {
			return fmt.Errorf("failed to create paddle parser: %w", err)
		}
		billingOpts = append(billingOpts,
			billing.WithPaddleIngestor(entitlement.NewIngestor(store, paddleParser, catalog,
				entitlement.WithIngestorLogger(log))))
	}

	billingSvc, err := billing.NewService(resolver, verifier, billingOpts...)
	if err != nil {
		return fmt.Errorf("failed to create billing service: %w", err)
	}

	cloudStore, healthchecks, err := newCloudStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create sync backend: %w", err)
	}
	syncSvc := syncdata.NewService(cloudStore, verifier, syncdata.WithLogger(log))

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestid.Middleware)
	r.Use(environment.Middleware(environment.Environment(cfg.Environment)))
	r.Use(middleware.Recoverer)
	r.Mount("/billing", billingSvc.Handler())
	r.Mount("/sync", syncSvc.Handler())

	healthchecks = append(healthchecks, pg.Healthcheck(pool))
	r.Get("/health", httpserver.HealthCheckHandler(ctx, log, healthchecks...))

	var httpCfg httpserver.Config
	config.MustLoad(&httpCfg)
	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	log.InfoContext(ctx, "starting server", "addr", httpCfg.Addr, "sync_backend", cfg.SyncBackend)
	return srv.Run(ctx, r)
}

// newCloudStore builds the configured sync backend and returns any extra
// health checks it contributes.
func newCloudStore(ctx context.Context, cfg appConfig) (datasync.CloudStore, []func(context.Context) error, error) {
	switch cfg.SyncBackend {
	case "s3":
		var s3Cfg datastore.S3Config
		config.MustLoad(&s3Cfg)
		store, err := datastore.NewS3Store(ctx, s3Cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	case "mongo":
		var mongoCfg mongo.Config
		config.MustLoad(&mongoCfg)
		db, err := mongo.NewWithDatabase(ctx, mongoCfg, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		store := datastore.NewMongoStore(db.Collection(cfg.MongoColl))
		return store, []func(context.Context) error{mongo.Healthcheck(db.Client())}, nil

	case "redis":
		var redisCfg redis.Config
		config.MustLoad(&redisCfg)
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return nil, nil, err
		}
		store := datastore.NewRedisStore(client)
		return store, []func(context.Context) error{redis.Healthcheck(client)}, nil

	default:
		return nil, nil, fmt.Errorf("unknown sync backend %q", cfg.SyncBackend)
	}
}
