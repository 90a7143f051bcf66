package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/patient-portal/internal/api/router"
	appconfig "github.com/wolfman30/patient-portal/internal/config"
	"github.com/wolfman30/patient-portal/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/patient-portal/internal/http/middleware"
	"github.com/wolfman30/patient-portal/internal/observability/metrics"
	"github.com/wolfman30/patient-portal/internal/payments"
	"github.com/wolfman30/patient-portal/internal/portalapi"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

// Portal is the assembled service: its HTTP handler plus everything that has
// to be released on shutdown.
type Portal struct {
	Handler  http.Handler
	Workflow *payments.Workflow
	Metrics  *metrics.PortalMetrics

	redis   *redis.Client
	db      *pgxpool.Pool
	pages   *payments.MemoryPageStore
	limiter *httpmiddleware.RateLimiter
}

// BuildPortal wires the portal API client, the payment workflow and the
// router. Redis and Postgres are optional; without them submissions use an
// in-process guard, velocity limits are off and outcomes are not persisted.
func BuildPortal(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Portal, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	portalMetrics := metrics.NewPortalMetrics(registry)

	client, err := portalapi.New(portalapi.Config{
		BaseURL:  cfg.PortalAPIBaseURL,
		Timeout:  cfg.PortalAPITimeout,
		Logger:   logger,
		Observer: portalMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: portal api client: %w", err)
	}

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	db := BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	pages := payments.NewMemoryPageStore(cfg.PageIdleTTL)

	workflow, err := payments.NewWorkflow(payments.Options{
		Store:            pages,
		Gateway:          client,
		Guard:            BuildSubmitGuard(redisClient, cfg),
		Velocity:         BuildVelocityLimiter(redisClient, cfg, logger),
		Outcomes:         BuildOutcomeRecorder(db),
		Metrics:          portalMetrics,
		Logger:           logger,
		ChargeAmount:     cfg.DefaultChargeAmount,
		ServiceReference: cfg.ServiceReference,
	})
	if err != nil {
		pages.Close()
		return nil, fmt.Errorf("bootstrap: payment workflow: %w", err)
	}

	p := &Portal{
		Workflow: workflow,
		Metrics:  portalMetrics,
		redis:    redisClient,
		db:       db,
		pages:    pages,
	}
	if cfg.RateLimitRPS > 0 {
		p.limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	p.Handler = router.New(&router.Config{
		Logger:             logger,
		PaymentPages:       handlers.NewPaymentPagesHandler(workflow, cfg.PageTokenSecret, cfg.PageTokenTTL, logger),
		Portal:             handlers.NewPortalHandler(client, logger),
		Health:             handlers.NewHealthHandler(p.healthChecks()),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		PageTokenSecret:    cfg.PageTokenSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        p.limiter,
	})

	logger.Info("portal wired",
		"redis", redisClient != nil,
		"postgres", db != nil,
		"rate_limit_rps", cfg.RateLimitRPS,
	)
	return p, nil
}

func (p *Portal) healthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if p.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return p.redis.Ping(ctx).Err() }
	}
	if p.db != nil {
		checks["postgres"] = p.db.Ping
	}
	return checks
}

// Close stops background work and releases connections.
func (p *Portal) Close() {
	if p == nil {
		return
	}
	if p.limiter != nil {
		p.limiter.Stop()
	}
	if p.pages != nil {
		p.pages.Close()
	}
	if p.redis != nil {
		_ = p.redis.Close()
	}
	if p.db != nil {
		p.db.Close()
	}
}
