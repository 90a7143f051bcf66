package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/patient-portal/internal/config"
	"github.com/wolfman30/patient-portal/internal/payments"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool connects to DATABASE_URL, or returns nil when it is unset
// or unreachable.
func BuildPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Warn("postgres pool not created", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("postgres not available", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// BuildSubmitGuard uses Redis when available so several replicas share one
// in-flight marker per page.
func BuildSubmitGuard(redisClient *redis.Client, cfg *appconfig.Config) payments.SubmitGuard {
	if redisClient == nil {
		return payments.NewMemorySubmitGuard(cfg.SubmitLockTTL)
	}
	return payments.NewRedisSubmitGuard(redisClient, cfg.SubmitLockTTL)
}

// BuildVelocityLimiter returns the per-patient attempt limiter, or nil
// without Redis.
func BuildVelocityLimiter(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) payments.VelocityLimiter {
	if redisClient == nil {
		return nil
	}
	return payments.NewVelocityChecker(redisClient, payments.VelocityConfig{
		MaxAttempts: cfg.PaymentMaxAttempts,
		Window:      cfg.PaymentAttemptWindow,
		Enabled:     cfg.PaymentMaxAttempts > 0,
	}, logger)
}

// BuildOutcomeRecorder persists payment outcomes when Postgres is configured.
func BuildOutcomeRecorder(pool *pgxpool.Pool) payments.OutcomeRecorder {
	if pool == nil {
		return nil
	}
	return payments.NewPostgresOutcomeRecorder(pool)
}
