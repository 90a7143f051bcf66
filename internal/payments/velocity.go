package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/patient-portal/pkg/logging"
)

// VelocityLimiter decides whether a patient may attempt another payment.
type VelocityLimiter interface {
	CheckPaymentVelocity(ctx context.Context, patientID string) (*VelocityResult, error)
}

// VelocityChecker limits payment attempts per patient in a fixed window.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

// VelocityConfig contains velocity check configuration.
type VelocityConfig struct {
	MaxAttempts int
	Window      time.Duration
	Enabled     bool
}

// DefaultVelocityConfig returns default velocity limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxAttempts: 10,
		Window:      time.Hour,
		Enabled:     true,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// NewVelocityChecker creates a new velocity checker.
func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

func velocityKey(patientID string) string {
	return fmt.Sprintf("portal:velocity:payment:%s", patientID)
}

// CheckPaymentVelocity counts one attempt for the patient and reports whether
// it is within the limit.
func (v *VelocityChecker) CheckPaymentVelocity(ctx context.Context, patientID string) (*VelocityResult, error) {
	ctx, span := tracer.Start(ctx, "velocity.check_payment")
	defer span.End()
	span.SetAttributes(attribute.String("portal.patient_id", patientID))

	if !v.config.Enabled || v.redis == nil {
		return &VelocityResult{Allowed: true}, nil
	}

	count, expiry, err := v.incrementAndGet(ctx, velocityKey(patientID), v.config.Window)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "patient_id", patientID)
		// Fail open: Redis being down must not block payments.
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxAttempts,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxAttempts,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d payment attempts in %s", v.config.MaxAttempts, v.config.Window)
		v.logger.Warn("payment velocity exceeded",
			"patient_id", patientID,
			"count", count,
			"max", v.config.MaxAttempts,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

// incrementAndGet increments a counter and returns the new value with expiry time.
func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	// Set expiry only on first increment
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}

	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}
