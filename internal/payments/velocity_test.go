package payments

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr, func() {
		client.Close()
		mr.Close()
	}
}

func TestVelocityChecker_CheckPaymentVelocity(t *testing.T) {
	redisClient, _, cleanup := setupTestRedis(t)
	defer cleanup()

	config := DefaultVelocityConfig()
	config.MaxAttempts = 3

	checker := NewVelocityChecker(redisClient, config, nil)
	ctx := context.Background()

	tests := []struct {
		name        string
		patientID   string
		attempts    int
		wantAllowed bool
	}{
		{name: "first attempt allowed", patientID: "patient-1", attempts: 1, wantAllowed: true},
		{name: "at limit allowed", patientID: "patient-2", attempts: 3, wantAllowed: true},
		{name: "over limit blocked", patientID: "patient-3", attempts: 4, wantAllowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result *VelocityResult
			var err error
			for i := 0; i < tt.attempts; i++ {
				result, err = checker.CheckPaymentVelocity(ctx, tt.patientID)
				require.NoError(t, err)
			}

			assert.Equal(t, tt.wantAllowed, result.Allowed)
			assert.Equal(t, tt.attempts, result.CurrentCount)
			assert.Equal(t, config.MaxAttempts, result.MaxAllowed)
			if !tt.wantAllowed {
				assert.Contains(t, result.Message, "exceeded")
			}
		})
	}
}

func TestVelocityChecker_PatientsAreSeparate(t *testing.T) {
	redisClient, _, cleanup := setupTestRedis(t)
	defer cleanup()

	config := DefaultVelocityConfig()
	config.MaxAttempts = 2
	checker := NewVelocityChecker(redisClient, config, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		checker.CheckPaymentVelocity(ctx, "patient-1")
	}

	result, err := checker.CheckPaymentVelocity(ctx, "patient-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result, err = checker.CheckPaymentVelocity(ctx, "patient-2")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.CurrentCount)
}

func TestVelocityChecker_WindowExpires(t *testing.T) {
	redisClient, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	config := DefaultVelocityConfig()
	config.MaxAttempts = 1
	config.Window = time.Minute
	checker := NewVelocityChecker(redisClient, config, nil)
	ctx := context.Background()

	checker.CheckPaymentVelocity(ctx, "patient-1")
	result, err := checker.CheckPaymentVelocity(ctx, "patient-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	mr.FastForward(2 * time.Minute)

	result, err = checker.CheckPaymentVelocity(ctx, "patient-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.CurrentCount)
}

func TestVelocityChecker_DisabledCheck(t *testing.T) {
	redisClient, _, cleanup := setupTestRedis(t)
	defer cleanup()

	config := DefaultVelocityConfig()
	config.Enabled = false
	checker := NewVelocityChecker(redisClient, config, nil)

	for i := 0; i < 20; i++ {
		result, err := checker.CheckPaymentVelocity(context.Background(), "patient-1")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}

func TestVelocityChecker_FailsOpen(t *testing.T) {
	redisClient, mr, _ := setupTestRedis(t)
	defer redisClient.Close()
	mr.Close()

	checker := NewVelocityChecker(redisClient, DefaultVelocityConfig(), nil)
	result, err := checker.CheckPaymentVelocity(context.Background(), "patient-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, "velocity check unavailable", result.Message)
}

func TestDefaultVelocityConfig(t *testing.T) {
	config := DefaultVelocityConfig()

	assert.Equal(t, 10, config.MaxAttempts)
	assert.Equal(t, time.Hour, config.Window)
	assert.True(t, config.Enabled)
}
