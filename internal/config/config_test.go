package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	require.Error(t, err)
}

func TestEnvDurationBareIntIsSeconds(t *testing.T) {
	t.Setenv("TEST_DURATION", "30")
	d, err := envDuration("TEST_DURATION", 0)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.RiskThresholdHigh)
	assert.Equal(t, 0.4, cfg.RiskThresholdMedium)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.TimeoutSeconds)
	assert.Equal(t, 5, cfg.CircuitBreakerThreshold)
	assert.Equal(t, 60*time.Second, cfg.CircuitBreakerTimeout)
	assert.Equal(t, 10*time.Minute, cfg.DecisionKnowledgeCacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.SubmissionIdempotencyTTL)
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	cfg := Config{
		RiskThresholdHigh:       0.3,
		RiskThresholdMedium:     0.4,
		ConfidenceThreshold:     0.8,
		MaxRetries:              3,
		TimeoutSeconds:          time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   time.Minute,
		RateLimitPerMinute:      60,
		AuditLogRetentionDays:   365,
		DecisionKnowledgeCacheTTL: 10 * time.Minute,
		SubmissionIdempotencyTTL:  5 * time.Minute,
	}
	require.Error(t, cfg.Validate())
}
