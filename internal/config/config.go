// Package config loads and validates application configuration from
// environment variables against a recognized option table.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Risk scoring thresholds.
	RiskThresholdHigh   float64
	RiskThresholdMedium float64

	// Classifier early-accept threshold.
	ConfidenceThreshold float64

	// Orchestrator retry/timeout/circuit-breaker settings.
	MaxRetries              int
	TimeoutSeconds          time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration

	// Infra settings.
	RateLimitPerMinute  int
	PIIDetectionEnabled bool
	AuditLogRetentionDays int

	// DecisionKnowledgeCacheTTL bounds how long Decision Support's
	// knowledge-base RAG lookups are memoized for a given case context.
	DecisionKnowledgeCacheTTL time.Duration
	// SubmissionIdempotencyTTL bounds the single-writer resubmission
	// guard for an identical case ID. Completed decisions are not
	// cached.
	SubmissionIdempotencyTTL time.Duration

	PoliciesDir        string
	VectorStoreDir     string
	AuditLogPath       string
	PolicyEvaluatorURL string
	RedisURL           string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	LogLevel string
}

// Load reads configuration from environment variables with sensible
// defaults. Missing variables use defaults; only malformed values are
// rejected, and all parse errors are accumulated rather than failing on
// the first one.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		PoliciesDir:        envStr("TRIAGE_POLICIES_DIR", "./policies"),
		VectorStoreDir:     envStr("TRIAGE_VECTOR_STORE_DIR", "./data/vectorstore"),
		AuditLogPath:       envStr("TRIAGE_AUDIT_LOG_PATH", "./data/audit.log"),
		PolicyEvaluatorURL: envStr("TRIAGE_POLICY_EVALUATOR_URL", "http://localhost:8181"),
		RedisURL:           envStr("TRIAGE_REDIS_URL", ""),
		OTELEndpoint:       envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:        envStr("OTEL_SERVICE_NAME", "triagecore"),
		LogLevel:           envStr("TRIAGE_LOG_LEVEL", "info"),
	}

	cfg.RiskThresholdHigh, errs = collectFloat(errs, "TRIAGE_RISK_THRESHOLD_HIGH", 0.7)
	cfg.RiskThresholdMedium, errs = collectFloat(errs, "TRIAGE_RISK_THRESHOLD_MEDIUM", 0.4)
	cfg.ConfidenceThreshold, errs = collectFloat(errs, "TRIAGE_CONFIDENCE_THRESHOLD", 0.8)

	cfg.MaxRetries, errs = collectInt(errs, "TRIAGE_MAX_RETRIES", 3)
	cfg.CircuitBreakerThreshold, errs = collectInt(errs, "TRIAGE_CIRCUIT_BREAKER_THRESHOLD", 5)
	cfg.RateLimitPerMinute, errs = collectInt(errs, "TRIAGE_RATE_LIMIT_PER_MINUTE", 60)
	cfg.AuditLogRetentionDays, errs = collectInt(errs, "TRIAGE_AUDIT_LOG_RETENTION_DAYS", 365)

	cfg.PIIDetectionEnabled, errs = collectBool(errs, "TRIAGE_PII_DETECTION_ENABLED", true)
	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)

	cfg.TimeoutSeconds, errs = collectDuration(errs, "TRIAGE_TIMEOUT_SECONDS", 30*time.Second)
	cfg.CircuitBreakerTimeout, errs = collectDuration(errs, "TRIAGE_CIRCUIT_BREAKER_TIMEOUT", 60*time.Second)
	cfg.DecisionKnowledgeCacheTTL, errs = collectDuration(errs, "TRIAGE_DECISION_KNOWLEDGE_CACHE_TTL", 10*time.Minute)
	cfg.SubmissionIdempotencyTTL, errs = collectDuration(errs, "TRIAGE_SUBMISSION_IDEMPOTENCY_TTL", 5*time.Minute)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectFloat(errs []error, key string, fallback float64) (float64, []error) {
	v, err := envFloat(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that configuration values are internally sane.
func (c Config) Validate() error {
	var errs []error

	if c.RiskThresholdHigh <= c.RiskThresholdMedium {
		errs = append(errs, errors.New("config: TRIAGE_RISK_THRESHOLD_HIGH must be greater than TRIAGE_RISK_THRESHOLD_MEDIUM"))
	}
	if c.RiskThresholdHigh < 0 || c.RiskThresholdHigh > 1 {
		errs = append(errs, errors.New("config: TRIAGE_RISK_THRESHOLD_HIGH must be in [0,1]"))
	}
	if c.RiskThresholdMedium < 0 || c.RiskThresholdMedium > 1 {
		errs = append(errs, errors.New("config: TRIAGE_RISK_THRESHOLD_MEDIUM must be in [0,1]"))
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, errors.New("config: TRIAGE_CONFIDENCE_THRESHOLD must be in [0,1]"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("config: TRIAGE_MAX_RETRIES must be non-negative"))
	}
	if c.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("config: TRIAGE_TIMEOUT_SECONDS must be positive"))
	}
	if c.CircuitBreakerThreshold <= 0 {
		errs = append(errs, errors.New("config: TRIAGE_CIRCUIT_BREAKER_THRESHOLD must be positive"))
	}
	if c.CircuitBreakerTimeout <= 0 {
		errs = append(errs, errors.New("config: TRIAGE_CIRCUIT_BREAKER_TIMEOUT must be positive"))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("config: TRIAGE_RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if c.AuditLogRetentionDays <= 0 {
		errs = append(errs, errors.New("config: TRIAGE_AUDIT_LOG_RETENTION_DAYS must be positive"))
	}
	if c.DecisionKnowledgeCacheTTL <= 0 {
		errs = append(errs, errors.New("config: TRIAGE_DECISION_KNOWLEDGE_CACHE_TTL must be positive"))
	}
	if c.SubmissionIdempotencyTTL <= 0 {
		errs = append(errs, errors.New("config: TRIAGE_SUBMISSION_IDEMPOTENCY_TTL must be positive"))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid float", key, v)
	}
	return f, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	// Bare integers are treated as seconds, matching the
	// "timeout_seconds"-style env var naming used throughout.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
