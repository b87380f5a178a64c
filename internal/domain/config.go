package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Prediction  PredictionConfig `mapstructure:"prediction"`
	Assessment  AssessmentConfig `mapstructure:"assessment"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PredictionConfig configures the client of the remote prediction service.
type PredictionConfig struct {
	BaseURL        string               `mapstructure:"base_url"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	MaxAttempts    int                  `mapstructure:"max_attempts"`
	BackoffBase    time.Duration        `mapstructure:"backoff_base"`
	RateLimit      float64              `mapstructure:"rate_limit"` // requests per second, 0 disables pacing
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// AssessmentConfig tunes how prediction results are turned into explanations.
type AssessmentConfig struct {
	TopFactors            int     `mapstructure:"top_factors"`
	TrendThreshold        float64 `mapstructure:"trend_threshold"`
	EnforceClinicalRanges bool    `mapstructure:"enforce_clinical_ranges"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled        bool      `mapstructure:"enabled"`
	Path           string    `mapstructure:"path"`
	Namespace      string    `mapstructure:"namespace"`
	LatencyBuckets []float64 `mapstructure:"latency_buckets"` // seconds; empty uses the Prometheus defaults
}
