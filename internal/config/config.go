package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/viacare/risk-assessor/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g.
// RISK_ASSESSOR_PREDICTION_BASE_URL.
const EnvPrefix = "RISK_ASSESSOR"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager. An empty configFile searches
// the default locations for config.yaml.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from defaults, the config file and the environment
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/risk-assessor/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional unless one was named explicitly
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || m.configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")

	// Prediction service defaults
	v.SetDefault("prediction.base_url", "http://127.0.0.1:8000/api/predict/")
	v.SetDefault("prediction.timeout", "30s")
	v.SetDefault("prediction.max_attempts", 3)
	v.SetDefault("prediction.backoff_base", "1s")
	v.SetDefault("prediction.rate_limit", 10)
	v.SetDefault("prediction.circuit_breaker.enabled", true)
	v.SetDefault("prediction.circuit_breaker.max_requests", 1)
	v.SetDefault("prediction.circuit_breaker.interval", "60s")
	v.SetDefault("prediction.circuit_breaker.timeout", "30s")
	v.SetDefault("prediction.circuit_breaker.failure_threshold", 5)

	// Assessment defaults
	v.SetDefault("assessment.top_factors", 3)
	v.SetDefault("assessment.trend_threshold", 0.2)
	v.SetDefault("assessment.enforce_clinical_ranges", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "risk_assessor")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetPredictionConfig returns the prediction client configuration
func (m *Manager) GetPredictionConfig() *domain.PredictionConfig {
	return &m.config.Prediction
}

// GetAssessmentConfig returns the assessment configuration
func (m *Manager) GetAssessmentConfig() *domain.AssessmentConfig {
	return &m.config.Assessment
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	// Prediction service
	if config.Prediction.BaseURL == "" {
		return fmt.Errorf("prediction base URL is required")
	}
	u, err := url.Parse(config.Prediction.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid prediction base URL: %s", config.Prediction.BaseURL)
	}
	if config.Prediction.MaxAttempts < 1 {
		return fmt.Errorf("prediction max_attempts must be at least 1, got %d", config.Prediction.MaxAttempts)
	}
	if config.Prediction.BackoffBase < 0 {
		return fmt.Errorf("prediction backoff_base must not be negative")
	}
	if config.Prediction.RateLimit < 0 {
		return fmt.Errorf("prediction rate_limit must not be negative")
	}

	// Assessment
	if config.Assessment.TopFactors < 1 {
		return fmt.Errorf("assessment top_factors must be at least 1, got %d", config.Assessment.TopFactors)
	}
	if config.Assessment.TrendThreshold <= 0 {
		return fmt.Errorf("assessment trend_threshold must be positive, got %v", config.Assessment.TrendThreshold)
	}

	// Logging
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	if config.Metrics.Enabled && !strings.HasPrefix(config.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/': %s", config.Metrics.Path)
	}
	for i, b := range config.Metrics.LatencyBuckets {
		if b <= 0 || (i > 0 && b <= config.Metrics.LatencyBuckets[i-1]) {
			return fmt.Errorf("metrics latency_buckets must be positive and increasing: %v", config.Metrics.LatencyBuckets)
		}
	}

	return nil
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
