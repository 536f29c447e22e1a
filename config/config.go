package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/inference-observe/utils"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Upstream      UpstreamConfig
	Observe       ObserveConfig
	Observability ObservabilityConfig
	Environment   string `validate:"required"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int `validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// UpstreamConfig points at the inference gateway requests are forwarded to.
// An empty URL disables forwarding.
type UpstreamConfig struct {
	URL     string `validate:"omitempty,url"`
	Timeout time.Duration
}

// QuotaConfig holds the monthly quota published per organization
type QuotaConfig struct {
	LLM float64 `validate:"gte=0"`
	TTS float64 `validate:"gte=0"`
	NMT float64 `validate:"gte=0"`
	ASR float64 `validate:"gte=0"`
}

// ObserveConfig holds the request observation settings
type ObserveConfig struct {
	Enabled bool
	Debug   bool

	Customers []string
	Apps      []string

	MetricsPath      string `validate:"required,startswith=/"`
	HealthPath       string `validate:"required,startswith=/"`
	ConfigPath       string `validate:"required,startswith=/"`
	RequestsPath     string `validate:"required,startswith=/"`
	PipelinePath     string `validate:"required,startswith=/"`
	MetricsNamespace string `validate:"required"`

	CollectSystemMetrics bool

	AvailabilityTarget float64 `validate:"gte=0,lte=100"`
	ResponseTimeTarget float64 `validate:"gt=0"`
	ThroughputTarget   float64 `validate:"gte=0"`

	MaxCompletedRequests  int `validate:"gt=0"`
	MetricsUpdateInterval time.Duration
	SystemMetricsInterval time.Duration

	MaxBodyBytes int64 `validate:"gt=0"`

	// MaxAudioBodyBytes applies to audio and pipeline payloads, which must be
	// read whole to be measured. Zero selects the middleware default.
	MaxAudioBodyBytes int64 `validate:"gte=0"`

	OCRFetchEnabled bool
	OCRFetchTimeout time.Duration

	OrganizationPool []string `validate:"min=1,dive,required"`
	Quotas           QuotaConfig
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel      string `validate:"required,oneof=debug info warn error"`
	LogFormat     string `validate:"required,oneof=json console"`
	LogFile       string
	LogMaxSizeMB  int `validate:"gte=0"`
	LogMaxBackups int `validate:"gte=0"`
	LogMaxAgeDays int `validate:"gte=0"`
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Upstream: UpstreamConfig{
			URL:     getEnv("UPSTREAM_URL", ""),
			Timeout: getEnvAsDuration("UPSTREAM_TIMEOUT", 60*time.Second),
		},
		Observe: ObserveConfig{
			Enabled:               getEnvAsBool("OBSERVE_ENABLED", true),
			Debug:                 getEnvAsBool("OBSERVE_DEBUG", false),
			Customers:             getEnvAsList("OBSERVE_CUSTOMERS", []string{"default"}),
			Apps:                  getEnvAsList("OBSERVE_APPS", []string{"default"}),
			MetricsPath:           getEnv("OBSERVE_METRICS_PATH", "/enterprise/metrics"),
			HealthPath:            getEnv("OBSERVE_HEALTH_PATH", "/enterprise/health"),
			ConfigPath:            getEnv("OBSERVE_CONFIG_PATH", "/enterprise/config"),
			RequestsPath:          getEnv("OBSERVE_REQUESTS_PATH", "/enterprise/requests"),
			PipelinePath:          getEnv("OBSERVE_PIPELINE_PATH", "/services/inference/pipeline"),
			MetricsNamespace:      getEnv("OBSERVE_METRICS_NAMESPACE", "telemetry_obsv"),
			CollectSystemMetrics:  getEnvAsBool("OBSERVE_COLLECT_SYSTEM_METRICS", true),
			AvailabilityTarget:    getEnvAsFloat("OBSERVE_AVAILABILITY_TARGET", 100.0),
			ResponseTimeTarget:    getEnvAsFloat("OBSERVE_RESPONSE_TIME_TARGET", 1.0),
			ThroughputTarget:      getEnvAsFloat("OBSERVE_THROUGHPUT_TARGET", 20.0),
			MaxCompletedRequests:  getEnvAsInt("OBSERVE_MAX_COMPLETED_REQUESTS", 1000),
			MetricsUpdateInterval: getEnvAsDuration("OBSERVE_METRICS_UPDATE_INTERVAL", 10*time.Second),
			SystemMetricsInterval: getEnvAsDuration("OBSERVE_SYSTEM_METRICS_INTERVAL", 5*time.Second),
			MaxBodyBytes:          getEnvAsInt64("OBSERVE_MAX_BODY_BYTES", 10<<20),
			MaxAudioBodyBytes:     getEnvAsInt64("OBSERVE_MAX_AUDIO_BODY_BYTES", 256<<20),
			OCRFetchEnabled:       getEnvAsBool("OBSERVE_OCR_FETCH_ENABLED", true),
			OCRFetchTimeout:       getEnvAsDuration("OBSERVE_OCR_FETCH_TIMEOUT", 2*time.Second),
			OrganizationPool:      getEnvAsList("OBSERVE_ORGANIZATION_POOL", []string{"irctc", "kisanmitra", "bashadaan", "beml"}),
			Quotas: QuotaConfig{
				LLM: getEnvAsFloat("OBSERVE_QUOTA_LLM", 1_000_000),
				TTS: getEnvAsFloat("OBSERVE_QUOTA_TTS", 1_000_000),
				NMT: getEnvAsFloat("OBSERVE_QUOTA_NMT", 1_000_000),
				ASR: getEnvAsFloat("OBSERVE_QUOTA_ASR", 1_000_000),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "json")),
			LogFile:       getEnv("LOG_FILE", ""),
			LogMaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			LogMaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
		},
	}

	// Debug observation implies debug logs
	if cfg.Observe.Debug {
		cfg.Observability.LogLevel = "debug"
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks struct tags first, then the cross-field rules tags cannot express
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		if fields := utils.GetValidationFields(err); len(fields) > 0 {
			return fmt.Errorf("%w: %v", err, fields)
		}
		return err
	}

	if c.Upstream.URL != "" {
		u, err := url.Parse(c.Upstream.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("upstream URL must be an absolute http(s) URL: %q", c.Upstream.URL)
		}
	}

	paths := map[string]string{}
	for name, p := range map[string]string{
		"metrics":  c.Observe.MetricsPath,
		"health":   c.Observe.HealthPath,
		"config":   c.Observe.ConfigPath,
		"requests": c.Observe.RequestsPath,
	} {
		if other, dup := paths[p]; dup {
			return fmt.Errorf("%s path and %s path are both %q", name, other, p)
		}
		paths[p] = name
	}
	if p := c.Observe.PipelinePath; paths[p] != "" {
		return fmt.Errorf("pipeline path %q collides with the %s endpoint", p, paths[p])
	}

	for name, d := range map[string]time.Duration{
		"metrics update interval": c.Observe.MetricsUpdateInterval,
		"system metrics interval": c.Observe.SystemMetricsInterval,
		"OCR fetch timeout":       c.Observe.OCRFetchTimeout,
		"upstream timeout":        c.Upstream.Timeout,
		"shutdown timeout":        c.Server.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// QuotaMap returns the quotas keyed by quota kind
func (q QuotaConfig) QuotaMap() map[string]float64 {
	return map[string]float64{
		"llm": q.LLM,
		"tts": q.TTS,
		"nmt": q.NMT,
		"asr": q.ASR,
	}
}

// Effective returns the observe settings as served by the config endpoint.
// Durations are reported in seconds.
func (c *ObserveConfig) Effective() map[string]interface{} {
	return map[string]interface{}{
		"enabled":                 c.Enabled,
		"debug":                   c.Debug,
		"customers":               c.Customers,
		"apps":                    c.Apps,
		"metrics_path":            c.MetricsPath,
		"health_path":             c.HealthPath,
		"config_path":             c.ConfigPath,
		"requests_path":           c.RequestsPath,
		"pipeline_path":           c.PipelinePath,
		"metrics_namespace":       c.MetricsNamespace,
		"collect_system_metrics":  c.CollectSystemMetrics,
		"availability_target":     c.AvailabilityTarget,
		"response_time_target":    c.ResponseTimeTarget,
		"throughput_target":       c.ThroughputTarget,
		"max_completed_requests":  c.MaxCompletedRequests,
		"metrics_update_interval": c.MetricsUpdateInterval.Seconds(),
		"system_metrics_interval": c.SystemMetricsInterval.Seconds(),
		"max_body_bytes":          c.MaxBodyBytes,
		"max_audio_body_bytes":    c.MaxAudioBodyBytes,
		"ocr_fetch_enabled":       c.OCRFetchEnabled,
		"ocr_fetch_timeout":       c.OCRFetchTimeout.Seconds(),
		"organization_pool":       c.OrganizationPool,
		"quotas":                  c.Quotas.QuotaMap(),
	}
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("15s") and bare numbers of seconds ("15")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if secs, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
