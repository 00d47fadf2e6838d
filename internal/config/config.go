// Package config loads the process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tohomedistance/tohomedistance/internal/database"
	"github.com/tohomedistance/tohomedistance/internal/entry"
	"github.com/tohomedistance/tohomedistance/internal/routing/amap"
	"github.com/tohomedistance/tohomedistance/internal/telemetry"
	"github.com/tohomedistance/tohomedistance/internal/worker"
)

// ServiceName identifies the process in logs and telemetry.
const ServiceName = "tohome"

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 30 * time.Second

const devSigningKey = "local-dev-signing-key-change-in-production"

// Config is the complete process configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel zerolog.Level

	HomeAssistant HomeAssistantConfig
	AMapBaseURL   string

	// Database is used only when UsePostgres is set; entries are kept in
	// memory otherwise.
	Database    database.Config
	UsePostgres bool

	Kafka KafkaConfig

	PubSub        worker.Config
	PubSubEnabled bool

	JWTSigningKey string
	// RateLimitPerMinute caps API requests per token subject.
	RateLimitPerMinute int
	// RequireTLS rejects requests a proxy reports as plain HTTP.
	RequireTLS bool

	Telemetry telemetry.Config

	// Bootstrap is created at startup when no entry exists for its tracker.
	Bootstrap *entry.Input
}

// HomeAssistantConfig locates the Home Assistant instance.
type HomeAssistantConfig struct {
	URL   string
	Token string
	// Events enables the WebSocket state_changed subscription.
	Events bool
}

// KafkaConfig enables the Kafka state publisher when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether the Kafka publisher should be started.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// IsProduction reports whether the process runs in production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads the configuration. Every missing or malformed variable is
// reported in the returned error.
func Load() (Config, error) {
	var errs []error

	level, err := zerolog.ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		level = zerolog.InfoLevel
	}

	cfg := Config{
		Port:     getEnvOrDefault("APP_PORT", "8080"),
		Env:      getEnvOrDefault("APP_ENV", "development"),
		LogLevel: level,
		HomeAssistant: HomeAssistantConfig{
			URL:    strings.TrimRight(os.Getenv("HA_URL"), "/"),
			Token:  os.Getenv("HA_TOKEN"),
			Events: getEnvBool("HA_EVENTS", true, &errs),
		},
		AMapBaseURL: getEnvOrDefault("AMAP_BASE_URL", amap.DefaultBaseURL),
		Database:    database.ConfigFromEnv(),
		UsePostgres: os.Getenv("DATABASE_URL") != "" || os.Getenv("DB_HOST") != "",
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnvOrDefault("KAFKA_TOPIC", "tohome.sensor-states"),
		},
		JWTSigningKey:      os.Getenv("JWT_SIGNING_KEY"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120, &errs),
		RequireTLS:         getEnvBool("REQUIRE_TLS", false, &errs),
	}

	cfg.PubSub = worker.DefaultConfig()
	cfg.PubSub.ProjectID = os.Getenv("PUBSUB_PROJECT_ID")
	cfg.PubSub.SubscriptionName = os.Getenv("PUBSUB_SUBSCRIPTION")
	cfg.PubSubEnabled = cfg.PubSub.ProjectID != "" && cfg.PubSub.SubscriptionName != ""

	ratio, err := strconv.ParseFloat(getEnvOrDefault("OTEL_SAMPLE_RATIO", "1"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATIO: %w", err))
	}
	cfg.Telemetry = telemetry.Config{
		ServiceName:  ServiceName,
		Environment:  cfg.Env,
		OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Enabled:      getEnvBool("OTEL_ENABLED", false, &errs),
		SampleRatio:  ratio,
	}

	if cfg.HomeAssistant.URL == "" {
		errs = append(errs, errors.New("HA_URL is required"))
	}
	if cfg.HomeAssistant.Token == "" {
		errs = append(errs, errors.New("HA_TOKEN is required"))
	}
	if cfg.JWTSigningKey == "" {
		if cfg.IsProduction() {
			errs = append(errs, errors.New("JWT_SIGNING_KEY is required in production"))
		}
		cfg.JWTSigningKey = devSigningKey
	}

	cfg.Bootstrap = bootstrapFromEnv(&errs)

	return cfg, errors.Join(errs...)
}

// UsesDevSigningKey reports whether tokens are signed with the built-in key.
func (c Config) UsesDevSigningKey() bool {
	return c.JWTSigningKey == devSigningKey
}

func bootstrapFromEnv(errs *[]error) *entry.Input {
	tracker := os.Getenv("TOHOME_DEVICE_TRACKER")
	if tracker == "" {
		return nil
	}

	in := &entry.Input{
		Title:                 os.Getenv("TOHOME_TITLE"),
		APIKey:                os.Getenv("AMAP_API_KEY"),
		DeviceTrackerEntityID: tracker,
		SensorEntityID:        os.Getenv("TOHOME_SENSOR"),
		HomeZoneEntityID:      os.Getenv("TOHOME_HOME_ZONE"),
		HomeLongitude:         os.Getenv("TOHOME_HOME_LONGITUDE"),
		HomeLatitude:          os.Getenv("TOHOME_HOME_LATITUDE"),
		Trigger:               os.Getenv("TOHOME_TRIGGER"),
		City:                  os.Getenv("TOHOME_CITY"),
	}
	if os.Getenv("TOHOME_MODE") != "" {
		mode := getEnvInt("TOHOME_MODE", 0, errs)
		in.Mode = &mode
	}
	if os.Getenv("TOHOME_UPDATE_INTERVAL") != "" {
		minutes := getEnvInt("TOHOME_UPDATE_INTERVAL", 0, errs)
		in.UpdateIntervalMinutes = &minutes
	}
	return in
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool, errs *[]error) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
