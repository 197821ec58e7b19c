package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

type TrackingConfig struct {
	MovementThresholdM float64
	ArrivalRadiusM     float64
	MinIngestInterval  time.Duration
	AccuracyCeilingM   float64
	RetentionWindow    time.Duration
	CleanupInterval    time.Duration
}

type ExternalServicesConfig struct {
	NotifyServiceURL   string
	NotifyServiceToken string
}

type Config struct {
	Environment      string
	HTTP             HTTPConfig
	DB               DBConfig
	Auth             AuthConfig
	Tracking         TrackingConfig
	ExternalServices ExternalServicesConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Tracking: TrackingConfig{
			MovementThresholdM: v.GetFloat64("TRACKING_MOVEMENT_THRESHOLD_M"),
			ArrivalRadiusM:     v.GetFloat64("TRACKING_ARRIVAL_RADIUS_M"),
			MinIngestInterval:  v.GetDuration("TRACKING_MIN_INGEST_INTERVAL"),
			AccuracyCeilingM:   v.GetFloat64("TRACKING_ACCURACY_CEILING_M"),
			RetentionWindow:    v.GetDuration("TRACKING_RETENTION_WINDOW"),
			CleanupInterval:    v.GetDuration("TRACKING_CLEANUP_INTERVAL"),
		},
		ExternalServices: ExternalServicesConfig{
			NotifyServiceURL:   v.GetString("NOTIFY_SERVICE_URL"),
			NotifyServiceToken: v.GetString("NOTIFY_INTERNAL_TOKEN"),
		},
	}

	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Devices report on a 30s cadence; the defaults below match that
	// observed client behavior and can be tuned per deployment.
	if cfg.Tracking.MovementThresholdM == 0 {
		cfg.Tracking.MovementThresholdM = 10
	}
	if cfg.Tracking.ArrivalRadiusM == 0 {
		cfg.Tracking.ArrivalRadiusM = 10
	}
	if cfg.Tracking.MinIngestInterval == 0 {
		cfg.Tracking.MinIngestInterval = 30 * time.Second
	}
	if cfg.Tracking.AccuracyCeilingM == 0 {
		cfg.Tracking.AccuracyCeilingM = 1000
	}
	if cfg.Tracking.CleanupInterval == 0 {
		cfg.Tracking.CleanupInterval = 5 * time.Minute
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Tracking.RetentionWindow < 0 {
		return fmt.Errorf("TRACKING_RETENTION_WINDOW must not be negative")
	}
	return nil
}
