package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// SMTP relay (fixed; credentials arrive per job)
	// ----------------------------
	SMTPHost string `envconfig:"SMTP_HOST" default:"smtp.gmail.com"`
	SMTPPort int    `envconfig:"SMTP_PORT" default:"465"`
	SMTPSSL  bool   `envconfig:"SMTP_SSL" default:"true"`

	// ----------------------------
	// Sending
	// ----------------------------
	DefaultSenderName string `envconfig:"DEFAULT_SENDER_NAME" default:"Interview Opportunity"`
	SendRate          int    `envconfig:"SEND_RATE" default:"2"`
	MaxRows           int    `envconfig:"MAX_ROWS" default:"1000"`

	// ----------------------------
	// Progress streaming
	// ----------------------------
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"30s"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
