// Package config loads daemon and CLI settings from ACTIVITY_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration.
type Config struct {
	DataDir        string `env:"ACTIVITY_DATA_DIR" envDefault:"./data"`
	Backend        string `env:"ACTIVITY_BACKEND" envDefault:"file"`
	Port           string `env:"ACTIVITY_PORT" envDefault:"7001"`
	HTTPPort       string `env:"ACTIVITY_HTTP_PORT" envDefault:"7002"`
	DisableTLS     bool   `env:"ACTIVITY_DISABLE_TLS"`
	Retention      int    `env:"ACTIVITY_RETENTION"`
	MasterKey      string `env:"ACTIVITY_MASTER_KEY"`
	StrictPayloads bool   `env:"ACTIVITY_STRICT_PAYLOADS" envDefault:"true"`
	LogLevel       string `env:"ACTIVITY_LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"ACTIVITY_LOG_FORMAT" envDefault:"text"`
	OTelEndpoint   string `env:"ACTIVITY_OTEL_ENDPOINT"`
	PebbleFsync    string `env:"ACTIVITY_PEBBLE_FSYNC" envDefault:"interval"`
}

// Backends lists the accepted values of ACTIVITY_BACKEND.
var Backends = []string{"memory", "file", "pebble", "sqlite"}

// Load parses the environment into a Config and checks enumerated values.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if !knownBackend(cfg.Backend) {
		return cfg, fmt.Errorf("unknown backend %q (want one of %s)", cfg.Backend, strings.Join(Backends, ", "))
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return cfg, fmt.Errorf("unknown log format %q (want text or json)", cfg.LogFormat)
	}
	return cfg, nil
}

func knownBackend(name string) bool {
	for _, b := range Backends {
		if b == name {
			return true
		}
	}
	return false
}
