package observability

import (
	"strings"

	"github.com/smallbiznis/airtax/internal/config"
)

// Config is the slice of application config that logging, tracing and the
// otel meter need.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "airtax"
	}
	level := cfg.LogLevel
	if level == "" {
		level = "info"
	}
	format := "json"
	if cfg.LogFormat == "console" {
		format = "console"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.ToLower(cfg.Environment),
		Version:              cfg.AppVersion,
		LogLevel:             level,
		LogFormat:            format,
		OtelEnabled:          cfg.TracingEnabled && cfg.OTLPEndpoint != "",
		OtelExporterEndpoint: cfg.OTLPEndpoint,
		OtelExporterProtocol: cfg.OTLPProtocol,
	}
}

// Debug turns on verbose request logging and SQL traces outside production
// like environments.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch c.Environment {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
