package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ServerEnv holds the environment switches read by cmd/server.
type ServerEnv struct {
	DeployEnv string `env:"DEPLOY_ENV"`

	// Empty means "not set"; the default then depends on DeployEnv.
	EnableAdminHTTP string `env:"VG_ENABLE_ADMIN_HTTP"`
	EnablePprofHTTP bool  `env:"VG_ENABLE_PPROF_HTTP" envDefault:"false"`
	EnableMCPHTTP   bool  `env:"VG_ENABLE_MCP_HTTP" envDefault:"false"`

	IndexBackend string `env:"VG_INDEX_BACKEND" envDefault:"sqlite"`
	D1IngestURL  string `env:"VG_INDEX_D1_INGEST_URL"`
	D1Token      string `env:"VG_INDEX_D1_TOKEN"`
	D1FlushMS    int    `env:"VG_INDEX_D1_FLUSH_MS" envDefault:"500"`
	D1BatchSize  int    `env:"VG_INDEX_D1_BATCH_SIZE" envDefault:"128"`

	OTelEndpoint string `env:"VG_OTEL_ENDPOINT"`
	OTelEnabled  string `env:"VG_OTEL_ENABLED"`
}

func LoadServerEnv() (ServerEnv, error) {
	var e ServerEnv
	if err := ParseEnv(&e); err != nil {
		return ServerEnv{}, err
	}
	e.IndexBackend = strings.ToLower(strings.TrimSpace(e.IndexBackend))
	e.D1IngestURL = strings.TrimSpace(e.D1IngestURL)
	return e, nil
}

// AdminHTTPEnabled defaults to on outside staging and production.
func (e ServerEnv) AdminHTTPEnabled() bool {
	if v := strings.TrimSpace(e.EnableAdminHTTP); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	switch strings.ToLower(strings.TrimSpace(e.DeployEnv)) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
