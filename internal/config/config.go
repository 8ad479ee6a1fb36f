// Package config resolves client settings from defaults, an optional YAML
// file and REFLINK_* environment variables, in that order, and validates
// the result against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Defaults.
const (
	DefaultAffiliateURL       = "https://api.insertaffiliate.com"
	DefaultValidatorURL       = "https://validator.iaptic.com"
	DefaultHTTPTimeoutSeconds = 10
	DefaultDBPath             = "reflink.db"
	DefaultProfile            = "InsertAffiliate"
	DefaultDeviceIDPath       = "/etc/machine-id"
)

// Config is the resolved client configuration.
type Config struct {
	CompanyCode                  string    `yaml:"company_code" json:"company_code"`
	VerboseLogging               bool      `yaml:"verbose_logging" json:"verbose_logging"`
	InsertLinks                  bool      `yaml:"insert_links" json:"insert_links"`
	AttributionActiveTimeSeconds int64     `yaml:"attribution_active_time_seconds" json:"attribution_active_time_seconds"`
	HTTPTimeoutSeconds           int       `yaml:"http_timeout_seconds" json:"http_timeout_seconds"`
	DeviceIDPath                 string    `yaml:"device_id_path" json:"device_id_path"`
	Endpoints                    Endpoints `yaml:"endpoints" json:"endpoints"`
	Store                        Store     `yaml:"store" json:"store"`
}

// Endpoints are the backend base URLs.
type Endpoints struct {
	Affiliate string `yaml:"affiliate" json:"affiliate"`
	Validator string `yaml:"validator" json:"validator"`
}

// Store selects the persistent key-value backend.
type Store struct {
	Backend  string `yaml:"backend" json:"backend"`
	Path     string `yaml:"path" json:"path"`
	RedisURL string `yaml:"redis_url" json:"redis_url"`
	Profile  string `yaml:"profile" json:"profile"`
}

// HTTPTimeout returns the per-request timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPTimeoutSeconds: DefaultHTTPTimeoutSeconds,
		DeviceIDPath:       DefaultDeviceIDPath,
		Endpoints: Endpoints{
			Affiliate: DefaultAffiliateURL,
			Validator: DefaultValidatorURL,
		},
		Store: Store{
			Backend: BackendSQLite,
			Path:    DefaultDBPath,
			Profile: DefaultProfile,
		},
	}
}

// Load resolves the configuration. An empty path skips the file. Unknown
// YAML fields are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.CompanyCode = envString("REFLINK_COMPANY_CODE", cfg.CompanyCode)
	cfg.VerboseLogging = envBool("REFLINK_VERBOSE", cfg.VerboseLogging)
	cfg.InsertLinks = envBool("REFLINK_INSERT_LINKS", cfg.InsertLinks)
	cfg.AttributionActiveTimeSeconds = envInt64("REFLINK_ATTRIBUTION_ACTIVE_TIME", cfg.AttributionActiveTimeSeconds)
	cfg.HTTPTimeoutSeconds = int(envInt64("REFLINK_HTTP_TIMEOUT_SECONDS", int64(cfg.HTTPTimeoutSeconds)))
	cfg.DeviceIDPath = envString("REFLINK_DEVICE_ID_PATH", cfg.DeviceIDPath)
	cfg.Endpoints.Affiliate = envString("REFLINK_AFFILIATE_URL", cfg.Endpoints.Affiliate)
	cfg.Endpoints.Validator = envString("REFLINK_VALIDATOR_URL", cfg.Endpoints.Validator)
	cfg.Store.Backend = envString("REFLINK_STORE", cfg.Store.Backend)
	cfg.Store.Path = envString("REFLINK_DB", cfg.Store.Path)
	cfg.Store.RedisURL = envString("REFLINK_REDIS_URL", cfg.Store.RedisURL)
	cfg.Store.Profile = envString("REFLINK_PROFILE", cfg.Store.Profile)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks c against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func envString(name, fallback string) string {
	if raw := os.Getenv(name); raw != "" {
		return raw
	}
	return fallback
}

func envInt64(name string, fallback int64) int64 {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
			return v
		}
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			return v
		}
	}
	return fallback
}
