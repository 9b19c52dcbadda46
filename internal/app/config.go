package api

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port         string        `yaml:"port"`
	DSN          string        `yaml:"dsn"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format"`

	AuthEnabled bool          `yaml:"auth_enabled"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	Secret      string        `yaml:"secret"`
	KeyID       string        `yaml:"key_id"`
	Leeway      time.Duration `yaml:"leeway"`

	TokenHeader          string   `yaml:"token_header"`
	TokenScheme          string   `yaml:"token_scheme"`
	TokenQueryParam      string   `yaml:"token_query_param"`
	PreflightPassthrough bool     `yaml:"preflight_passthrough"`
	TrustedProxies       []string `yaml:"trusted_proxies"`

	AuditBuffer int `yaml:"audit_buffer"`
}

func DefaultConfig() Config {
	return Config{
		Port:         "4040",
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		LogLevel:     "info",
		LogFormat:    "text",
		KeyID:        "default",
		AuditBuffer:  256,
	}
}

// LoadConfig starts from DefaultConfig, applies the YAML file named by CONFIG_FILE
// if set, then environment variables, then validates the result.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("PORT", &cfg.Port)
	str("DB_CONN", &cfg.DSN)
	duration("READ_TIMEOUT", &cfg.ReadTimeout)
	duration("WRITE_TIMEOUT", &cfg.WriteTimeout)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	boolean("AUTH_ENABLED", &cfg.AuthEnabled)
	str("AUTH_ISSUER", &cfg.Issuer)
	str("AUTH_AUDIENCE", &cfg.Audience)
	str("AUTH_JWKS_URL", &cfg.JWKSURL)
	str("AUTH_SECRET", &cfg.Secret)
	str("AUTH_KEY_ID", &cfg.KeyID)
	duration("AUTH_LEEWAY", &cfg.Leeway)
	str("AUTH_HEADER", &cfg.TokenHeader)
	str("AUTH_SCHEME", &cfg.TokenScheme)
	str("AUTH_QUERY_PARAM", &cfg.TokenQueryParam)
	boolean("AUTH_PREFLIGHT_PASSTHROUGH", &cfg.PreflightPassthrough)
	if v, ok := lookup("TRUSTED_PROXIES"); ok && v != "" {
		cfg.TrustedProxies = splitList(v)
	}
	integer("AUDIT_BUFFER", &cfg.AuditBuffer)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is empty"))
	}
	if c.AuthEnabled && c.Secret == "" && c.JWKSURL == "" && c.Issuer == "" {
		errs = append(errs, errors.New("auth enabled but no secret, jwks url or issuer configured"))
	}
	if c.Secret != "" && c.JWKSURL != "" {
		errs = append(errs, errors.New("secret and jwks url are mutually exclusive"))
	}
	if c.Leeway < 0 {
		errs = append(errs, errors.New("leeway must not be negative"))
	}
	if c.AuditBuffer < 0 {
		errs = append(errs, errors.New("audit buffer must not be negative"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// jwksURL returns the configured key set location, deriving the Keycloak
// certificate endpoint from the issuer when none is set.
func (c Config) jwksURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	if c.Issuer != "" {
		return strings.TrimSuffix(c.Issuer, "/") + "/protocol/openid-connect/certs"
	}
	return ""
}
