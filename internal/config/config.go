package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the explicit runtime configuration for a load run. Leaf code never
// reads the environment directly; everything flows through this value.
type Config struct {
	// ClientID and ClientSecret are the OpenGround client-credentials pair.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// Region selects the region-scoped API host, e.g. "us".
	Region string `yaml:"region"`

	// InstanceID is the OpenGround cloud instance id sent on every request.
	InstanceID string `yaml:"instance_id"`

	// ProjectID is the cloud id of the project records are loaded into.
	ProjectID string `yaml:"project_id"`

	// TokenURL and BaseURL override the production endpoints. Used by the
	// local harness and tests; empty means the real OpenGround endpoints.
	TokenURL string `yaml:"token_url"`
	BaseURL  string `yaml:"base_url"`

	// RateLimitRPS caps remote calls per second across the run. <=0 disables.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// Load reads configuration from environment variables, optionally seeded from
// a .env file. When OPENGROUND_CONFIG_FILE is set, the YAML file is read first
// and individual env vars override its values.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if p := strings.TrimSpace(os.Getenv("OPENGROUND_CONFIG_FILE")); p != "" {
		fileCfg, err := LoadFile(p)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	overrideEnv(&cfg.ClientID, "OPENGROUND_CLIENT_ID")
	overrideEnv(&cfg.ClientSecret, "OPENGROUND_CLIENT_SECRET")
	overrideEnv(&cfg.Region, "CLOUD_REGION")
	overrideEnv(&cfg.InstanceID, "CLOUD_ID")
	overrideEnv(&cfg.ProjectID, "PROJECT_CLOUD_ID")
	overrideEnv(&cfg.TokenURL, "OPENGROUND_TOKEN_URL")
	overrideEnv(&cfg.BaseURL, "OPENGROUND_BASE_URL")

	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_RPS=%q: %w", v, err)
		}
		cfg.RateLimitRPS = rps
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file YAML: %w", err)
	}
	return cfg, nil
}

// Validate checks that every field required to reach OpenGround is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("OPENGROUND_CLIENT_ID is required")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return fmt.Errorf("OPENGROUND_CLIENT_SECRET is required")
	}
	if strings.TrimSpace(c.Region) == "" && strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("CLOUD_REGION is required when OPENGROUND_BASE_URL is not set")
	}
	if strings.TrimSpace(c.InstanceID) == "" {
		return fmt.Errorf("CLOUD_ID is required")
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		return fmt.Errorf("PROJECT_CLOUD_ID is required")
	}
	return nil
}

func overrideEnv(dst *string, varName string) {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		*dst = v
	}
}
