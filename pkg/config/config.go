package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Power modes select how the power check picks its reset target
const (
	PowerModeToggle  = "toggle"
	PowerModeForceOn = "force-on"
)

// Config contains all configuration for the harness
type Config struct {
	Log     LogConfig     `yaml:"log"`
	BMC     BMCConfig     `yaml:"bmc"`
	Auth    AuthConfig    `yaml:"auth"`
	Power   PowerConfig   `yaml:"power"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// BMCConfig describes the target BMC and how to reach it
type BMCConfig struct {
	Host      string `yaml:"host" env:"BMC_HOST" default:"host.docker.internal"`
	Port      int    `yaml:"port" env:"BMC_PORT" default:"2443"`
	Scheme    string `yaml:"scheme" env:"BMC_SCHEME" default:"https"`
	Username  string `yaml:"username" env:"BMC_USER" default:"root"`
	Password  string `yaml:"password" env:"BMC_PASSWORD" default:"0penBmc"`
	VerifyTLS bool   `yaml:"verify_tls" env:"SSL_VERIFY" default:"false"`

	// SystemID is the ComputerSystem member under /redfish/v1/Systems
	SystemID       string        `yaml:"system_id" env:"BMC_SYSTEM_ID" default:"system"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"BMC_REQUEST_TIMEOUT" default:"10s"`
}

// Endpoint returns the base URL of the BMC, e.g. https://10.0.0.5:2443
func (b BMCConfig) Endpoint() string {
	return b.Scheme + "://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// AuthConfig controls session creation
type AuthConfig struct {
	MaxRetries int           `yaml:"max_retries" env:"AUTH_MAX_RETRIES" default:"3"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"AUTH_RETRY_DELAY" default:"5s"`

	// CheckInvalid enables the negative login check using InvalidPassword
	CheckInvalid    bool   `yaml:"check_invalid" env:"AUTH_CHECK_INVALID" default:"true"`
	InvalidPassword string `yaml:"invalid_password" env:"AUTH_INVALID_PASSWORD" default:"invalid"`

	// Logout deletes the harness session when the run ends
	Logout bool `yaml:"logout" env:"AUTH_LOGOUT" default:"false"`
}

// PowerConfig controls the power transition check
type PowerConfig struct {
	Enabled      bool          `yaml:"enabled" env:"POWER_ENABLED" default:"true"`
	Mode         string        `yaml:"mode" env:"POWER_MODE" default:"toggle"`
	SettleDelay  time.Duration `yaml:"settle_delay" env:"POWER_SETTLE_DELAY" default:"10s"`
	ResetTimeout time.Duration `yaml:"reset_timeout" env:"POWER_RESET_TIMEOUT" default:"30s"`

	// StrictStatus accepts only 204 from the reset action instead of 200 or 204
	StrictStatus bool `yaml:"strict_status" env:"POWER_STRICT_STATUS" default:"false"`
}

// MetricsConfig controls the Prometheus textfile export
type MetricsConfig struct {
	File string `yaml:"file" env:"METRICS_FILE"`
}

// Load loads the harness configuration from defaults, configFile, envFile
// and the environment, then validates it. Either path may be empty.
func Load(configFile, envFile string) (*Config, error) {
	cfg, err := LoadRaw(configFile, envFile)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("harness configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadRaw is Load without validation, for callers that apply overrides
// before calling Validate themselves
func LoadRaw(configFile, envFile string) (*Config, error) {
	cfg := &Config{}

	loader := NewLoader(LoaderConfig{
		ConfigFile:      configFile,
		EnvironmentFile: envFile,
		EnvPrefix:       "harness",
	})
	if err := loader.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load harness configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration and normalises case-insensitive values
func (c *Config) Validate() error {
	if c.BMC.Host == "" {
		return fmt.Errorf("bmc host is required")
	}
	if c.BMC.Port < 1 || c.BMC.Port > 65535 {
		return fmt.Errorf("bmc port must be between 1 and 65535, got %d", c.BMC.Port)
	}

	c.BMC.Scheme = strings.ToLower(c.BMC.Scheme)
	if c.BMC.Scheme != "http" && c.BMC.Scheme != "https" {
		return fmt.Errorf("bmc scheme must be http or https, got %q", c.BMC.Scheme)
	}
	if c.BMC.Username == "" {
		return fmt.Errorf("bmc username is required")
	}
	if c.BMC.SystemID == "" {
		return fmt.Errorf("bmc system id is required")
	}
	if c.BMC.RequestTimeout <= 0 {
		return fmt.Errorf("bmc request timeout must be positive")
	}

	if c.Auth.MaxRetries < 1 {
		return fmt.Errorf("auth max retries must be at least 1")
	}
	if c.Auth.RetryDelay < 0 {
		return fmt.Errorf("auth retry delay must not be negative")
	}
	if c.Auth.CheckInvalid && c.Auth.InvalidPassword == c.BMC.Password {
		return fmt.Errorf("auth invalid password must differ from the bmc password")
	}

	c.Power.Mode = strings.ToLower(c.Power.Mode)
	if c.Power.Mode != PowerModeToggle && c.Power.Mode != PowerModeForceOn {
		return fmt.Errorf("power mode must be %q or %q, got %q", PowerModeToggle, PowerModeForceOn, c.Power.Mode)
	}
	if c.Power.SettleDelay < 0 {
		return fmt.Errorf("power settle delay must not be negative")
	}
	if c.Power.ResetTimeout <= 0 {
		return fmt.Errorf("power reset timeout must be positive")
	}

	return nil
}
