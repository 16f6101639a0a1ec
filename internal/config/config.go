// Package config loads the agent configuration file, creating it with
// defaults on first run.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mibagent/internal/agent"
	"mibagent/internal/mib"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
)

const (
	DefaultFile = "mibagent.config"

	EnvSMTPPassword = "MIBAGENT_SMTP_PASSWORD"
	EnvJWTSecret    = "MIBAGENT_JWT_SECRET"
	EnvHTTPPort     = "MIBAGENT_HTTP_PORT"
)

// SMTP holds outbound mail settings.
type SMTP struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host" validate:"required_if=Enabled true"`
	Port     int    `json:"port" validate:"min=0,max=65535"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from" validate:"omitempty,email"`
}

// Account is an HTTP API login. PasswordHash is a bcrypt hash.
type Account struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// Config is the on-disk agent configuration.
type Config struct {
	RootPath string `json:"root_path"`

	ListenAddress  string `json:"listen_address" validate:"required,hostname_port"`
	ReadCommunity  string `json:"read_community" validate:"required"`
	WriteCommunity string `json:"write_community" validate:"required,nefield=ReadCommunity"`

	TrapHost      string `json:"trap_host" validate:"required"`
	TrapPort      int    `json:"trap_port" validate:"min=1,max=65535"`
	TrapCommunity string `json:"trap_community" validate:"required"`
	EventOID      string `json:"event_oid" validate:"required"`

	MonitorIntervalSeconds int    `json:"monitor_interval_seconds" validate:"min=1,max=3600"`
	StateFile              string `json:"state_file" validate:"required"`

	SMTP           SMTP   `json:"smtp"`
	DiscordWebhook string `json:"discord_webhook" validate:"omitempty,url"`

	HTTPPort    int     `json:"http_port" validate:"min=0,max=65535"`
	Admin       Account `json:"admin"`
	Viewer      Account `json:"viewer"`
	JWTSecret   string  `json:"jwt_secret"`
	VerboseHTTP bool    `json:"verbose_http"`

	RateLimit float64 `json:"rate_limit" validate:"gte=0"`
	RateBurst int     `json:"rate_burst" validate:"min=1"`

	AutoPortForward bool `json:"auto_port_forward"`

	path string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddress:          "0.0.0.0:1161",
		ReadCommunity:          "public",
		WriteCommunity:         "private",
		TrapHost:               "127.0.0.1",
		TrapPort:               162,
		TrapCommunity:          "public",
		EventOID:               mib.CPUEventOID.String(),
		MonitorIntervalSeconds: 5,
		StateFile:              "mib_state.json",
		SMTP: SMTP{
			Host: "smtp.gmail.com",
			Port: 465,
		},
		HTTPPort:  8080,
		Admin:     Account{Username: "admin"},
		RateLimit: 50,
		RateBurst: 100,
	}
}

var validate = validator.New()

// Load reads path, creating it from Default when it does not exist.
// Environment overrides are applied after reading. The second result
// reports whether the file was created.
func Load(path string) (*Config, bool, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultFile
	}
	cfg := Default()
	cfg.path = path

	created := false
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		secret, serr := randomSecret()
		if serr != nil {
			return nil, false, serr
		}
		cfg.JWTSecret = secret
		if err := cfg.Save(); err != nil {
			return nil, false, err
		}
		created = true
	case err != nil:
		return nil, false, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, false, fmt.Errorf("error parsing configuration: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, created, err
	}
	return cfg, created, nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

// Save writes the config with indentation.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("config path cannot be empty")
	}
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to ensure config directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvSMTPPassword)); v != "" {
		c.SMTP.Password = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		c.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHTTPPort)); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = port
		}
	}
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := mib.ParseOID(c.EventOID); err != nil {
		return fmt.Errorf("invalid configuration: event_oid: %w", err)
	}
	if c.HTTPPort > 0 && strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("invalid configuration: jwt_secret is required when the HTTP API is enabled")
	}
	return nil
}

// Communities maps the configured community strings to principal classes.
func (c *Config) Communities() map[string]agent.Class {
	return map[string]agent.Class{
		c.ReadCommunity:  agent.ReadOnly,
		c.WriteCommunity: agent.ReadWrite,
	}
}

// MonitorInterval returns the sampling period.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalSeconds) * time.Second
}

// EventOIDValue returns the parsed notification OID. Validate guarantees
// it parses.
func (c *Config) EventOIDValue() mib.OID {
	oid, err := mib.ParseOID(c.EventOID)
	if err != nil {
		return mib.CPUEventOID.Clone()
	}
	return oid
}

// ListenPort returns the numeric port of ListenAddress.
func (c *Config) ListenPort() int {
	_, port, err := net.SplitHostPort(c.ListenAddress)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

// Limit returns the per-source request rate. Zero disables limiting.
func (c *Config) Limit() rate.Limit {
	if c.RateLimit <= 0 {
		return rate.Inf
	}
	return rate.Limit(c.RateLimit)
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
