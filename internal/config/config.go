package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	LogLevel   string `mapstructure:"log_level"`

	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval"`
	KeepAliveTimeout  time.Duration `mapstructure:"keepalive_timeout"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	MaxSessionAge     time.Duration `mapstructure:"max_session_age"`

	MaxCandidates int  `mapstructure:"max_candidates"`
	ValidateSDP   bool `mapstructure:"validate_sdp"`

	JoinRateLimit    int           `mapstructure:"join_rate_limit"`
	JoinRateInterval time.Duration `mapstructure:"join_rate_interval"`

	// TrustedProxies lists the proxy addresses or CIDRs whose
	// X-Forwarded-For is believed. Empty means the socket peer is the client.
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	AdminLoopbackOnly bool          `mapstructure:"admin_loopback_only"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
}

const (
	envPrefix     = "RENDEZVOUS"
	defaultSecret = "change-me"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "")
	v.SetDefault("secret", defaultSecret)
	v.SetDefault("log_level", "info")

	// Browsers send a keep-alive every 10s and give up after three misses;
	// the server waits a little longer before collecting the session.
	v.SetDefault("keepalive_interval", "10s")
	v.SetDefault("keepalive_timeout", "35s")
	v.SetDefault("sweep_interval", "5s")
	v.SetDefault("max_session_age", "12h")

	v.SetDefault("max_candidates", 256)
	v.SetDefault("validate_sdp", true)

	v.SetDefault("join_rate_limit", 30)
	v.SetDefault("join_rate_interval", "1m")

	v.SetDefault("trusted_proxies", []string{})
	v.SetDefault("admin_loopback_only", true)
	v.SetDefault("shutdown_grace", "5s")
}

// Flags declares the command-line overrides understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("rendezvous", pflag.ContinueOnError)
	fs.Int("port", 8080, "HTTP listen port")
	fs.String("mode", "release", "gin mode: release or debug")
	fs.String("log_level", "info", "log level: debug, info, warn, error")
	fs.String("static_path", "", "directory with the peer UI, empty to disable")
	return fs
}

// Load reads config/config.<CONFIG_ENV>.yaml, then environment variables
// prefixed RENDEZVOUS_, then flags that were explicitly set.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Dur("keepalive_timeout", cfg.KeepAliveTimeout).
		Dur("sweep_interval", cfg.SweepInterval).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("invalid server port")
	}
	if c.Mode != "release" && c.Mode != "debug" && c.Mode != "test" {
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	if c.KeepAliveInterval <= 0 {
		return errors.New("keepalive interval must be positive")
	}
	if c.KeepAliveTimeout <= c.KeepAliveInterval {
		return errors.New("keepalive timeout should be greater than keepalive interval")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.MaxSessionAge < 0 {
		return errors.New("max session age must not be negative")
	}
	if c.MaxSessionAge > 0 && c.MaxSessionAge <= c.KeepAliveTimeout {
		return errors.New("max session age should be greater than keepalive timeout")
	}
	if c.MaxCandidates < 0 {
		return errors.New("max candidates must not be negative")
	}
	if c.JoinRateLimit > 0 && c.JoinRateInterval <= 0 {
		return errors.New("join rate interval must be positive when rate limiting")
	}
	if len(c.Secret) < 8 {
		return errors.New("secret must be at least 8 bytes")
	}
	if c.Mode == "release" && c.Secret == defaultSecret {
		return errors.New("secret must be set in release mode")
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("invalid trusted proxy %q", p)
			}
		}
	}
	return nil
}
