package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const DefaultSTUNServer = "stun:stun.l.google.com:19302"

type ServerConfig struct {
	Mode             string        `mapstructure:"mode"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	HTMLFile         string        `mapstructure:"html_file"`
	CertFile         string        `mapstructure:"cert_file"`
	KeyFile          string        `mapstructure:"key_file"`
	Debug            bool          `mapstructure:"debug"`
	ICEServers       []string      `mapstructure:"ice_servers"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	GatherTimeout    time.Duration `mapstructure:"gather_timeout"`
	CleanupQueueSize int           `mapstructure:"cleanup_queue_size"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	OfferRateLimit   int           `mapstructure:"offer_rate_limit"`
	OfferRateWindow  time.Duration `mapstructure:"offer_rate_window"`
}

func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TLS reports whether HTTPS should be served.
func (c *ServerConfig) TLS() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("cert_file and key_file must be set together")
	}
	if c.CleanupQueueSize <= 0 {
		return fmt.Errorf("cleanup_queue_size must be positive, got %d", c.CleanupQueueSize)
	}
	if c.ConnectTimeout < 0 || c.GatherTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.OfferRateLimit > 0 && c.OfferRateWindow <= 0 {
		return errors.New("offer_rate_window must be positive when offer_rate_limit is set")
	}
	return nil
}

type ClientConfig struct {
	ServerURL  string        `mapstructure:"server_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Debug      bool          `mapstructure:"debug"`
	ICEServers []string      `mapstructure:"ice_servers"`
}

func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

func serverDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("html_file", "./html/index.html")
	v.SetDefault("debug", false)
	v.SetDefault("ice_servers", []string{DefaultSTUNServer})
	v.SetDefault("connect_timeout", "30s")
	v.SetDefault("gather_timeout", "2s")
	v.SetDefault("cleanup_queue_size", 64)
	v.SetDefault("shutdown_timeout", "5s")
	v.SetDefault("offer_rate_limit", 0)
	v.SetDefault("offer_rate_window", "1m")
}

func clientDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:8080/offer")
	v.SetDefault("timeout", "10s")
	v.SetDefault("debug", false)
	v.SetDefault("ice_servers", []string{DefaultSTUNServer})
}

// LoadServer merges defaults, config/server.<env>.yaml, ECHO_* env vars and flags.
func LoadServer(flags *pflag.FlagSet) (*ServerConfig, error) {
	v, err := load("server", serverDefaults, flags)
	if err != nil {
		return nil, err
	}
	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Str("addr", cfg.Addr()).
		Str("html_file", cfg.HTMLFile).
		Bool("tls", cfg.TLS()).
		Dur("connect_timeout", cfg.ConnectTimeout).
		Msg("server config")
	return &cfg, nil
}

// LoadClient merges defaults, config/client.<env>.yaml, ECHO_* env vars and flags.
func LoadClient(flags *pflag.FlagSet) (*ClientConfig, error) {
	v, err := load("client", clientDefaults, flags)
	if err != nil {
		return nil, err
	}
	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func load(role string, defaults func(*viper.Viper), flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/%s.%s.yaml", role, env)
	v.SetConfigFile(fileName)

	defaults(v)

	v.SetEnvPrefix("ECHO")
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Debug().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
	return v, nil
}
