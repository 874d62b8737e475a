package go_nrepl

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-i2p/logger"
)

// NREPL_PORT_FILE is the file nREPL servers write their port to in the
// project directory.
const NREPL_PORT_FILE = ".nrepl-port"

// TLSConfig selects TLS for the connection.
type TLSConfig struct {
	Enabled  bool   `toml:"enabled"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
	CAFile   string `toml:"ca_file"`
	Insecure bool   `toml:"insecure"`
}

// ReconnectConfig is the auto-reconnect policy.
type ReconnectConfig struct {
	Enabled        bool          `toml:"enabled"`
	MaxRetries     int           `toml:"max_retries"` // 0 means unlimited
	InitialBackoff time.Duration `toml:"initial_backoff"`
}

// CircuitBreakerConfig controls when dialing starts failing fast.
type CircuitBreakerConfig struct {
	MaxFailures  int           `toml:"max_failures"`
	ResetTimeout time.Duration `toml:"reset_timeout"`
}

// Config holds everything needed to build and connect a Client.
type Config struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// Address overrides Host and Port; it accepts the forms ResolveAddr does.
	Address        string        `toml:"address"`
	ConnectTimeout time.Duration `toml:"connect_timeout"`
	MaxMessageSize int           `toml:"max_message_size"`
	MaxSessions    int           `toml:"max_sessions"`
	MessageStats   bool          `toml:"message_stats"`

	TLS            TLSConfig            `toml:"tls"`
	Reconnect      ReconnectConfig      `toml:"reconnect"`
	CircuitBreaker CircuitBreakerConfig `toml:"circuit_breaker"`
}

// DefaultConfig returns the configuration used by NewClient.
func DefaultConfig() *Config {
	return &Config{
		Host:           NREPL_DEFAULT_HOST,
		Port:           NREPL_DEFAULT_PORT,
		ConnectTimeout: NREPL_DEFAULT_CONNECT_TIMEOUT,
		MaxMessageSize: NREPL_MAX_MESSAGE_SIZE,
		MaxSessions:    NREPL_MAX_SESSIONS_PER_CLIENT,
		Reconnect: ReconnectConfig{
			MaxRetries:     5,
			InitialBackoff: time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		},
	}
}

// LoadConfig reads a TOML file over the defaults and then applies
// environment overrides. An empty path reads GO_NREPL_CONF if set, and
// otherwise only the defaults and environment are used.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("GO_NREPL_CONF")
	}
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("nrepl: load config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			log.WithFields(logger.Fields{
				"at":   "nrepl.LoadConfig",
				"path": path,
				"keys": undecoded,
			}).Warn("ignoring_unknown_config_keys")
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if host := os.Getenv("NREPL_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("NREPL_PORT"); port != "" {
		cfg.Port = parseIntWithDefault(port, cfg.Port)
	}
}

// Validate checks that the configuration can be used.
func (cfg *Config) Validate() error {
	if cfg.Address == "" && (cfg.Port <= 0 || cfg.Port > 65535) {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidArgument, cfg.Port)
	}
	if cfg.ConnectTimeout < 0 {
		return fmt.Errorf("%w: negative connect_timeout", ErrInvalidArgument)
	}
	if cfg.MaxSessions < 0 {
		return fmt.Errorf("%w: negative max_sessions", ErrInvalidArgument)
	}
	if cfg.TLS.Enabled && (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return fmt.Errorf("%w: tls cert_file and key_file must be set together", ErrInvalidArgument)
	}
	return nil
}

// DialAddress returns the address Connect should dial.
func (cfg *Config) DialAddress() string {
	if cfg.Address != "" {
		return cfg.Address
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	if cfg.TLS.Enabled {
		return "tls://" + addr
	}
	return addr
}

// DiscoverPort looks for a .nrepl-port file in dir and its parents and
// returns the port it holds together with the file's path.
func DiscoverPort(dir string) (int, string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return 0, "", err
	}
	for {
		path := filepath.Join(dir, NREPL_PORT_FILE)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			port, perr := strconv.Atoi(strings.TrimSpace(string(data)))
			if perr != nil || port <= 0 || port > 65535 {
				return 0, path, fmt.Errorf("%w: bad port in %s", ErrInvalidArgument, path)
			}
			return port, path, nil
		case !errors.Is(err, os.ErrNotExist):
			return 0, path, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return 0, "", fmt.Errorf("nrepl: no %s found: %w", NREPL_PORT_FILE, os.ErrNotExist)
		}
		dir = parent
	}
}
