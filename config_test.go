package go_nrepl

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Host != NREPL_DEFAULT_HOST {
		t.Errorf("Host = %q, want %q", cfg.Host, NREPL_DEFAULT_HOST)
	}
	if cfg.Port != NREPL_DEFAULT_PORT {
		t.Errorf("Port = %d, want %d", cfg.Port, NREPL_DEFAULT_PORT)
	}
	if got := cfg.DialAddress(); got != "localhost:7888" {
		t.Errorf("DialAddress() = %q, want localhost:7888", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("NREPL_HOST", "")
	t.Setenv("NREPL_PORT", "")
	t.Setenv("GO_NREPL_CONF", "")

	path := filepath.Join(t.TempDir(), "nrepl.toml")
	content := `
host = "repl.example.com"
port = 50505
connect_timeout = "250ms"
max_sessions = 4
message_stats = true
unknown_key = 1

[tls]
enabled = true
ca_file = "/etc/ca.pem"

[reconnect]
enabled = true
max_retries = 3
initial_backoff = "2s"

[circuit_breaker]
max_failures = 9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "repl.example.com", cfg.Host)
	assert.Equal(t, 50505, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectTimeout)
	assert.Equal(t, 4, cfg.MaxSessions)
	assert.True(t, cfg.MessageStats)
	assert.True(t, cfg.TLS.Enabled)
	assert.Equal(t, "/etc/ca.pem", cfg.TLS.CAFile)
	assert.True(t, cfg.Reconnect.Enabled)
	assert.Equal(t, 3, cfg.Reconnect.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.InitialBackoff)
	assert.Equal(t, 9, cfg.CircuitBreaker.MaxFailures)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.CircuitBreaker.ResetTimeout)
	assert.Equal(t, NREPL_MAX_MESSAGE_SIZE, cfg.MaxMessageSize)

	assert.Equal(t, "tls://repl.example.com:50505", cfg.DialAddress())
}

func TestLoadConfigEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nrepl.toml")
	require.NoError(t, os.WriteFile(path, []byte(`port = 1111`), 0o644))

	t.Setenv("GO_NREPL_CONF", path)
	t.Setenv("NREPL_HOST", "10.0.0.5")
	t.Setenv("NREPL_PORT", "2222")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Host)
	assert.Equal(t, 2222, cfg.Port)

	t.Setenv("NREPL_PORT", "not-a-number")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 1111, cfg.Port, "invalid env port keeps the file value")
}

func TestLoadConfigErrors(t *testing.T) {
	t.Setenv("NREPL_HOST", "")
	t.Setenv("NREPL_PORT", "")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte(`port = "x`), 0o644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	outOfRange := filepath.Join(t.TempDir(), "range.toml")
	require.NoError(t, os.WriteFile(outOfRange, []byte(`port = 70000`), 0o644))
	_, err = LoadConfig(outOfRange)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero port", func(c *Config) { c.Port = 0 }, true},
		{"zero port with address", func(c *Config) { c.Port = 0; c.Address = "unix:///tmp/nrepl.sock" }, false},
		{"negative timeout", func(c *Config) { c.ConnectTimeout = -time.Second }, true},
		{"negative sessions", func(c *Config) { c.MaxSessions = -1 }, true},
		{"cert without key", func(c *Config) { c.TLS.Enabled = true; c.TLS.CertFile = "c.pem" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDiscoverPort(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "src", "app")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, NREPL_PORT_FILE), []byte("43210\n"), 0o644))

	port, path, err := DiscoverPort(nested)
	require.NoError(t, err)
	assert.Equal(t, 43210, port)
	assert.Equal(t, filepath.Join(root, NREPL_PORT_FILE), path)

	require.NoError(t, os.WriteFile(filepath.Join(nested, NREPL_PORT_FILE), []byte("junk"), 0o644))
	_, _, err = DiscoverPort(nested)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDiscoverPortMissing(t *testing.T) {
	// A temp dir's ancestors are not expected to carry a port file.
	_, _, err := DiscoverPort(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
