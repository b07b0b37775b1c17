package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  listen_addr: 127.0.0.1:8000
  transport: gobwas
  allowed_origins:
    - http://chat.local
relay:
  admission_policy: reject
  fanout: parallel
  fanout_concurrency: 8
  send_timeout: 2s
database:
  host: localhost
  name: relay
  user: relay
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ListenAddr != "127.0.0.1:8000" {
		t.Errorf("Server.ListenAddr = %q, want %q", cfg.Server.ListenAddr, "127.0.0.1:8000")
	}
	if cfg.Server.Transport != "gobwas" {
		t.Errorf("Server.Transport = %q, want gobwas", cfg.Server.Transport)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://chat.local" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Relay.AdmissionPolicy != "reject" || cfg.Relay.Fanout != "parallel" {
		t.Errorf("Relay = %+v", cfg.Relay)
	}
	if cfg.Relay.SendTimeout != 2*time.Second {
		t.Errorf("Relay.SendTimeout = %v, want 2s", cfg.Relay.SendTimeout)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
database:
  host: localhost
  name: relay
  user: relay
  password: ${TEST_DB_PASSWORD}
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load() error = %v, want read error", err)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("Parse() error = %v, want parse error", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults(writeTempFile(t, "log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Server.ListenAddr != DefaultListenAddr {
		t.Errorf("Server.ListenAddr = %q, want default %q", cfg.Server.ListenAddr, DefaultListenAddr)
	}
	if cfg.Server.Transport != DefaultTransport {
		t.Errorf("Server.Transport = %q, want default %q", cfg.Server.Transport, DefaultTransport)
	}
	if cfg.Relay.AdmissionPolicy != DefaultAdmissionPolicy {
		t.Errorf("Relay.AdmissionPolicy = %q, want default %q", cfg.Relay.AdmissionPolicy, DefaultAdmissionPolicy)
	}
	if cfg.Relay.SendTimeout != DefaultSendTimeout {
		t.Errorf("Relay.SendTimeout = %v, want default %v", cfg.Relay.SendTimeout, DefaultSendTimeout)
	}
	if cfg.Heartbeat.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("Heartbeat.IdleTimeout = %v, want default %v", cfg.Heartbeat.IdleTimeout, DefaultIdleTimeout)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug (explicit value kept)", cfg.Log.Level)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *RelayConfig)
		wantErr string
	}{
		{
			name:    "defaults",
			mutate:  func(c *RelayConfig) {},
			wantErr: "",
		},
		{
			name:    "missing listen addr",
			mutate:  func(c *RelayConfig) { c.Server.ListenAddr = "" },
			wantErr: "server.listen_addr is required",
		},
		{
			name:    "unknown transport",
			mutate:  func(c *RelayConfig) { c.Server.Transport = "nhooyr" },
			wantErr: `server.transport must be one of [gorilla gobwas], got "nhooyr"`,
		},
		{
			name:    "unknown admission policy",
			mutate:  func(c *RelayConfig) { c.Relay.AdmissionPolicy = "first_wins" },
			wantErr: `relay.admission_policy must be one of [replace replace_notify reject], got "first_wins"`,
		},
		{
			name:    "unknown fanout",
			mutate:  func(c *RelayConfig) { c.Relay.Fanout = "random" },
			wantErr: `relay.fanout must be one of [sequential parallel], got "random"`,
		},
		{
			name:    "zero fanout concurrency",
			mutate:  func(c *RelayConfig) { c.Relay.FanoutConcurrency = 0 },
			wantErr: "relay.fanout_concurrency must be >= 1",
		},
		{
			name:    "negative heartbeat interval",
			mutate:  func(c *RelayConfig) { c.Heartbeat.Interval = -time.Second },
			wantErr: "heartbeat.interval must be > 0",
		},
		{
			name:    "negative idle timeout",
			mutate:  func(c *RelayConfig) { c.Heartbeat.IdleTimeout = -time.Second },
			wantErr: "heartbeat.idle_timeout must be >= 0",
		},
		{
			name:    "negative ping timeout",
			mutate:  func(c *RelayConfig) { c.Heartbeat.PingTimeout = -time.Second },
			wantErr: "heartbeat.ping_timeout must be >= 0",
		},
		{
			name: "disabled heartbeat skips checks",
			mutate: func(c *RelayConfig) {
				c.Heartbeat.Disabled = true
				c.Heartbeat.Interval = 0
			},
			wantErr: "",
		},
		{
			name:    "journal needs database host",
			mutate:  func(c *RelayConfig) { c.Journal.Enabled = true },
			wantErr: "database.host is required",
		},
		{
			name: "journal min_conns exceeds max_conns",
			mutate: func(c *RelayConfig) {
				c.Journal.Enabled = true
				c.Database = DBConfig{Host: "localhost", Name: "relay", User: "relay", MaxConns: 2, MinConns: 5}
			},
			wantErr: "database.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name: "journal negative flush interval",
			mutate: func(c *RelayConfig) {
				c.Journal.Enabled = true
				c.Journal.FlushInterval = -time.Second
				c.Database = DBConfig{Host: "localhost", Name: "relay", User: "relay", MaxConns: 4, MinConns: 1}
			},
			wantErr: "journal.flush_interval must be > 0",
		},
		{
			name: "journal with database",
			mutate: func(c *RelayConfig) {
				c.Journal.Enabled = true
				c.Database = DBConfig{Host: "localhost", Name: "relay", User: "relay", MaxConns: 4, MinConns: 1}
			},
			wantErr: "",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *RelayConfig) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *RelayConfig) { c.Log.Format = "xml" },
			wantErr: `log.format must be one of [text json], got "xml"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestLoadAndValidate(t *testing.T) {
	_, err := LoadAndValidate(writeTempFile(t, "relay:\n  fanout: sideways\n"))
	if err == nil || !strings.HasPrefix(err.Error(), "validate config: relay.fanout") {
		t.Errorf("LoadAndValidate() error = %v", err)
	}
}

func TestLoadAndValidate_NegativeFlushInterval(t *testing.T) {
	yaml := `
journal:
  enabled: true
  flush_interval: -1s
database:
  host: localhost
  name: relay
  user: relay
`
	_, err := LoadAndValidate(writeTempFile(t, yaml))
	if err == nil || err.Error() != "validate config: journal.flush_interval must be > 0" {
		t.Errorf("LoadAndValidate() error = %v", err)
	}
}

func TestExampleConfig(t *testing.T) {
	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "relay.example.yaml"))
	if err != nil {
		t.Fatalf("example config does not validate: %v", err)
	}
	if cfg.Server.ListenAddr != DefaultListenAddr {
		t.Errorf("example listen_addr = %q, want %q", cfg.Server.ListenAddr, DefaultListenAddr)
	}
	if cfg.Journal.Enabled {
		t.Error("example should leave the journal disabled")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
