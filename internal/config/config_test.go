package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/livesync/internal/protocol"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-client
server:
  ws_url: ws://localhost:3000/websocket
  organisation_id: 5f1a
credentials:
  cookies:
    token-abc: secret
database:
  enabled: true
  host: localhost
  port: 5432
  name: livesync
  user: testuser
  password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-client" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-client")
	}
	if cfg.Server.WSURL != "ws://localhost:3000/websocket" {
		t.Errorf("Server.WSURL = %q", cfg.Server.WSURL)
	}
	if cfg.Server.OrganisationID != "5f1a" {
		t.Errorf("Server.OrganisationID = %q, want 5f1a", cfg.Server.OrganisationID)
	}
	if cfg.Credentials.Cookies["token-abc"] != "secret" {
		t.Errorf("Credentials.Cookies = %v", cfg.Credentials.Cookies)
	}
	if !cfg.Database.Enabled || cfg.Database.Host != "localhost" {
		t.Errorf("Database = %+v", cfg.Database)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_SESSION_TOKEN", "secret123")

	yaml := `
instance:
  id: test-client
server:
  ws_url: ws://localhost:3000/websocket
credentials:
  cookies:
    token-session: ${TEST_SESSION_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Credentials.Cookies["token-session"] != "secret123" {
		t.Errorf("token-session = %q, want %q", cfg.Credentials.Cookies["token-session"], "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-client
server:
  ws_url: ws://localhost:3000/websocket
subscriptions:
  - schema: statement
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Server.PingTimeout != DefaultPingTimeout {
		t.Errorf("Server.PingTimeout = %v, want default %v", cfg.Server.PingTimeout, DefaultPingTimeout)
	}
	if cfg.Credentials.CookiePrefix != DefaultCookiePrefix {
		t.Errorf("Credentials.CookiePrefix = %q, want default %q", cfg.Credentials.CookiePrefix, DefaultCookiePrefix)
	}
	if cfg.Registry.PendingPolicy != DefaultPendingPolicy {
		t.Errorf("Registry.PendingPolicy = %q, want default %q", cfg.Registry.PendingPolicy, DefaultPendingPolicy)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Subscriptions[0].Direction != DefaultDirection {
		t.Errorf("Subscriptions[0].Direction = %q, want default %q", cfg.Subscriptions[0].Direction, DefaultDirection)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, `
instance:
  id: test-client
server:
  ws_url: http://localhost:3000
`)

	_, err := LoadAndValidate(path)
	if err == nil || !strings.Contains(err.Error(), "server.ws_url must use ws or wss") {
		t.Errorf("LoadAndValidate() error = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSubscriptionDescriptor(t *testing.T) {
	cfg, err := Parse([]byte(`
subscriptions:
  - schema: statement
    filter:
      verb.id: http://adlnet.gov/expapi/verbs/completed
    sort:
      - field: _id
        order: 1
      - field: timestamp
        order: -1
    direction: backward
    cursor: c0
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	d, err := cfg.Subscriptions[0].Descriptor()
	if err != nil {
		t.Fatalf("Descriptor failed: %v", err)
	}

	if d.Schema != "statement" || d.Direction != "BACKWARD" || d.Cursor != protocol.StringCursor("c0") {
		t.Errorf("descriptor = %+v", d)
	}
	if string(d.Filter) != `{"verb.id":"http://adlnet.gov/expapi/verbs/completed"}` {
		t.Errorf("Filter = %s", d.Filter)
	}
	sortJSON, _ := json.Marshal(d.Sort)
	if string(sortJSON) != `{"_id":1,"timestamp":-1}` {
		t.Errorf("Sort = %s", sortJSON)
	}

	empty, _ := SubscriptionConfig{Schema: "persona"}.Descriptor()
	if string(empty.Filter) != `{}` {
		t.Errorf("empty Filter = %s, want {}", empty.Filter)
	}
}

func TestLogConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := (LogConfig{Level: tt.level}).SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func validConfig() Config {
	cfg := Default()
	cfg.Instance.ID = "test"
	cfg.Server.WSURL = "ws://localhost:3000/websocket"
	return *cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing ws url",
			mutate:  func(c *Config) { c.Server.WSURL = "" },
			wantErr: "server.ws_url is required",
		},
		{
			name:    "bad pending policy",
			mutate:  func(c *Config) { c.Registry.PendingPolicy = "retry" },
			wantErr: `registry.pending_policy must be drop or buffer, got "retry"`,
		},
		{
			name: "missing database password",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Host = "localhost"
				c.Database.Name = "db"
				c.Database.User = "user"
			},
			wantErr: "database.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{
					Enabled:  true,
					DBConfig: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10},
				}
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "database disabled skips db checks",
			mutate:  func(c *Config) { c.Database.Enabled = false; c.Database.Host = "" },
			wantErr: "",
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: `log.format must be text or json, got "xml"`,
		},
		{
			name: "unknown subscription schema",
			mutate: func(c *Config) {
				c.Subscriptions = []SubscriptionConfig{{Schema: "widget", Direction: "FORWARD"}}
			},
			wantErr: `subscriptions[0].schema: unknown schema "widget"`,
		},
		{
			name: "bad subscription direction",
			mutate: func(c *Config) {
				c.Subscriptions = []SubscriptionConfig{{Schema: "statement", Direction: "UP"}}
			},
			wantErr: `subscriptions[0].direction must be FORWARD or BACKWARD, got "UP"`,
		},
		{
			name: "bad sort order",
			mutate: func(c *Config) {
				c.Subscriptions = []SubscriptionConfig{
					{Schema: "statement", Direction: "BACKWARD"},
					{Schema: "persona", Direction: "forward", Sort: []protocol.SortField{{Field: "name", Order: 2}}},
				}
			},
			wantErr: "subscriptions[1].sort[0].order must be 1 or -1, got 2",
		},
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

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

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Writer.FlushInterval != 2*time.Second {
		t.Errorf("Writer.FlushInterval = %v, want 2s", cfg.Writer.FlushInterval)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
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
