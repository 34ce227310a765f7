package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/livesync/internal/protocol"
)

// Config is the root configuration for a livesync instance.
type Config struct {
	Instance      InstanceConfig       `yaml:"instance"`
	Server        ServerConfig         `yaml:"server"`
	Credentials   CredentialsConfig    `yaml:"credentials"`
	Connection    ConnectionConfig     `yaml:"connection"`
	Registry      RegistryConfig       `yaml:"registry"`
	Normalizer    NormalizerConfig     `yaml:"normalizer"`
	Database      DatabaseConfig       `yaml:"database"`
	Writer        WriterConfig         `yaml:"writer"`
	Metrics       MetricsConfig        `yaml:"metrics"`
	Log           LogConfig            `yaml:"log"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

// InstanceConfig identifies this client.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds the live-sync endpoint and socket timeouts.
type ServerConfig struct {
	WSURL            string        `yaml:"ws_url"`
	Origin           string        `yaml:"origin"`
	OrganisationID   string        `yaml:"organisation_id"` // Routing context sent with every REGISTER
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
}

// CredentialsConfig seeds the session cookie store.
type CredentialsConfig struct {
	CookiePrefix string            `yaml:"cookie_prefix"` // Only cookies with this prefix are sent
	Cookies      map[string]string `yaml:"cookies"`
	CookieHeader string            `yaml:"cookie_header"` // Raw "a=1; b=2" header, merged into Cookies
}

// ConnectionConfig holds websocket buffer sizes.
type ConnectionConfig struct {
	FrameBuffer int `yaml:"frame_buffer"`
	EventBuffer int `yaml:"event_buffer"`
}

// RegistryConfig holds Subscription Registry settings.
type RegistryConfig struct {
	QueueSize     int    `yaml:"queue_size"`
	PendingPolicy string `yaml:"pending_policy"` // "drop" or "buffer"
}

// NormalizerConfig holds Message Normalizer settings.
type NormalizerConfig struct {
	InputBuffer int `yaml:"input_buffer"`
}

// DatabaseConfig holds the optional entity mirror database.
type DatabaseConfig struct {
	Enabled  bool `yaml:"enabled"`
	DBConfig `yaml:",inline"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ApplicationName string        `yaml:"application_name"`
}

// WriterConfig holds entity mirror batch settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds the status server settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SlogLevel maps Level to a slog.Level. Unknown values map to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// SubscriptionConfig is a live query registered at startup.
type SubscriptionConfig struct {
	Schema    string               `yaml:"schema"`
	Filter    map[string]any       `yaml:"filter"`
	Sort      []protocol.SortField `yaml:"sort"`
	Direction string               `yaml:"direction"`
	Cursor    string               `yaml:"cursor"`
}

// Descriptor converts the entry to a wire descriptor.
func (s SubscriptionConfig) Descriptor() (protocol.Descriptor, error) {
	filter := json.RawMessage(`{}`)
	if len(s.Filter) > 0 {
		data, err := json.Marshal(s.Filter)
		if err != nil {
			return protocol.Descriptor{}, fmt.Errorf("encode filter: %w", err)
		}
		filter = data
	}

	var cursor protocol.Cursor
	if s.Cursor != "" {
		cursor = protocol.StringCursor(s.Cursor)
	}

	return protocol.Descriptor{
		Schema:    s.Schema,
		Filter:    filter,
		Sort:      protocol.OrderSpec(s.Sort),
		Direction: protocol.Direction(strings.ToUpper(s.Direction)),
		Cursor:    cursor,
	}, nil
}
