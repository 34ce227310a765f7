package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rickgao/livesync/internal/protocol"
	"github.com/rickgao/livesync/internal/schema"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Server.WSURL == "" {
		return errors.New("server.ws_url is required")
	}
	u, err := url.Parse(c.Server.WSURL)
	if err != nil {
		return fmt.Errorf("server.ws_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server.ws_url must use ws or wss, got %q", u.Scheme)
	}

	if c.Connection.FrameBuffer < 1 {
		return errors.New("connection.frame_buffer must be >= 1")
	}
	if c.Connection.EventBuffer < 1 {
		return errors.New("connection.event_buffer must be >= 1")
	}

	if c.Registry.QueueSize < 1 {
		return errors.New("registry.queue_size must be >= 1")
	}
	if c.Registry.PendingPolicy != "drop" && c.Registry.PendingPolicy != "buffer" {
		return fmt.Errorf("registry.pending_policy must be drop or buffer, got %q", c.Registry.PendingPolicy)
	}

	if c.Normalizer.InputBuffer < 1 {
		return errors.New("normalizer.input_buffer must be >= 1")
	}

	if c.Database.Enabled {
		if err := c.Database.DBConfig.validate("database"); err != nil {
			return err
		}
		if c.Writer.BatchSize < 1 {
			return errors.New("writer.batch_size must be >= 1")
		}
		if c.Writer.FlushInterval <= 0 {
			return errors.New("writer.flush_interval must be > 0")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	for i, s := range c.Subscriptions {
		if err := s.validate(fmt.Sprintf("subscriptions[%d]", i)); err != nil {
			return err
		}
	}

	return nil
}

func (s *SubscriptionConfig) validate(prefix string) error {
	if s.Schema == "" {
		return fmt.Errorf("%s.schema is required", prefix)
	}
	if _, err := schema.Lookup(s.Schema); err != nil {
		return fmt.Errorf("%s.schema: %w", prefix, err)
	}
	if d := protocol.Direction(strings.ToUpper(s.Direction)); !d.Valid() {
		return fmt.Errorf("%s.direction must be FORWARD or BACKWARD, got %q", prefix, s.Direction)
	}
	for j, f := range s.Sort {
		if f.Field == "" {
			return fmt.Errorf("%s.sort[%d].field is required", prefix, j)
		}
		if f.Order != 1 && f.Order != -1 {
			return fmt.Errorf("%s.sort[%d].order must be 1 or -1, got %d", prefix, j, f.Order)
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
