package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 90 * time.Second
	DefaultCookiePrefix     = "token-"
	DefaultFrameBuffer      = 1000
	DefaultEventBuffer      = 1024
	DefaultQueueSize        = 64
	DefaultPendingPolicy    = "drop"
	DefaultInputBuffer      = 1024
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 2 * time.Second
	DefaultBufferSize       = 256
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultDirection        = "BACKWARD"
)

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultPingInterval
	}
	if c.Server.PingTimeout == 0 {
		c.Server.PingTimeout = DefaultPingTimeout
	}

	if c.Credentials.CookiePrefix == "" {
		c.Credentials.CookiePrefix = DefaultCookiePrefix
	}

	// Buffers
	if c.Connection.FrameBuffer == 0 {
		c.Connection.FrameBuffer = DefaultFrameBuffer
	}
	if c.Connection.EventBuffer == 0 {
		c.Connection.EventBuffer = DefaultEventBuffer
	}
	if c.Registry.QueueSize == 0 {
		c.Registry.QueueSize = DefaultQueueSize
	}
	if c.Registry.PendingPolicy == "" {
		c.Registry.PendingPolicy = DefaultPendingPolicy
	}
	if c.Normalizer.InputBuffer == 0 {
		c.Normalizer.InputBuffer = DefaultInputBuffer
	}

	// Database defaults
	applyDBDefaults(&c.Database.DBConfig)

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}
	if c.Writer.BufferSize == 0 {
		c.Writer.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	for i := range c.Subscriptions {
		if c.Subscriptions[i].Direction == "" {
			c.Subscriptions[i].Direction = DefaultDirection
		}
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	if db.ApplicationName == "" {
		db.ApplicationName = "livesync"
	}
}
