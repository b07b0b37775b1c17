package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultListenAddr        = ":8000"
	DefaultTransport         = "gorilla"
	DefaultReadBufferSize    = 1024
	DefaultWriteBufferSize   = 1024
	DefaultMaxMessageSize    = 64 * 1024
	DefaultWriteTimeout      = 10 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultAdmissionPolicy   = "replace"
	DefaultFanout            = "sequential"
	DefaultFanoutConcurrency = 16
	DefaultSendTimeout       = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultIdleTimeout       = 90 * time.Second
	DefaultPingTimeout       = 5 * time.Second
	DefaultPingConcurrency   = 64
	DefaultBatchSize         = 100
	DefaultFlushInterval     = 1 * time.Second
	DefaultBufferSize        = 1000
	DefaultMaxBufferSize     = 100000
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

func (c *RelayConfig) applyDefaults() {
	// Server defaults
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.Transport == "" {
		c.Server.Transport = DefaultTransport
	}
	if c.Server.ReadBufferSize == 0 {
		c.Server.ReadBufferSize = DefaultReadBufferSize
	}
	if c.Server.WriteBufferSize == 0 {
		c.Server.WriteBufferSize = DefaultWriteBufferSize
	}
	if c.Server.MaxMessageSize == 0 {
		c.Server.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Relay defaults
	if c.Relay.AdmissionPolicy == "" {
		c.Relay.AdmissionPolicy = DefaultAdmissionPolicy
	}
	if c.Relay.Fanout == "" {
		c.Relay.Fanout = DefaultFanout
	}
	if c.Relay.FanoutConcurrency == 0 {
		c.Relay.FanoutConcurrency = DefaultFanoutConcurrency
	}
	if c.Relay.SendTimeout == 0 {
		c.Relay.SendTimeout = DefaultSendTimeout
	}

	// Heartbeat defaults
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = DefaultHeartbeatInterval
	}
	if c.Heartbeat.IdleTimeout == 0 {
		c.Heartbeat.IdleTimeout = DefaultIdleTimeout
	}
	if c.Heartbeat.PingTimeout == 0 {
		c.Heartbeat.PingTimeout = DefaultPingTimeout
	}
	if c.Heartbeat.Concurrency == 0 {
		c.Heartbeat.Concurrency = DefaultPingConcurrency
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}
	if c.Journal.MaxBufferSize == 0 {
		c.Journal.MaxBufferSize = DefaultMaxBufferSize
	}

	applyDBDefaults(&c.Database)

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
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
}
