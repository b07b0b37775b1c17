package config

import "time"

// RelayConfig is the root configuration for a relay instance.
type RelayConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Relay     RouterConfig    `yaml:"relay"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Journal   JournalConfig   `yaml:"journal"`
	Database  DBConfig        `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the chat listener settings.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	Transport       string        `yaml:"transport"` // gorilla | gobwas
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RouterConfig holds routing policy.
type RouterConfig struct {
	AdmissionPolicy   string        `yaml:"admission_policy"` // replace | replace_notify | reject
	Fanout            string        `yaml:"fanout"`           // sequential | parallel
	FanoutConcurrency int           `yaml:"fanout_concurrency"`
	SendTimeout       time.Duration `yaml:"send_timeout"`
}

// HeartbeatConfig holds liveness sweeper settings.
type HeartbeatConfig struct {
	Disabled    bool          `yaml:"disabled"`
	Interval    time.Duration `yaml:"interval"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	PingTimeout time.Duration `yaml:"ping_timeout"`
	Concurrency int           `yaml:"concurrency"`
}

// JournalConfig holds presence journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	MaxBufferSize int           `yaml:"max_buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds the ops server settings (health, roster, Prometheus).
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}
