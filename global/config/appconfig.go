package config

import "time"

// AppConfig is the full process configuration. Precedence, lowest first:
// Default(), YAML file, RELAY_* environment variables.
type AppConfig struct {
	Server    ServerConfig    `mapstructure:"server" envPrefix:"RELAY_"`
	Relay     RelayConfig     `mapstructure:"relay" envPrefix:"RELAY_"`
	Transport TransportConfig `mapstructure:"transport" envPrefix:"RELAY_WS_"`
	Log       LogConfig       `mapstructure:"log" envPrefix:"RELAY_LOG_"`
	Redis     RedisConfig     `mapstructure:"redis" envPrefix:"RELAY_REDIS_"`
	Nats      NatsConfig      `mapstructure:"nats" envPrefix:"RELAY_NATS_"`
	Nacos     NacosConfig     `mapstructure:"nacos" envPrefix:"RELAY_NACOS_"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" env:"HOST"`
	Port            int           `mapstructure:"port" env:"PORT"`         // http + websocket
	Path            string        `mapstructure:"path" env:"WS_PATH"`      // websocket endpoint
	GrpcPort        int           `mapstructure:"grpc_port" env:"GRPC_PORT"` // 0 disables grpc health
	Metrics         bool          `mapstructure:"metrics" env:"METRICS"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type RelayConfig struct {
	StrictEvents   bool  `mapstructure:"strict_events" env:"STRICT_EVENTS"`
	RecentIDWindow int   `mapstructure:"recent_id_window" env:"RECENT_ID_WINDOW"`
	MaxBodyLen     int   `mapstructure:"max_body_len" env:"MAX_BODY_LEN"` // runes
	NodeID         int64 `mapstructure:"node_id" env:"NODE_ID"`           // snowflake node
}

const (
	OverflowDropOldest = "drop_oldest"
	OverflowDisconnect = "disconnect"
)

type TransportConfig struct {
	SendQueueSize  int           `mapstructure:"send_queue_size" env:"SEND_QUEUE_SIZE"`
	OverflowPolicy string        `mapstructure:"overflow_policy" env:"OVERFLOW_POLICY"`
	MaxMessageSize int64         `mapstructure:"max_message_size" env:"MAX_MESSAGE_SIZE"`
	WriteWait      time.Duration `mapstructure:"write_wait" env:"WRITE_WAIT"`
	PongWait       time.Duration `mapstructure:"pong_wait" env:"PONG_WAIT"`
	PingPeriod     time.Duration `mapstructure:"ping_period" env:"PING_PERIOD"`
	ReadBuffer     int           `mapstructure:"read_buffer" env:"READ_BUFFER"`
	WriteBuffer    int           `mapstructure:"write_buffer" env:"WRITE_BUFFER"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" env:"LEVEL"`
	File       string `mapstructure:"file" env:"FILE"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `mapstructure:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `mapstructure:"max_age_days" env:"MAX_AGE_DAYS"`
}

// RedisConfig enables the presence observer.
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled" env:"ENABLED"`
	Addr        string        `mapstructure:"addr" env:"ADDR"`
	Password    string        `mapstructure:"password" env:"PASSWORD"`
	DB          int           `mapstructure:"db" env:"DB"`
	PoolSize    int           `mapstructure:"pool_size" env:"POOL_SIZE"`
	KeyPrefix   string        `mapstructure:"key_prefix" env:"KEY_PREFIX"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl" env:"PRESENCE_TTL"`
}

// NatsConfig enables the lifecycle event feed.
type NatsConfig struct {
	Enabled bool     `mapstructure:"enabled" env:"ENABLED"`
	Servers []string `mapstructure:"servers" env:"SERVERS" envSeparator:","`
	Name    string   `mapstructure:"name" env:"NAME"`
	Subject string   `mapstructure:"subject" env:"SUBJECT"`
	User    string   `mapstructure:"user" env:"USER"`
	Pass    string   `mapstructure:"pass" env:"PASS"`
}

// NacosConfig enables hot reload of the runtime section.
type NacosConfig struct {
	Enabled     bool   `mapstructure:"enabled" env:"ENABLED"`
	Host        string `mapstructure:"host" env:"HOST"`
	Port        uint64 `mapstructure:"port" env:"PORT"`
	NamespaceID string `mapstructure:"namespace_id" env:"NAMESPACE_ID"`
	DataID      string `mapstructure:"data_id" env:"DATA_ID"`
	Group       string `mapstructure:"group" env:"GROUP"`
	TimeoutMs   uint64 `mapstructure:"timeout_ms" env:"TIMEOUT_MS"`
}

// Default returns the built-in configuration; port 3000 matches the legacy server.
func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Port:            3000,
			Path:            "/ws",
			Metrics:         true,
			ShutdownTimeout: 5 * time.Second,
		},
		Relay: RelayConfig{
			RecentIDWindow: 1024,
			MaxBodyLen:     4096,
			NodeID:         1,
		},
		Transport: TransportConfig{
			SendQueueSize:  64,
			OverflowPolicy: OverflowDropOldest,
			MaxMessageSize: 64 << 10,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			ReadBuffer:     4096,
			WriteBuffer:    4096,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Redis: RedisConfig{
			Addr:        "127.0.0.1:6379",
			KeyPrefix:   "relay",
			PresenceTTL: 2 * time.Minute,
		},
		Nats: NatsConfig{
			Servers: []string{"nats://127.0.0.1:4222"},
			Name:    "ensemble-relay",
			Subject: "relay.events",
		},
		Nacos: NacosConfig{
			Host:      "127.0.0.1",
			Port:      8848,
			DataID:    "ensemble-relay.yaml",
			Group:     "DEFAULT_GROUP",
			TimeoutMs: 5000,
		},
	}
}
