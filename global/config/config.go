package config

import (
	"fmt"
	"os"
	"strings"

	"ensemble-relay/tools/errs"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration from defaults, the optional YAML file at
// path and RELAY_* environment variables, then validates it.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.WrapMsg(err, "read config", "path", path)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return nil, errs.WrapMsg(err, "decode config", "path", path)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, errs.WrapMsg(err, "parse env")
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeYAML overlays YAML content on out. Only keys present in the
// document are touched, so defaults survive partial files.
func decodeYAML(raw []byte, out any) error {
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return err
	}
	if len(m) == 0 {
		return nil
	}
	return decodeMap(m, out)
}

func decodeMap(m map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}

func (c *AppConfig) normalize() {
	c.Transport.OverflowPolicy = strings.ToLower(strings.TrimSpace(c.Transport.OverflowPolicy))
	if c.Transport.PingPeriod <= 0 {
		c.Transport.PingPeriod = c.Transport.PongWait * 9 / 10
	}
	if c.Server.Path == "" {
		c.Server.Path = "/ws"
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		c.Server.Path = "/" + c.Server.Path
	}
}

// Validate reports the first invalid setting.
func (c *AppConfig) Validate() error {
	bad := func(field string, v any) error {
		return errs.ErrArgs.WrapMsg("invalid config", "field", field, "value", v)
	}
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return bad("server.port", c.Server.Port)
	case c.Server.GrpcPort < 0 || c.Server.GrpcPort > 65535:
		return bad("server.grpc_port", c.Server.GrpcPort)
	case c.Server.GrpcPort != 0 && c.Server.GrpcPort == c.Server.Port:
		return bad("server.grpc_port", c.Server.GrpcPort)
	case c.Relay.RecentIDWindow <= 0:
		return bad("relay.recent_id_window", c.Relay.RecentIDWindow)
	case c.Relay.MaxBodyLen <= 0:
		return bad("relay.max_body_len", c.Relay.MaxBodyLen)
	case c.Transport.SendQueueSize <= 0:
		return bad("transport.send_queue_size", c.Transport.SendQueueSize)
	case c.Transport.OverflowPolicy != OverflowDropOldest && c.Transport.OverflowPolicy != OverflowDisconnect:
		return bad("transport.overflow_policy", c.Transport.OverflowPolicy)
	case c.Transport.MaxMessageSize <= 0:
		return bad("transport.max_message_size", c.Transport.MaxMessageSize)
	case c.Transport.PongWait <= 0 || c.Transport.PingPeriod >= c.Transport.PongWait:
		return bad("transport.ping_period", c.Transport.PingPeriod)
	case c.Transport.WriteWait <= 0:
		return bad("transport.write_wait", c.Transport.WriteWait)
	case c.Redis.Enabled && c.Redis.Addr == "":
		return bad("redis.addr", c.Redis.Addr)
	case c.Nats.Enabled && (len(c.Nats.Servers) == 0 || c.Nats.Subject == ""):
		return bad("nats.servers", c.Nats.Servers)
	case c.Nacos.Enabled && (c.Nacos.Host == "" || c.Nacos.DataID == ""):
		return bad("nacos.data_id", c.Nacos.DataID)
	}
	return nil
}

// ListenAddr is host:port for the HTTP server.
func (c *AppConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GrpcAddr is host:port for the grpc health server.
func (c *AppConfig) GrpcAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GrpcPort)
}
