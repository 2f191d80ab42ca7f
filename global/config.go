package global

import (
	"context"
	"strconv"
	"time"

	"ensemble-relay/global/config"
	"ensemble-relay/logger"
	mid "ensemble-relay/middleware"
	"ensemble-relay/service/natsx"
	"ensemble-relay/service/storage"
	redisx "ensemble-relay/service/storage/redis"
	"ensemble-relay/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NodeName is the node id as used in Redis keys and feed subjects.
func NodeName(c *config.AppConfig) string {
	return strconv.FormatInt(c.Relay.NodeID, 10)
}

func ConfigLogger(c config.LogConfig) error {
	return logger.Setup(logger.Options{
		Level:      c.Level,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	})
}

func ConfigIds(c config.RelayConfig) {
	ids.SetNodeID(c.NodeID)
}

// ConfigRedis connects Redis and builds the presence observer. The returned
// client is nil when Redis is disabled.
func ConfigRedis(ctx context.Context, c *config.AppConfig) (*redis.Client, *storage.Presence, error) {
	if !c.Redis.Enabled {
		return nil, nil, nil
	}
	rdb, err := redisx.NewClient(ctx, c.Redis)
	if err != nil {
		return nil, nil, err
	}
	p := storage.NewPresence(rdb, storage.PresenceConfig{
		NodeID:    NodeName(c),
		KeyPrefix: c.Redis.KeyPrefix,
		TTL:       c.Redis.PresenceTTL,
	})
	logger.Info("redis presence enabled", zap.String("addr", c.Redis.Addr))
	return rdb, p, nil
}

// ConfigNats connects NATS, builds the event feed and tails peer events.
func ConfigNats(c *config.AppConfig) (*natsx.Client, *natsx.Feed, error) {
	if !c.Nats.Enabled {
		return nil, nil, nil
	}
	cli, err := natsx.Connect(c.Nats)
	if err != nil {
		return nil, nil, err
	}
	node := NodeName(c)
	if err := cli.Subscribe(c.Nats.Subject+".>", "", natsx.PeerLogger(node),
		natsx.IdemMiddleware(natsx.NewMemIdem(time.Minute), 0)); err != nil {
		_ = cli.Close()
		return nil, nil, err
	}
	logger.Info("nats feed enabled", zap.Strings("servers", c.Nats.Servers), zap.String("subject", c.Nats.Subject))
	return cli, natsx.NewFeed(cli, c.Nats.Subject, node), nil
}

// ConfigNacos starts the runtime watch when nacos is enabled.
func ConfigNacos(ctx context.Context, c *config.AppConfig, rt *config.Runtime) error {
	if !c.Nacos.Enabled {
		return nil
	}
	cli, err := config.NewNacosClient(c.Nacos)
	if err != nil {
		return err
	}
	return config.WatchRuntime(ctx, cli, c.Nacos, rt)
}

// ConfigMiddleware builds the engine with recovery, access log and the
// middleware manager (CORS first).
func ConfigMiddleware() (*gin.Engine, *mid.MiddlewareManager) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	m := mid.NewManager()
	m.Add(mid.Origin())
	r.Use(gin.Recovery(), mid.AccessLog(), m.Use())
	return r, m
}
