package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"ensemble-relay/global"
	"ensemble-relay/global/config"
	"ensemble-relay/logger"
	"ensemble-relay/service/chat"
	"ensemble-relay/service/chat/handlers"
	"ensemble-relay/service/natsx"
	"ensemble-relay/service/rpc"
	"ensemble-relay/service/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type app struct {
	cfg *config.AppConfig
	rt  *config.Runtime

	reg       *chat.Registry
	srv       *chat.Server
	relay     *chat.Relay
	observers *chat.Observers
	promReg   *prometheus.Registry

	rdb      *redis.Client
	presence *storage.Presence
	nc       *natsx.Client
	health   *rpc.HealthServer
	engine   *gin.Engine
}

func newApp(ctx context.Context, cfg *config.AppConfig) (a *app, err error) {
	a = &app{cfg: cfg, rt: config.NewRuntime(cfg), promReg: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := chat.NewMetrics(a.promReg)

	var list []chat.Observer
	if a.rdb, a.presence, err = global.ConfigRedis(ctx, cfg); err != nil {
		return nil, err
	}
	if a.presence != nil {
		list = append(list, a.presence)
	}
	var feed *natsx.Feed
	if a.nc, feed, err = global.ConfigNats(cfg); err != nil {
		return nil, err
	}
	if feed != nil {
		list = append(list, feed)
	}
	a.observers = chat.NewObservers(0, metrics, list...)

	a.reg = chat.NewRegistry()
	a.srv = chat.NewServer(a.reg, chat.ServerConf{
		Transport: cfg.Transport,
		Strict:    a.rt.StrictEvents,
		Observers: a.observers,
		Metrics:   metrics,
	})
	a.relay, err = chat.NewRelay(a.reg, a.srv, chat.RelayConf{
		RecentIDWindow: cfg.Relay.RecentIDWindow,
		MaxBodyLen:     cfg.Relay.MaxBodyLen,
		Observers:      a.observers,
		Metrics:        metrics,
	})
	if err != nil {
		return nil, err
	}
	handlers.RegisterAll(a.srv, a.relay)

	a.rt.OnChange(func(s config.RuntimeSettings) {
		logger.Info("runtime settings applied", zap.Bool("strict_events", s.StrictEvents), zap.String("log_level", s.LogLevel))
	})
	if err = global.ConfigNacos(ctx, cfg, a.rt); err != nil {
		return nil, err
	}

	if cfg.Server.GrpcPort > 0 {
		a.health = rpc.NewHealthServer()
	}
	a.engine, _ = global.ConfigMiddleware()
	a.routes()
	return a, nil
}

func (a *app) routes() {
	r := a.engine
	r.GET(a.cfg.Server.Path, a.srv.HandleWS)
	if a.cfg.Server.Path != "/socket" {
		r.GET("/socket", a.srv.HandleWS)
	}
	r.GET("/healthz", a.srv.HandleHealth)
	if a.cfg.Server.Metrics {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{})))
	}
	if a.presence != nil {
		r.GET("/presence", a.handlePresence)
	}
}

func (a *app) handlePresence(c *gin.Context) {
	online, err := a.presence.Online(c.Request.Context())
	if err != nil {
		logger.Warn("presence query failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "presence unavailable"})
		return
	}
	stats, _ := a.presence.Stats(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"online": online, "stats": stats})
}

// run serves until ctx ends, then shuts down in order: stop advertising
// health, stop accepting, close connections, drain observers.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	httpSrv := &http.Server{Addr: a.cfg.ListenAddr(), Handler: a.engine}
	g.Go(func() error {
		logger.Info("relay listening", zap.String("addr", httpSrv.Addr), zap.String("path", a.cfg.Server.Path))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if a.health != nil {
		lis, err := net.Listen("tcp", a.cfg.GrpcAddr())
		if err != nil {
			return err
		}
		g.Go(func() error { return a.health.Serve(lis) })
	}

	if a.presence != nil {
		g.Go(func() error {
			a.presence.Run(gctx, 0, a.reg.List)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Int("connections", a.reg.Len()))
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		if a.health != nil {
			a.health.SetServing(false)
		}
		if err := httpSrv.Shutdown(sctx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		if err := a.srv.Shutdown(sctx); err != nil {
			logger.Warn("websocket shutdown incomplete", zap.Error(err))
		}
		if err := a.observers.Close(sctx); err != nil {
			logger.Warn("observer drain incomplete", zap.Error(err))
		}
		if a.health != nil {
			a.health.Stop()
		}
		return nil
	})
	return g.Wait()
}

func (a *app) close() {
	if a.nc != nil {
		_ = a.nc.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}
