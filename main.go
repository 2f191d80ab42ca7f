package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ensemble-relay/global"
	"ensemble-relay/global/config"
	"ensemble-relay/logger"
	"ensemble-relay/service/rpc"

	"go.uber.org/zap"
)

var (
	configPath  = flag.String("config", "", "YAML config file (optional; RELAY_* env overrides it)")
	healthcheck = flag.Bool("healthcheck", false, "query the local gRPC health service and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if *healthcheck {
		os.Exit(checkHealth(cfg))
	}

	if err := global.ConfigLogger(cfg.Log); err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer logger.Sync()
	global.ConfigIds(cfg.Relay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	defer a.close()

	if err := a.run(ctx); err != nil {
		logger.Error("relay stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func checkHealth(cfg *config.AppConfig) int {
	if cfg.Server.GrpcPort == 0 {
		fmt.Fprintln(os.Stderr, "grpc health disabled (server.grpc_port = 0)")
		return 1
	}
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	ok, err := rpc.Check(context.Background(), fmt.Sprintf("%s:%d", host, cfg.Server.GrpcPort))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "not serving")
		return 1
	}
	return 0
}
