package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dradu/server/internal/adminhttp"
	"dradu/server/internal/bus"
	"dradu/server/internal/config"
	"dradu/server/internal/frontdesk"
	"dradu/server/internal/logging"
	"dradu/server/internal/ratelimit"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Development); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	ctx := context.Background()

	var busService *bus.Service
	var redisClient *redis.Client
	if cfg.BusRedisAddr != "" {
		busService, err = bus.New(cfg.BusRedisAddr, cfg.BusRedisPassword)
		if err != nil {
			logging.Error(ctx, "failed to connect to bus redis", zap.Error(err))
			os.Exit(1)
		}
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.BusRedisAddr, Password: cfg.BusRedisPassword})
		logging.Info(ctx, "cross-instance bus enabled", zap.String("addr", cfg.BusRedisAddr))
	}

	limiter, err := ratelimit.New(cfg.MessageRate, redisClient)
	if err != nil {
		logging.Error(ctx, "failed to build rate limiter", zap.Error(err))
		os.Exit(1)
	}

	ip, err := localIP()
	if err != nil {
		logging.Error(ctx, "failed to determine local IP", zap.Error(err))
		os.Exit(1)
	}

	listenAddr := fmt.Sprintf("%s:%d", ip, cfg.Port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		logging.Error(ctx, "failed to bind protocol listener", zap.Error(err))
		os.Exit(1)
	}
	logging.Info(ctx, "starting server", zap.String("addr", listenAddr))

	server := frontdesk.New(listener, busService, limiter)
	go func() {
		if err := server.Serve(); err != nil {
			logging.Error(ctx, "accept loop exited", zap.Error(err))
		}
	}()

	adminCtx, cancelAdmin := context.WithCancel(ctx)
	go func() {
		logging.Info(ctx, "starting admin http surface", zap.String("addr", cfg.AdminAddr))
		if err := adminhttp.Run(adminCtx, cfg.AdminAddr); err != nil {
			logging.Error(ctx, "admin http surface exited", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	cancelAdmin()
	_ = listener.Close()
	if busService != nil {
		_ = busService.Close()
	}
}

// localIP discovers the outbound interface address by opening a
// throwaway UDP "connection" (no packets are actually sent) to a
// well-known address and reading back the local endpoint it would use.
func localIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("localIP: %w", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
