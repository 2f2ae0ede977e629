package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	pionlog "github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"yuzu/rendezvous/internal/api"
	"yuzu/rendezvous/internal/config"
	"yuzu/rendezvous/internal/health"
	"yuzu/rendezvous/internal/logging"
	"yuzu/rendezvous/internal/metrics"
	"yuzu/rendezvous/internal/peerws"
	"yuzu/rendezvous/internal/signal"
	"yuzu/rendezvous/internal/store"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	logs := logging.NewFactory(cfg.Server.LogLevel, nil)
	logger := logs.NewLogger("server")
	logger.Infof("config loaded: port=%s store=%s ttl=%s sweep=%s", cfg.Server.Port, cfg.Store.Backend, cfg.Session.TTL, cfg.Session.SweepInterval)

	st, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	defer closeStore()

	hub := signal.NewHub(st, logs.NewLogger("hub"))
	sweeper := store.NewSweeper(st, cfg.Session.SweepInterval, logs.NewLogger("sweeper"))
	sweeper.OnExpire = hub.Expire

	if err := metrics.RegisterSessionGauge(prometheus.DefaultRegisterer, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, _ := st.Count(ctx)
		return float64(n)
	}); err != nil {
		logger.Warnf("register session gauge: %v", err)
	}

	reg := peerws.NewRegistry()
	peers := peerws.NewServer(hub, reg, peerws.Options{
		Origins:         cfg.Server.CORSOrigins,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
		SendQueue:       cfg.WS.SendQueue,
	}, logs.NewLogger("peerws"))

	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(api.Deps{
		Store:       st,
		Peers:       peers,
		CORSOrigins: cfg.Server.CORSOrigins,
	}))

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(logs.NewLogger("http"), mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Run(ctx)

	var grpcHealth *health.GRPC
	if cfg.GRPC.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.HealthAddr)
		if err != nil {
			logger.Errorf("grpc health listen: %v", err)
			os.Exit(1)
		}
		grpcHealth = health.NewGRPC(st, 10*time.Second, logs.NewLogger("grpc"))
		go grpcHealth.Watch(ctx)
		go func() {
			logger.Infof("grpc health on %s", cfg.GRPC.HealthAddr)
			if err := grpcHealth.Serve(lis); err != nil {
				logger.Errorf("grpc health: %v", err)
			}
		}()
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	ossignal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Infof("shutdown signal received; stopping server...")
		cancel()
		if grpcHealth != nil {
			grpcHealth.Stop()
		}
		// Hijacked websocket connections are not drained by Shutdown.
		reg.CloseAll()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.Infof("server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("server error: %v", err)
		closeStore()
		os.Exit(1)
	}
}

func openStore(cfg config.Config) (store.Store, func(), error) {
	if cfg.Store.Backend != config.BackendRedis {
		return store.NewMemory(cfg.Session.TTL), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
	}
	return store.NewRedis(client, cfg.Redis.KeyPrefix, cfg.Session.TTL), func() { _ = client.Close() }, nil
}

func logMiddleware(log pionlog.LeveledLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Infof("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
