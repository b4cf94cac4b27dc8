package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mahaj/chunkchat/pkg/auth"
	"github.com/mahaj/chunkchat/pkg/cache"
	"github.com/mahaj/chunkchat/pkg/chat"
	"github.com/mahaj/chunkchat/pkg/chunk"
	"github.com/mahaj/chunkchat/pkg/config"
	"github.com/mahaj/chunkchat/pkg/fanout"
	"github.com/mahaj/chunkchat/pkg/logger"
	"github.com/mahaj/chunkchat/pkg/snowflake"
	"github.com/mahaj/chunkchat/pkg/store"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log := logger.Must("api", cfg.LogLevel, cfg.LogFile)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("connect redis", zap.Error(err))
	}
	defer rdb.Close()

	st, closeStore, err := store.Open(cfg.StoreDriver, cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Fatal("open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		log.Fatal("init id generator", zap.Error(err))
	}

	pub, err := fanout.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaCompression)
	if err != nil {
		log.Fatal("init publisher", zap.Error(err))
	}
	defer pub.Close()

	c := cache.New(rdb, cache.DefaultTTLs())
	engine := chunk.New(c, st, node, log.Named("chunk"), chunk.OptionsFromConfig(cfg))
	svc := chat.NewService(engine, c, st, pub, node, log.Named("chat"))
	iss := auth.NewIssuer(cfg.JWTSecret, 24*time.Hour)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	if cfg.RunWorkers {
		go func() {
			defer close(workersDone)
			engine.Run(workerCtx)
		}()
	} else {
		close(workersDone)
	}

	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(svc, iss, ping, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()
	log.Info("api listening", zap.String("addr", cfg.HTTPAddr), zap.Bool("workers", cfg.RunWorkers))

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}

	stopWorkers()
	<-workersDone
	if cfg.RunWorkers {
		if err := engine.Stop(shutdownCtx); err != nil {
			log.Error("final flush", zap.Error(err))
		}
	}
}
