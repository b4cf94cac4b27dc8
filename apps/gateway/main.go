// Command gateway holds client websockets. It follows the fan-out topic and
// forwards each event to the connections in the event's room.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mahaj/chunkchat/pkg/auth"
	"github.com/mahaj/chunkchat/pkg/cache"
	"github.com/mahaj/chunkchat/pkg/config"
	"github.com/mahaj/chunkchat/pkg/fanout"
	"github.com/mahaj/chunkchat/pkg/logger"
	"github.com/mahaj/chunkchat/pkg/snowflake"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log := logger.Must("gateway", cfg.LogLevel, cfg.LogFile)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("connect redis", zap.Error(err))
	}
	defer rdb.Close()

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		log.Fatal("init id generator", zap.Error(err))
	}

	pub, err := fanout.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaCompression)
	if err != nil {
		log.Fatal("init publisher", zap.Error(err))
	}
	defer pub.Close()

	// unique group per instance so every gateway sees every event
	sub := fanout.NewSubscriber(cfg.KafkaBrokers, cfg.KafkaTopic, "gateway-"+uuid.NewString(), log.Named("fanout"))
	defer sub.Close()

	hub := NewHub(pub, cache.New(rdb, cache.DefaultTTLs()), node, log.Named("hub"))
	go hub.Run(ctx)
	go func() {
		if err := sub.Run(ctx, hub.Deliver); err != nil {
			log.Error("fan-out subscriber stopped", zap.Error(err))
		}
	}()

	iss := auth.NewIssuer(cfg.JWTSecret, 24*time.Hour)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, iss, w, r)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()
	log.Info("gateway listening", zap.String("addr", cfg.GatewayAddr))

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
}
