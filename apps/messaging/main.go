// Command messaging is the write-back worker: it migrates the schema, then
// drains pending buffers into chunks and flushes dirty chunks to the store.
// Several can run side by side; room locks keep them apart.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mahaj/chunkchat/pkg/cache"
	"github.com/mahaj/chunkchat/pkg/chunk"
	"github.com/mahaj/chunkchat/pkg/config"
	"github.com/mahaj/chunkchat/pkg/db"
	"github.com/mahaj/chunkchat/pkg/logger"
	"github.com/mahaj/chunkchat/pkg/snowflake"
	"github.com/mahaj/chunkchat/pkg/store"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log := logger.Must("messaging", cfg.LogLevel, cfg.LogFile)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StoreDriver == "scylla" {
		if err := db.Migrate(cfg.ScyllaHosts, cfg.ScyllaKeyspace); err != nil {
			log.Fatal("migrate schema", zap.Error(err))
		}
		log.Info("schema ready", zap.String("keyspace", cfg.ScyllaKeyspace))
	}

	st, closeStore, err := store.Open(cfg.StoreDriver, cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer closeStore()

	rdb, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("connect redis", zap.Error(err))
	}
	defer rdb.Close()

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		log.Fatal("init id generator", zap.Error(err))
	}

	opts := chunk.OptionsFromConfig(cfg)
	engine := chunk.New(cache.New(rdb, cache.DefaultTTLs()), st, node, log.Named("chunk"), opts)

	log.Info("worker running",
		zap.Duration("batch_interval", opts.BatchInterval),
		zap.Duration("flush_interval", opts.FlushInterval),
		zap.Int("max_batch_size", opts.MaxBatchSize),
	)
	engine.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := engine.Stop(shutdownCtx); err != nil {
		log.Error("final flush", zap.Error(err))
	}
}
