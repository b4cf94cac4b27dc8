// Command migrate creates the keyspace and tables.
package main

import (
	"github.com/mahaj/chunkchat/pkg/config"
	"github.com/mahaj/chunkchat/pkg/db"
	"github.com/mahaj/chunkchat/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log := logger.Must("migrate", cfg.LogLevel, "")
	defer log.Sync()

	if err := db.Migrate(cfg.ScyllaHosts, cfg.ScyllaKeyspace); err != nil {
		log.Fatal("migrate", zap.Strings("hosts", cfg.ScyllaHosts), zap.Error(err))
	}
	log.Info("schema ready", zap.String("keyspace", cfg.ScyllaKeyspace))
}
