package main

import (
	"github.com/mahaj/chunkchat/pkg/config"
	"github.com/mahaj/chunkchat/pkg/db"
	"github.com/mahaj/chunkchat/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log := logger.Must("drop_table", cfg.LogLevel, "")
	defer log.Sync()

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Fatal("connect scylla", zap.Error(err))
	}
	defer session.Close()

	log.Info("dropping tables", zap.String("keyspace", cfg.ScyllaKeyspace))
	if err := db.Drop(session); err != nil {
		log.Fatal("drop tables", zap.Error(err))
	}
	log.Info("tables dropped")
}
