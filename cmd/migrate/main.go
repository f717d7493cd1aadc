package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/noah-isme/rdc-learning-api/pkg/config"
	"github.com/noah-isme/rdc-learning-api/pkg/database"
	"github.com/noah-isme/rdc-learning-api/pkg/logger"
)

// migrate applies or inspects schema migrations: go run ./cmd/migrate [up|down|status|reset]
func main() {
	dir := flag.String("dir", "", "migrations directory (defaults to the embedded migrations)")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if *dir == "" {
		*dir = cfg.Database.MigrationsDir
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db.DB, command, *dir); err != nil {
		logr.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}
	logr.Info("migration finished", zap.String("command", command))
}
