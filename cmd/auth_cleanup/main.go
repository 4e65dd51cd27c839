package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"servio/internal/config"
	"servio/internal/database"
	"servio/internal/repository"
)

// Deletes expired refresh tokens plus revoked ones older than 30 days.
// Meant to run from cron.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SERVIO_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}

	tokens := repository.NewRefreshTokenRepository(db)
	if err := tokens.DeleteExpired(context.Background()); err != nil {
		log.Fatal("cleanup expired tokens failed", zap.Error(err))
	}

	res := db.Exec(`DELETE FROM refresh_tokens WHERE revoked_at IS NOT NULL AND created_at < NOW() - INTERVAL '30 days'`)
	if res.Error != nil {
		log.Fatal("cleanup revoked tokens failed", zap.Error(res.Error))
	}

	log.Info("auth cleanup completed", zap.Int64("revoked_removed", res.RowsAffected))
}
