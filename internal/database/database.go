package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"

	"servio/internal/config"
)

// Connect opens the configured database. SQLite runs through the modernc
// driver so local development needs no cgo.
func Connect(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	switch cfg.Driver {
	case "postgres":
		log.Info("connecting to postgres", zap.String("host", cfg.Host), zap.String("db", cfg.Name))
		db, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	case "sqlite":
		log.Info("using sqlite", zap.String("path", cfg.SQLitePath))
		db, err = gorm.Open(
			gormsqlite.New(gormsqlite.Config{
				DriverName: "sqlite",
				DSN:        cfg.SQLitePath,
			}),
			&gorm.Config{},
		)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access connection pool: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// Every modernc connection to :memory: is its own empty database,
		// so the pool must hold exactly one persistent connection.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}

	return db, nil
}
