package database

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Conceptual-Machines/melody-api/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	sqlitePrefix       = "sqlite:"
	maxOpenConns       = 10
	maxIdleConns       = 5
	connMaxLifetime    = time.Hour
	slowQueryThreshold = 500 * time.Millisecond
)

// Connect opens the history database. URLs starting with "sqlite:" open a
// SQLite file (or ":memory:"); anything else is a Postgres DSN.
func Connect(databaseURL string) (*gorm.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}

	cfg := &gorm.Config{
		Logger: gormlogger.New(log.Default(), gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	var (
		dialector gorm.Dialector
		isSQLite  bool
	)
	if path, ok := strings.CutPrefix(databaseURL, sqlitePrefix); ok {
		dialector = sqlite.Open(path)
		isSQLite = true
	} else {
		dialector = postgres.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if isSQLite {
		// one connection keeps ":memory:" databases shared and avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(maxIdleConns)
		sqlDB.SetConnMaxLifetime(connMaxLifetime)
	}

	log.Printf("✅ Database connected (%s)", driverName(isSQLite))
	return db, nil
}

// Migrate creates or updates the history tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Generation{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks the database connection
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func driverName(isSQLite bool) string {
	if isSQLite {
		return "sqlite"
	}
	return "postgres"
}
