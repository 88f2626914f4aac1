package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"edgeengine/src/model"
)

// MainDB is the primary read/write database connection used by the engine.
// All state transitions go through it; it is the single writer.
var MainDB *gorm.DB

// InitMainDB initializes the main (read/write) database connection and runs
// migrations. This should be called once at application startup.
func InitMainDB() error {

	config := GetConfig()

	db, err := open(config, config.DatabaseURLMain)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to get DB from GORM")
	}

	if config.Driver == "sqlite" {
		// WAL keeps the dashboard's readers unblocked while the engine
		// writes. A single connection sidesteps SQLITE_BUSY between the
		// monitoring loops.
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
			return fmt.Errorf("failed to set busy timeout: %w", err)
		}
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(1 * time.Hour)
	}

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.WithField("driver", config.Driver).Info("[database] MainDB connection established")

	// Run AutoMigrate only on the main database.
	// Add here all models that belong to the write-side schema.
	if err := MainDB.AutoMigrate(
		&model.Window{},
		&model.Position{},
		&model.Order{},
		&model.Exception{},
		&model.OHLCVSpot1m{},
	); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}

func open(config Config, dsn string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
	}

	switch config.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		return gorm.Open(sqlite.Open(config.SQLitePath), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", config.Driver)
	}
}
