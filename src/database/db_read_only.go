package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gorm.io/driver/postgres"
)

// ReadOnlyDB is the connection the stats API reads from. When no dedicated
// read-only DSN is configured it falls back to MainDB, which is safe because
// the main store runs in a concurrent-reader write mode.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only database connection.
// It does not run any migrations and should only be used for reading data.
func InitReadOnlyDB() error {
	config := GetConfig()

	if config.DatabaseURLReadOnly == "" || config.Driver == "sqlite" {
		if MainDB == nil {
			return fmt.Errorf("MainDB must be initialized before ReadOnlyDB fallback")
		}
		ReadOnlyDB = MainDB
		logrus.Info("[database] ReadOnlyDB falling back to MainDB")
		return nil
	}

	db, err := gorm.Open(postgres.Open(config.DatabaseURLReadOnly),
		&gorm.Config{
			PrepareStmt:    true,
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to connect to ReadOnlyDB: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	ReadOnlyDB = db

	logrus.Info("[database] ReadOnlyDB connection established")

	return nil
}
