package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"allocengine/src/externalmodel"
)

// ReadOnlyDB is the read-only connection used to poll the signal generator's
// database. The database user for this connection should have SELECT-only
// permissions.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only database connection. It runs no
// migrations; the signal feed schema is owned by the generator.
func InitReadOnlyDB() error {
	config := GetConfig()
	db, err := gorm.Open(postgres.Open(config.DatabaseURLReadOnly),
		&gorm.Config{
			PrepareStmt:    true,
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	// Fail fast at startup if the feed table is not reachable.
	var count int64
	if err := db.
		Model(&externalmodel.SignalRow{}).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to access signal_feed: %w", err)
	}

	logrus.WithFields(map[string]interface{}{"count": count}).
		Info("[ReadOnlyDB] signal_feed reachable")

	ReadOnlyDB = db

	return nil
}
