package database

import (
	"feltfuzz/config"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewDBConnection opens the findings database. The sink is optional: with no
// DATABASE_URL it returns nil and every repo call becomes a no-op, keeping
// the file-system store the sole source of truth.
func NewDBConnection(appConfig *config.AppConfig, logger *zap.Logger) *gorm.DB {
	connectionString := appConfig.DatabaseURL
	if connectionString == "" {
		logger.Info("findings database disabled")
		return nil
	}
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	if err := db.AutoMigrate(&CrashFinding{}, &CampaignStat{}); err != nil {
		logger.Fatal("failed to migrate findings schema", zap.Error(err))
	}
	logger.Debug("connected to database")
	return db
}
