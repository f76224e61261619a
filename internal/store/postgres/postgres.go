package pgstore

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/dwarvesf/treasury-settlement/internal/utils/config"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

func New(appConfig *config.AppConfig, logger *logger.Logger) *gorm.DB {
	db, err := connectPostgres(appConfig)
	if err != nil {
		logger.Fatal("[pgstore.New] failed to connect to postgres", map[string]string{
			"error": err.Error(),
		})
	}

	logger.Info("[pgstore.New] database connected", map[string]string{
		"host": appConfig.Postgres.Host,
		"name": appConfig.Postgres.Name,
	})
	return db
}

func DSN(c config.DBConnection) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host,
		c.User,
		c.Pass,
		c.Name,
		c.Port,
		c.SSLMode,
	)
}

func connectPostgres(appConfig *config.AppConfig) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if appConfig.Environment.IsLive() {
		logLevel = gormlogger.Error
	}

	db, err := gorm.Open(postgres.Open(DSN(appConfig.Postgres)),
		&gorm.Config{
			NamingStrategy: schema.NamingStrategy{
				SingularTable: false,
			},
			Logger:         gormlogger.Default.LogMode(logLevel),
			TranslateError: true,
		})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
