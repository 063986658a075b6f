package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewGormDB initializes and returns a GORM DB instance.
// DB_TYPE selects "mysql" or "sqlite" (defaults to sqlite for dev);
// DB_DSN is the connection string.
func NewGormDB() (*gorm.DB, error) {
	dbType := os.Getenv("DB_TYPE")
	dsn := os.Getenv("DB_DSN")

	var dialector gorm.Dialector

	if dbType == "mysql" {
		if dsn == "" {
			dsn = "root:@tcp(127.0.0.1:3306)/scripter?charset=utf8mb4&parseTime=True&loc=Local"
			log.Println("Using default MySQL DSN: ", dsn)
		}
		dialector = mysql.Open(dsn)
	} else {
		if dsn == "" {
			dsn = "scripter.db"
			log.Println("Using default SQLite DSN: ", dsn)
		}
		dialector = sqlite.Open(dsn)
	}

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	gormDB, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established successfully.")
	return gormDB, nil
}

// AutoMigrate performs auto-migration for the given GORM models.
func AutoMigrate(gormDB *gorm.DB, models ...interface{}) error {
	if err := gormDB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	log.Println("Database migration completed successfully for provided models.")
	return nil
}
