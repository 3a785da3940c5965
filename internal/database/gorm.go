package database

import (
	"fmt"
	"log"

	"github.com/matheus-sup/CRM-sub000/internal/config"
	"github.com/matheus-sup/CRM-sub000/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Init opens the database (Postgres when DB_HOST is configured, a local
// SQLite file otherwise) and runs the schema migration.
func Init(cfg *config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	if cfg.DBHost != "" {
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		log.Println("Connected to PostgreSQL successfully")
	} else {
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Printf("Using SQLite database at %s", cfg.SQLitePath)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs the schema auto-migration and seeds the singleton config row.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.ChatConfig{},
		&models.ChatRule{},
		&models.Conversation{},
		&models.Message{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration: %w", err)
	}

	// Seed the singleton config so the engine always has something to snapshot.
	var count int64
	db.Model(&models.ChatConfig{}).Count(&count)
	if count == 0 {
		seed := models.ChatConfig{
			ID:                  1,
			Temperature:         0.7,
			MaxTokens:           500,
			HoursStart:          "08:00",
			HoursEnd:            "18:00",
			WorkingDays:         "mon,tue,wed,thu,fri",
			MessagesPerMinute:   10,
			ConversationTimeout: 30,
			MaxAIMessages:       10,
			BotEnabled:          true,
			InitialStage:        "inicio",
		}
		if err := db.Create(&seed).Error; err != nil {
			return fmt.Errorf("seed chat config: %w", err)
		}
		log.Println("Seeded default chat config")
	}

	return nil
}
