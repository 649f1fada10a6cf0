package database

import (
	"fmt"

	"mass-messaging/internal/config"
	"mass-messaging/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var GormDB *gorm.DB

// Dialector picks the gorm driver for the configured database
func Dialector(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "postgres", "postgresql":
		return postgres.Open(PostgresDSN(cfg)), nil
	case "sqlite", "sqlite3", "":
		return sqlite.Open(cfg.DBPath), nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}

func PostgresDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
}

// Open connects with the configured driver and migrates the schema
func Open(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	level := logger.Warn
	if cfg.AppEnv == "development" || cfg.AppEnv == "dev" {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DBDriver, err)
	}
	log.Info().Str("driver", cfg.DBDriver).Msg("database connected")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info().Msg("database migration completed")
	return db, nil
}

// InitGorm opens the database into GormDB and exits on failure
func InitGorm(cfg *config.Config, log zerolog.Logger) {
	db, err := Open(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise database")
	}
	GormDB = db
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// OpenMemory returns a migrated private in-memory sqlite database
func OpenMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return db, Migrate(db)
}

// SyncConfig lets values stored in system_settings override the environment.
// Keys missing from the table are seeded from the current configuration.
func SyncConfig(db *gorm.DB, cfg *config.Config, log zerolog.Logger) {
	settings := []struct {
		Key   string
		Value *string
	}{
		{"VERIFY_TOKEN", &cfg.VerifyToken},
		{"WHATSAPP_TOKEN", &cfg.WhatsAppToken},
		{"PHONE_NUMBER_ID", &cfg.PhoneNumberID},
		{"WABA_ID", &cfg.WhatsAppBusinessAccountID},
		{"LABSMOBILE_SENDER", &cfg.LabsMobileSender},
		{"WEBHOOK_WHATSAPP", &cfg.WebhookWhatsApp},
		{"WEBHOOK_EMAIL", &cfg.WebhookEmail},
	}

	for _, s := range settings {
		var setting models.SystemSetting
		if err := db.Where("key = ?", s.Key).First(&setting).Error; err == nil {
			if setting.Value != "" {
				*s.Value = setting.Value
			}
		} else if *s.Value != "" {
			if err := db.Create(&models.SystemSetting{Key: s.Key, Value: *s.Value}).Error; err != nil {
				log.Warn().Err(err).Str("key", s.Key).Msg("failed to seed setting")
			}
		}
	}
	log.Info().Msg("system settings synchronized from database")
}
