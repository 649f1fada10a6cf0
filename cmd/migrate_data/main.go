package main

import (
	"fmt"

	"mass-messaging/internal/config"
	"mass-messaging/internal/database"
	"mass-messaging/internal/logger"
	"mass-messaging/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Copies the sqlite database at DB_PATH into the configured PostgreSQL
// database and resyncs its id sequences
func main() {
	cfg := config.LoadConfig()
	log := logger.New(cfg.AppEnv)

	// 1. Connect to SQLite (Source)
	sqliteDB, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to SQLite")
	}
	log.Info().Str("path", cfg.DBPath).Msg("connected to SQLite")

	// 2. Connect to PostgreSQL (Destination)
	pgCfg := *cfg
	pgCfg.DBDriver = "postgres"
	pgDB, err := database.Open(&pgCfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}

	log.Info().Msg("starting data migration")

	// Parents before children
	migrateTable[models.Group](sqliteDB, pgDB, "groups", log)
	migrateTable[models.GroupContact](sqliteDB, pgDB, "group_contacts", log)
	migrateTable[models.Template](sqliteDB, pgDB, "templates", log)
	migrateTable[models.ChatTemplate](sqliteDB, pgDB, "chat_templates", log)
	migrateTable[models.MessageLog](sqliteDB, pgDB, "message_logs", log)
	migrateTable[models.SystemSetting](sqliteDB, pgDB, "system_settings", log)

	// 3. Resync serial sequences so new rows do not collide with copied ids
	for _, table := range []string{"groups", "group_contacts", "templates", "message_logs"} {
		query := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), coalesce(max(id), 0) + 1, false) FROM %s", table, table)
		if err := pgDB.Exec(query).Error; err != nil {
			log.Error().Err(err).Str("table", table).Msg("failed to sync sequence")
			continue
		}
		log.Info().Str("table", table).Msg("sequence synced")
	}

	log.Info().Msg("migration completed")
}

func migrateTable[T any](src, dst *gorm.DB, table string, log zerolog.Logger) {
	var rows []T
	if err := src.Find(&rows).Error; err != nil {
		log.Error().Err(err).Str("table", table).Msg("failed to read from SQLite")
		return
	}
	if len(rows) == 0 {
		log.Info().Str("table", table).Msg("nothing to migrate")
		return
	}

	err := dst.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, 500).Error
	})
	if err != nil {
		log.Error().Err(err).Str("table", table).Msg("failed to write to PostgreSQL")
		return
	}
	log.Info().Str("table", table).Int("rows", len(rows)).Msg("table migrated")
}
