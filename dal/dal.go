// Package dal is the store access layer. All persistence goes through gorm
// over sqlite; claim-style inserts use ON CONFLICT DO NOTHING so concurrent
// workers resolve races at the database rather than in memory.
package dal

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"jubilee/models"
)

// Store bundles the database handle for the typed queries in this package.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InitDB creates and returns a database connection, migrating all tables.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(
		sqlite.Open(dbPath),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)},
	)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	err = db.AutoMigrate(
		&models.GuildConfig{},
		&models.Birthday{},
		&models.BirthdayMark{},
		&models.RoleRemoval{},
		&models.JobRun{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return db, nil
}

// GetGuildConfig gets the stored config for the given guild, or nil when
// the guild has never been configured.
func (s *Store) GetGuildConfig(guildID string) (*models.GuildConfig, error) {
	var config models.GuildConfig
	err := s.db.Where(&models.GuildConfig{GuildID: guildID}).Take(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// EnsureGuildConfig returns the guild's config, creating a default row when
// none exists yet.
func (s *Store) EnsureGuildConfig(guildID string) (*models.GuildConfig, error) {
	config, err := s.GetGuildConfig(guildID)
	if err != nil || config != nil {
		return config, err
	}

	config = &models.GuildConfig{GuildID: guildID}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}},
		DoNothing: true,
	}).Create(config).Error
	if err != nil {
		return nil, err
	}
	return s.GetGuildConfig(guildID)
}

// SaveGuildConfig persists the given config row.
func (s *Store) SaveGuildConfig(config *models.GuildConfig) error {
	return s.db.Save(config).Error
}

// SetOverviewMessage updates only the stored overview message ref for the
// given guild. The overview reconciler is the single writer of this column.
func (s *Store) SetOverviewMessage(guildID, messageID string) error {
	return s.db.Model(&models.GuildConfig{}).
		Where("guild_id = ?", guildID).
		Update("overview_message_id", messageID).Error
}

// ListGuildConfigs returns every configured guild.
func (s *Store) ListGuildConfigs() ([]models.GuildConfig, error) {
	var configs []models.GuildConfig
	err := s.db.Find(&configs).Error
	return configs, err
}

// CountGuilds returns the number of configured guilds.
func (s *Store) CountGuilds() (int64, error) {
	var count int64
	err := s.db.Model(&models.GuildConfig{}).Count(&count).Error
	return count, err
}
