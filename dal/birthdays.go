package dal

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jubilee/models"
)

// UpsertBirthday inserts or updates the given birthday.
func (s *Store) UpsertBirthday(birthday models.Birthday) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"month", "day", "year"}),
	}).Create(&birthday).Error
}

// GetBirthday gets the birthday for the given guild & user, or nil when the
// user has not registered one.
func (s *Store) GetBirthday(guildID, userID string) (*models.Birthday, error) {
	var birthday models.Birthday
	err := s.db.Where(
		&models.Birthday{GuildID: guildID, UserID: userID},
	).Take(&birthday).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &birthday, nil
}

// DeleteBirthday removes the birthday for the given guild & user. Deleting
// an absent row is not an error.
func (s *Store) DeleteBirthday(guildID, userID string) error {
	// Hard delete: a soft-deleted row would still hold the unique
	// (guild, user) slot and block re-registration.
	return s.db.Unscoped().Where(
		"guild_id = ? AND user_id = ?", guildID, userID,
	).Delete(&models.Birthday{}).Error
}

// ListBirthdays returns all birthdays registered in the given guild.
func (s *Store) ListBirthdays(guildID string) ([]models.Birthday, error) {
	var birthdays []models.Birthday
	err := s.db.Where(&models.Birthday{GuildID: guildID}).Find(&birthdays).Error
	return birthdays, err
}

// CountBirthdays returns the number of birthdays registered in the given
// guild.
func (s *Store) CountBirthdays(guildID string) (int64, error) {
	var count int64
	err := s.db.Model(&models.Birthday{}).
		Where("guild_id = ?", guildID).Count(&count).Error
	return count, err
}

// CountAllBirthdays returns the number of birthdays across all guilds.
func (s *Store) CountAllBirthdays() (int64, error) {
	var count int64
	err := s.db.Model(&models.Birthday{}).Count(&count).Error
	return count, err
}
