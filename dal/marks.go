package dal

import (
	"time"

	"gorm.io/gorm/clause"

	"jubilee/models"
)

// ClaimMark tries to create the delivery mark for one birthday occurrence.
// It returns the mark and whether this caller won the claim. When another
// worker already holds the occurrence the existing mark is returned with
// claimed == false, so the caller can inspect its stage.
func (s *Store) ClaimMark(guildID, userID, date string) (*models.BirthdayMark, bool, error) {
	mark := models.BirthdayMark{
		GuildID: guildID,
		UserID:  userID,
		Date:    date,
		Stage:   models.StageClaimed,
	}
	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "guild_id"}, {Name: "user_id"}, {Name: "date"},
		},
		DoNothing: true,
	}).Create(&mark)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return &mark, true, nil
	}

	var existing models.BirthdayMark
	err := s.db.Where(
		"guild_id = ? AND user_id = ? AND date = ?", guildID, userID, date,
	).Take(&existing).Error
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

// SetMarkStage advances the step cursor on a delivery mark.
func (s *Store) SetMarkStage(markID uint, stage int) error {
	return s.db.Model(&models.BirthdayMark{}).
		Where("id = ?", markID).
		Update("stage", stage).Error
}

// MarkedUserIDs returns the users already claimed for the given guild and
// local date.
func (s *Store) MarkedUserIDs(guildID, date string) (map[string]bool, error) {
	var marks []models.BirthdayMark
	err := s.db.Where(
		"guild_id = ? AND date = ?", guildID, date,
	).Find(&marks).Error
	if err != nil {
		return nil, err
	}

	marked := make(map[string]bool, len(marks))
	for _, mark := range marks {
		marked[mark.UserID] = true
	}
	return marked, nil
}

// CompletedUserIDs returns the users whose delivery for the given guild and
// local date already finished. In-progress marks are not included, so a
// retried firing can resume them.
func (s *Store) CompletedUserIDs(guildID, date string) (map[string]bool, error) {
	var marks []models.BirthdayMark
	err := s.db.Where(
		"guild_id = ? AND date = ? AND stage >= ?",
		guildID, date, models.StageDone,
	).Find(&marks).Error
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(marks))
	for _, mark := range marks {
		done[mark.UserID] = true
	}
	return done, nil
}

// DeleteMarksBefore garbage-collects marks whose local date (lexicographic
// YYYY-MM-DD) precedes the given cutoff.
func (s *Store) DeleteMarksBefore(cutoff string) error {
	return s.db.Unscoped().Where("date < ?", cutoff).
		Delete(&models.BirthdayMark{}).Error
}

// UpsertRoleRemoval schedules (or reschedules) removal of the birthday role
// for the given guild member.
func (s *Store) UpsertRoleRemoval(guildID, userID, roleID string, removeAt time.Time) error {
	removal := models.RoleRemoval{
		GuildID:  guildID,
		UserID:   userID,
		RoleID:   roleID,
		RemoveAt: removeAt,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role_id", "remove_at"}),
	}).Create(&removal).Error
}

// DueRoleRemovals returns removals whose pinned end-of-day instant has
// passed.
func (s *Store) DueRoleRemovals(now time.Time) ([]models.RoleRemoval, error) {
	var removals []models.RoleRemoval
	err := s.db.Where("remove_at <= ?", now).Find(&removals).Error
	return removals, err
}

// DeleteRoleRemoval destroys a completed removal entry.
func (s *Store) DeleteRoleRemoval(id uint) error {
	return s.db.Unscoped().Delete(&models.RoleRemoval{}, id).Error
}

// DeleteRoleRemovalFor reclaims a pending removal for a member, e.g. when
// they leave the guild. Deleting an absent row is not an error.
func (s *Store) DeleteRoleRemovalFor(guildID, userID string) error {
	return s.db.Unscoped().Where(
		"guild_id = ? AND user_id = ?", guildID, userID,
	).Delete(&models.RoleRemoval{}).Error
}
