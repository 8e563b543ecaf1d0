package dal

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jubilee/models"
)

// ClaimJobRun tries to claim one scheduled firing of a named job for this
// worker. Exactly one worker in the cluster wins the insert; the rest see
// claimed == false and skip the firing.
func (s *Store) ClaimJobRun(jobName string, scheduledAt time.Time, workerID string) (*models.JobRun, bool, error) {
	run := models.JobRun{
		JobName:     jobName,
		ScheduledAt: scheduledAt,
		WorkerID:    workerID,
		Attempts:    1,
		Status:      models.JobRunning,
	}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_name"}, {Name: "scheduled_at"}},
		DoNothing: true,
	}).Create(&run)
	if result.Error != nil {
		return nil, false, result.Error
	}
	return &run, result.RowsAffected > 0, nil
}

// SetJobRunStatus records the outcome of a firing.
func (s *Store) SetJobRunStatus(runID uint, status string) error {
	return s.db.Model(&models.JobRun{}).
		Where("id = ?", runID).
		Update("status", status).Error
}

// BumpJobRunAttempts increments the attempt counter ahead of a retry.
func (s *Store) BumpJobRunAttempts(runID uint) error {
	return s.db.Model(&models.JobRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"attempts": gorm.Expr("attempts + 1"),
			"status":   models.JobRetrying,
		}).Error
}

// StaleJobRuns returns firings that were claimed but never finished within
// the lease window, so a restarted worker can pick them back up.
func (s *Store) StaleJobRuns(lease time.Duration, now time.Time) ([]models.JobRun, error) {
	var runs []models.JobRun
	err := s.db.Where(
		"status IN ? AND updated_at < ?",
		[]string{models.JobRunning, models.JobRetrying},
		now.Add(-lease),
	).Find(&runs).Error
	return runs, err
}

// DeleteJobRunsBefore garbage-collects firing records older than the cutoff.
func (s *Store) DeleteJobRunsBefore(cutoff time.Time) error {
	return s.db.Unscoped().Where("scheduled_at < ?", cutoff).
		Delete(&models.JobRun{}).Error
}
