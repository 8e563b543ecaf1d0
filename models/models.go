package models

import (
	"time"

	"gorm.io/gorm"
)

// GuildConfig holds a guild's birthday settings. Channel, message and role
// references are nullable: an unset pointer means the feature is disabled
// for that guild.
type GuildConfig struct {
	gorm.Model
	GuildID               string `gorm:"uniqueIndex"`
	UTCOffset             int
	AnnouncementChannelID *string
	OverviewChannelID     *string
	OverviewMessageID     *string
	BirthdayRoleID        *string
	PingRoleID            *string
	AnnouncementMessage   string
	Premium               bool
}

// Birthday represents a user's birth day and month within one guild.
// Year is optional.
type Birthday struct {
	gorm.Model
	GuildID string `gorm:"uniqueIndex:idx_birthday_guild_user,priority:1"`
	UserID  string `gorm:"uniqueIndex:idx_birthday_guild_user,priority:2"`
	Month   uint
	Day     uint
	Year    *int
}

// Delivery stages tracked on a BirthdayMark. A mark is created at
// StageClaimed and only ever advances.
const (
	StageClaimed = iota
	StageAnnounced
	StageRoleGranted
	StageDone
)

// BirthdayMark records that delivery for one birthday occurrence has been
// claimed. The (guild, user, date) unique index is what makes delivery
// idempotent: whichever worker inserts the row first owns the occurrence.
// Stage is the step cursor for resuming a partially delivered occurrence.
type BirthdayMark struct {
	gorm.Model
	GuildID string `gorm:"uniqueIndex:idx_mark_occurrence,priority:1"`
	UserID  string `gorm:"uniqueIndex:idx_mark_occurrence,priority:2"`
	Date    string `gorm:"uniqueIndex:idx_mark_occurrence,priority:3"` // local calendar date, YYYY-MM-DD
	Stage   int
}

// RoleRemoval schedules revocation of the birthday role at the end of the
// member's local birthday. RemoveAt is pinned when the role is granted, so
// a timezone change after the grant does not move the removal.
type RoleRemoval struct {
	gorm.Model
	GuildID  string `gorm:"uniqueIndex:idx_removal_guild_user,priority:1"`
	UserID   string `gorm:"uniqueIndex:idx_removal_guild_user,priority:2"`
	RoleID   string
	RemoveAt time.Time `gorm:"index"`
}

// Job run states.
const (
	JobRunning  = "running"
	JobRetrying = "retrying"
	JobDone     = "done"
	JobFailed   = "failed"
)

// JobRun is the claim row for one scheduled firing of a named job. The
// (name, scheduled_at) unique index gives cluster-wide mutual exclusion:
// only the worker that inserts the row executes the firing.
type JobRun struct {
	gorm.Model
	JobName     string    `gorm:"uniqueIndex:idx_job_firing,priority:1"`
	ScheduledAt time.Time `gorm:"uniqueIndex:idx_job_firing,priority:2"`
	WorkerID    string
	Attempts    int
	Status      string
}
