package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"jubilee/clock"
	"jubilee/dal"
	"jubilee/discord"
	"jubilee/jobs"
	"jubilee/models"
)

// DefaultAnnouncement is used by guilds without a custom (premium) template.
const DefaultAnnouncement = "Happy birthday, {mention}! 🎂"

// Orchestrator performs the per-occurrence delivery steps: claim the mark,
// announce, grant the role, schedule its removal. Each step is independently
// resumable through the mark's stage cursor.
type Orchestrator struct {
	store  *dal.Store
	client discord.Client
	log    zerolog.Logger
	now    func() time.Time
}

// NewOrchestrator wires an orchestrator.
func NewOrchestrator(store *dal.Store, client discord.Client, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:  store,
		client: client,
		log:    log.With().Str("component", "delivery").Logger(),
		now:    time.Now,
	}
}

// Deliver processes one due (guild, user) pair for the given local date.
//
// The mark claim happens before any externally visible effect. Transient
// platform failures surface as a retryable error without rolling back the
// mark; re-entry resumes at the first incomplete step. Permission failures
// are permanent for this occurrence: logged and skipped, since they need an
// admin to fix.
func (o *Orchestrator) Deliver(cfg *models.GuildConfig, userID string, date clock.Date) error {
	log := o.log.With().
		Str("guild", cfg.GuildID).
		Str("user", userID).
		Str("date", date.String()).
		Logger()

	mark, claimed, err := o.store.ClaimMark(cfg.GuildID, userID, date.String())
	if err != nil {
		return fmt.Errorf("claim mark for %v/%v: %w", cfg.GuildID, userID, err)
	}
	if !claimed {
		if mark.Stage >= models.StageDone {
			// Another worker already completed this occurrence.
			return nil
		}
		log.Info().Int("stage", mark.Stage).Msg("resuming partial delivery")
	}

	if mark.Stage < models.StageAnnounced {
		if err := o.announce(cfg, userID, log); err != nil {
			return err
		}
		if err := o.advance(mark, models.StageAnnounced); err != nil {
			return err
		}
	}

	if mark.Stage < models.StageRoleGranted {
		granted, err := o.grantRole(cfg, userID, log)
		if err != nil {
			return err
		}
		if !granted {
			// No role on this member, so nothing to revoke later.
			if err := o.advance(mark, models.StageDone); err != nil {
				return err
			}
			log.Info().Msg("birthday delivered")
			return nil
		}
		if err := o.advance(mark, models.StageRoleGranted); err != nil {
			return err
		}
	}

	if mark.Stage < models.StageDone {
		if cfg.BirthdayRoleID != nil {
			// The removal instant is pinned now, at grant time; a later
			// timezone change does not move it.
			removeAt := clock.EndOfLocalDay(date, cfg.UTCOffset)
			err := o.store.UpsertRoleRemoval(cfg.GuildID, userID, *cfg.BirthdayRoleID, removeAt)
			if err != nil {
				return fmt.Errorf("schedule role removal: %w", err)
			}
		}
		if err := o.advance(mark, models.StageDone); err != nil {
			return err
		}
		log.Info().Msg("birthday delivered")
	}

	return nil
}

func (o *Orchestrator) advance(mark *models.BirthdayMark, stage int) error {
	if err := o.store.SetMarkStage(mark.ID, stage); err != nil {
		return fmt.Errorf("advance delivery stage: %w", err)
	}
	mark.Stage = stage
	return nil
}

func (o *Orchestrator) announce(cfg *models.GuildConfig, userID string, log zerolog.Logger) error {
	if cfg.AnnouncementChannelID == nil {
		log.Debug().Msg("no announcement channel configured, skipping announcement")
		return nil
	}

	_, err := o.client.SendMessage(*cfg.AnnouncementChannelID, announcementContent(cfg, userID))
	switch {
	case err == nil:
		return nil
	case discord.IsPermission(err), discord.IsNotFound(err):
		log.Warn().Err(err).Msg("cannot announce birthday, guild needs admin attention")
		return nil
	case discord.IsTransient(err):
		return jobs.Retryable(fmt.Errorf("send announcement: %w", err))
	default:
		log.Warn().Err(err).Msg("announcement rejected")
		return nil
	}
}

// grantRole reports whether the member ended up with the role. Permanent
// failures are logged and reported as not granted.
func (o *Orchestrator) grantRole(cfg *models.GuildConfig, userID string, log zerolog.Logger) (bool, error) {
	if cfg.BirthdayRoleID == nil {
		return false, nil
	}

	err := o.client.GrantRole(cfg.GuildID, userID, *cfg.BirthdayRoleID)
	switch {
	case err == nil:
		return true, nil
	case discord.IsPermission(err):
		log.Warn().Err(err).Msg("cannot grant birthday role, guild needs admin attention")
		return false, nil
	case discord.IsNotFound(err):
		log.Warn().Err(err).Msg("member or role gone, skipping role grant")
		return false, nil
	case discord.IsTransient(err):
		return false, jobs.Retryable(fmt.Errorf("grant birthday role: %w", err))
	default:
		log.Warn().Err(err).Msg("role grant rejected")
		return false, nil
	}
}

func announcementContent(cfg *models.GuildConfig, userID string) string {
	template := DefaultAnnouncement
	if cfg.Premium && cfg.AnnouncementMessage != "" {
		template = cfg.AnnouncementMessage
	}

	content := strings.ReplaceAll(template, "{mention}", "<@"+userID+">")
	if cfg.PingRoleID != nil {
		content = "<@&" + *cfg.PingRoleID + "> " + content
	}
	return content
}
