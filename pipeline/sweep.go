package pipeline

import (
	"context"
	"fmt"
	"time"

	"jubilee/clock"
	"jubilee/discord"
)

// markRetention keeps delivery marks until their local date has fully
// elapsed everywhere, with slack well past the job runner's retry window.
const markRetention = 48 * time.Hour

// Sweep revokes birthday roles whose pinned end-of-day instant has passed
// and garbage-collects expired delivery marks. A member or role that no
// longer exists counts as satisfied. Transient revoke failures leave the
// entry in place for the next tick.
func (o *Orchestrator) Sweep(ctx context.Context) error {
	now := o.now().UTC()

	due, err := o.store.DueRoleRemovals(now)
	if err != nil {
		return fmt.Errorf("list due role removals: %w", err)
	}

	for _, removal := range due {
		if err := ctx.Err(); err != nil {
			return err
		}

		log := o.log.With().
			Str("guild", removal.GuildID).
			Str("user", removal.UserID).
			Logger()

		err := o.client.RevokeRole(removal.GuildID, removal.UserID, removal.RoleID)
		switch {
		case err == nil, discord.IsNotFound(err):
			if err := o.store.DeleteRoleRemoval(removal.ID); err != nil {
				return fmt.Errorf("destroy role removal: %w", err)
			}
			log.Info().Msg("birthday role removed")
		case discord.IsPermission(err):
			log.Warn().Err(err).Msg("cannot revoke birthday role, guild needs admin attention")
		default:
			log.Warn().Err(err).Msg("role revoke failed, will retry next tick")
		}
	}

	cutoff := clock.LocalDate(now.Add(-markRetention), clock.MinOffset)
	if err := o.store.DeleteMarksBefore(cutoff.String()); err != nil {
		return fmt.Errorf("prune delivery marks: %w", err)
	}
	return nil
}
