package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"jubilee/clock"
	"jubilee/dal"
	"jubilee/jobs"
)

// Reconciler refreshes a guild's overview message after its data changed.
type Reconciler interface {
	Reconcile(ctx context.Context, guildID string) error
}

// Pipeline is the hourly birthday job: find guilds crossing local midnight,
// deliver their due birthdays, refresh their overviews and run the sweep.
type Pipeline struct {
	store        *dal.Store
	orchestrator *Orchestrator
	reconciler   Reconciler
	log          zerolog.Logger
}

// New wires the hourly pipeline.
func New(store *dal.Store, orchestrator *Orchestrator, reconciler Reconciler, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:        store,
		orchestrator: orchestrator,
		reconciler:   reconciler,
		log:          log.With().Str("component", "pipeline").Logger(),
	}
}

// RunHourly executes one firing for the given scheduled instant. The
// instant, not the wall clock, drives the day-start gate and date
// resolution, so a firing retried or recovered hours later still reaches
// the guilds whose local midnight it was scheduled for. A store failure
// before any guild is processed aborts the whole run as retryable;
// per-pair transient failures are collected so the remaining pairs still
// run and the firing as a whole is retried.
func (p *Pipeline) RunHourly(ctx context.Context, scheduledAt time.Time) error {
	now := scheduledAt

	configs, err := p.store.ListGuildConfigs()
	if err != nil {
		return jobs.Retryable(fmt.Errorf("load guild configs: %w", err))
	}

	var retryErr error
	for i := range configs {
		cfg := &configs[i]

		if err := ctx.Err(); err != nil {
			return err
		}
		if !clock.ValidOffset(cfg.UTCOffset) || !clock.IsDayStart(now, cfg.UTCOffset) {
			continue
		}

		date := clock.LocalDate(now, cfg.UTCOffset)
		due, err := ResolveDue(p.store, cfg.GuildID, date)
		if err != nil {
			retryErr = jobs.Retryable(fmt.Errorf("resolve due set for %v: %w", cfg.GuildID, err))
			continue
		}

		for _, userID := range due {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.orchestrator.Deliver(cfg, userID, date); err != nil {
				if jobs.IsRetryable(err) {
					retryErr = err
					continue
				}
				p.log.Error().Err(err).
					Str("guild", cfg.GuildID).
					Str("user", userID).
					Msg("delivery failed")
			}
		}

		// Every guild crossing local midnight gets its overview refreshed,
		// due birthdays or not: the "next occurrence" ordering shifts at
		// each day change, and a failed refresh must be reachable again on
		// the retried firing even when all deliveries already completed.
		if err := p.reconciler.Reconcile(ctx, cfg.GuildID); err != nil {
			p.log.Warn().Err(err).Str("guild", cfg.GuildID).Msg("overview refresh failed")
			if retryErr == nil {
				retryErr = jobs.Retryable(fmt.Errorf("refresh overview for %v: %w", cfg.GuildID, err))
			}
		}
	}

	if err := p.orchestrator.Sweep(ctx); err != nil {
		if retryErr == nil {
			retryErr = jobs.Retryable(err)
		}
		p.log.Warn().Err(err).Msg("sweep failed")
	}

	return retryErr
}
