// Package jobs runs named recurring jobs across a fleet of workers. Cron
// schedules fire on every worker; a claim row keyed by (job, scheduled
// time) ensures exactly one worker executes each firing. Handlers that
// return a Retryable error are re-fired with exponential backoff, so the
// overall guarantee is at-least-once per firing — idempotency is the
// handlers' responsibility.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"jubilee/dal"
	"jubilee/models"
)

// leaseWindow is how long a claimed firing may sit unfinished before a
// restarted worker picks it back up.
const leaseWindow = 15 * time.Minute

// runRetention is how long finished firing records are kept.
const runRetention = 7 * 24 * time.Hour

// Handler executes one firing of a job. scheduledAt is the instant the
// firing was scheduled for, not the wall clock: a retried or recovered
// firing replays its original instant, so handlers keyed on time stay
// deterministic across restarts. Returning a Retryable error asks the
// runner to re-fire after backoff; any other error fails the firing.
type Handler func(ctx context.Context, scheduledAt time.Time) error

// Job is a named recurring job definition.
type Job struct {
	Name        string
	Spec        string // standard 5-field cron expression, UTC
	MaxAttempts int
	Handler     Handler
}

// Runner schedules and executes registered jobs.
type Runner struct {
	store    *dal.Store
	log      zerolog.Logger
	cron     *cron.Cron
	workerID string
	jobs     map[string]Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner with a fresh worker identity.
func NewRunner(store *dal.Store, log zerolog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:    store,
		log:      log.With().Str("component", "jobs").Logger(),
		cron:     cron.New(cron.WithLocation(time.UTC)),
		workerID: uuid.NewString(),
		jobs:     make(map[string]Job),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds a job definition. All jobs must be registered before Start.
func (r *Runner) Register(job Job) error {
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 1
	}
	_, err := r.cron.AddFunc(job.Spec, func() {
		r.fire(job)
	})
	if err != nil {
		return err
	}
	r.jobs[job.Name] = job
	return nil
}

// Start recovers stale firings from a previous process and begins ticking.
func (r *Runner) Start() {
	r.recover()
	r.cron.Start()
	r.log.Info().Str("worker", r.workerID).Int("jobs", len(r.jobs)).Msg("job runner started")
}

// Stop halts scheduling and waits for in-flight firings, bounded by ctx.
func (r *Runner) Stop(ctx context.Context) {
	<-r.cron.Stop().Done()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.log.Warn().Msg("job runner stopped before all firings finished")
	}
}

// fire claims and executes one scheduled firing. Cron fires on minute
// boundaries, so truncating now to the minute yields the same claim key on
// every worker.
func (r *Runner) fire(job Job) {
	scheduledAt := time.Now().UTC().Truncate(time.Minute)

	run, claimed, err := r.store.ClaimJobRun(job.Name, scheduledAt, r.workerID)
	if err != nil {
		r.log.Error().Err(err).Str("job", job.Name).Msg("failed to claim firing")
		return
	}
	if !claimed {
		r.log.Debug().Str("job", job.Name).Time("at", scheduledAt).
			Msg("firing claimed by another worker")
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.attempt(job, run, 1)
	}()
}

func (r *Runner) attempt(job Job, run *models.JobRun, attempt int) {
	if r.ctx.Err() != nil {
		return
	}

	log := r.log.With().Str("job", job.Name).Int("attempt", attempt).Logger()
	err := job.Handler(r.ctx, run.ScheduledAt)

	// Interrupted by shutdown: leave the claim as-is so recovery picks the
	// firing back up after restart.
	if err != nil && r.ctx.Err() != nil {
		log.Info().Msg("firing interrupted by shutdown")
		return
	}

	switch {
	case err == nil:
		if err := r.store.SetJobRunStatus(run.ID, models.JobDone); err != nil {
			log.Error().Err(err).Msg("failed to record firing success")
		}

	case IsRetryable(err) && attempt < job.MaxAttempts:
		delay := Backoff(attempt - 1)
		log.Warn().Err(err).Dur("backoff", delay).Msg("firing failed, will retry")
		if err := r.store.BumpJobRunAttempts(run.ID); err != nil {
			log.Error().Err(err).Msg("failed to record retry")
		}
		r.wg.Add(1)
		timer := time.AfterFunc(delay, func() {
			defer r.wg.Done()
			r.attempt(job, run, attempt+1)
		})
		go func() {
			<-r.ctx.Done()
			if timer.Stop() {
				r.wg.Done()
			}
		}()

	default:
		log.Error().Err(err).Msg("firing failed permanently")
		if err := r.store.SetJobRunStatus(run.ID, models.JobFailed); err != nil {
			log.Error().Err(err).Msg("failed to record firing failure")
		}
	}
}

// recover re-runs firings a previous process claimed but never finished.
func (r *Runner) recover() {
	now := time.Now().UTC()

	if err := r.store.DeleteJobRunsBefore(now.Add(-runRetention)); err != nil {
		r.log.Error().Err(err).Msg("failed to prune old firing records")
	}

	stale, err := r.store.StaleJobRuns(leaseWindow, now)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to look up stale firings")
		return
	}

	for _, run := range stale {
		job, ok := r.jobs[run.JobName]
		if !ok {
			continue
		}
		r.log.Info().Str("job", run.JobName).Time("at", run.ScheduledAt).
			Msg("recovering stale firing")
		run := run
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.attempt(job, &run, run.Attempts)
		}()
	}
}
