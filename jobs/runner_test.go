package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"jubilee/dal"
)

func TestRecoverReplaysScheduledInstant(t *testing.T) {
	db, err := dal.InitDB(fmt.Sprintf("file:jobs_%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	store := dal.NewStore(db)

	got := make(chan time.Time, 1)
	r := NewRunner(store, zerolog.Nop())
	err = r.Register(Job{
		Name:        "birthdays",
		Spec:        "0 * * * *",
		MaxAttempts: 3,
		Handler: func(ctx context.Context, scheduledAt time.Time) error {
			got <- scheduledAt
			return nil
		},
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// A previous worker claimed a firing two hours ago and died before
	// finishing it.
	past := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Minute)
	run, claimed, err := store.ClaimJobRun("birthdays", past, "worker-gone")
	if err != nil || !claimed {
		t.Fatalf("claim failed: claimed=%v err=%v", claimed, err)
	}
	backdated := time.Now().UTC().Add(-time.Hour)
	err = db.Exec("UPDATE job_runs SET updated_at = ? WHERE id = ?", backdated, run.ID).Error
	if err != nil {
		t.Fatalf("failed to age the claim: %v", err)
	}

	r.recover()

	// The recovered firing must run with its original scheduled instant,
	// not the current wall clock, so time-keyed handlers replay the hour
	// they were claimed for.
	select {
	case at := <-got:
		if !at.UTC().Equal(past) {
			t.Errorf("handler ran for %v, want the original instant %v", at, past)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stale firing was not recovered")
	}

	r.Stop(context.Background())
}

func TestRecoverSkipsFreshClaims(t *testing.T) {
	db, err := dal.InitDB(fmt.Sprintf("file:jobs_%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	store := dal.NewStore(db)

	fired := make(chan time.Time, 1)
	r := NewRunner(store, zerolog.Nop())
	err = r.Register(Job{
		Name: "birthdays",
		Spec: "0 * * * *",
		Handler: func(ctx context.Context, scheduledAt time.Time) error {
			fired <- scheduledAt
			return nil
		},
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// A claim inside the lease window belongs to a live worker.
	now := time.Now().UTC().Truncate(time.Minute)
	if _, claimed, err := store.ClaimJobRun("birthdays", now, "live-worker"); err != nil || !claimed {
		t.Fatalf("claim failed: claimed=%v err=%v", claimed, err)
	}

	r.recover()

	select {
	case at := <-fired:
		t.Errorf("fresh claim for %v must not be re-run", at)
	case <-time.After(100 * time.Millisecond):
	}

	r.Stop(context.Background())
}
