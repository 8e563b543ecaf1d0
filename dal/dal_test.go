package dal

import (
	"fmt"
	"testing"
	"time"

	"jubilee/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := InitDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return NewStore(db)
}

func TestClaimMarkOnlyOnce(t *testing.T) {
	store := testStore(t)

	mark, claimed, err := store.ClaimMark("g1", "u1", "2024-06-15")
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should win")
	}
	if mark.Stage != models.StageClaimed {
		t.Errorf("new mark stage = %d, want %d", mark.Stage, models.StageClaimed)
	}

	if err := store.SetMarkStage(mark.ID, models.StageAnnounced); err != nil {
		t.Fatalf("failed to advance stage: %v", err)
	}

	again, claimed, err := store.ClaimMark("g1", "u1", "2024-06-15")
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if claimed {
		t.Fatal("second claim should lose")
	}
	if again.ID != mark.ID {
		t.Errorf("second claim returned mark %d, want existing %d", again.ID, mark.ID)
	}
	if again.Stage != models.StageAnnounced {
		t.Errorf("existing mark stage = %d, want %d", again.Stage, models.StageAnnounced)
	}

	// A different date is a different occurrence.
	_, claimed, err = store.ClaimMark("g1", "u1", "2025-06-15")
	if err != nil || !claimed {
		t.Fatalf("claim for new date: claimed=%v err=%v", claimed, err)
	}
}

func TestMarkedUserIDs(t *testing.T) {
	store := testStore(t)

	for _, user := range []string{"u1", "u2"} {
		if _, _, err := store.ClaimMark("g1", user, "2024-06-15"); err != nil {
			t.Fatalf("claim failed: %v", err)
		}
	}
	if _, _, err := store.ClaimMark("g2", "u3", "2024-06-15"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	marked, err := store.MarkedUserIDs("g1", "2024-06-15")
	if err != nil {
		t.Fatalf("MarkedUserIDs failed: %v", err)
	}
	if len(marked) != 2 || !marked["u1"] || !marked["u2"] {
		t.Errorf("marked = %v, want u1 and u2", marked)
	}
}

func TestDeleteMarksBefore(t *testing.T) {
	store := testStore(t)

	store.ClaimMark("g1", "u1", "2024-06-13")
	store.ClaimMark("g1", "u2", "2024-06-15")

	if err := store.DeleteMarksBefore("2024-06-14"); err != nil {
		t.Fatalf("DeleteMarksBefore failed: %v", err)
	}

	old, _ := store.MarkedUserIDs("g1", "2024-06-13")
	if len(old) != 0 {
		t.Error("expected old mark to be garbage collected")
	}
	kept, _ := store.MarkedUserIDs("g1", "2024-06-15")
	if len(kept) != 1 {
		t.Error("expected recent mark to survive")
	}
}

func TestUpsertBirthday(t *testing.T) {
	store := testStore(t)

	err := store.UpsertBirthday(models.Birthday{
		GuildID: "g1", UserID: "u1", Month: 6, Day: 15,
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	year := 1990
	err = store.UpsertBirthday(models.Birthday{
		GuildID: "g1", UserID: "u1", Month: 7, Day: 1, Year: &year,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	birthday, err := store.GetBirthday("g1", "u1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if birthday.Month != 7 || birthday.Day != 1 {
		t.Errorf("birthday = %d-%d, want 7-1", birthday.Month, birthday.Day)
	}
	if birthday.Year == nil || *birthday.Year != 1990 {
		t.Errorf("year = %v, want 1990", birthday.Year)
	}

	count, _ := store.CountBirthdays("g1")
	if count != 1 {
		t.Errorf("count = %d, want 1 after upsert", count)
	}
}

func TestGetBirthdayAbsent(t *testing.T) {
	store := testStore(t)

	birthday, err := store.GetBirthday("g1", "nobody")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if birthday != nil {
		t.Errorf("expected nil for unregistered user, got %+v", birthday)
	}
}

func TestRoleRemovalLifecycle(t *testing.T) {
	store := testStore(t)
	removeAt := time.Date(2024, 6, 15, 22, 0, 0, 0, time.UTC)

	err := store.UpsertRoleRemoval("g1", "u1", "r1", removeAt)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// Before the deadline nothing is due.
	due, err := store.DueRoleRemovals(removeAt.Add(-time.Hour))
	if err != nil || len(due) != 0 {
		t.Fatalf("due before deadline = %v (err %v), want none", due, err)
	}

	due, err = store.DueRoleRemovals(removeAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("DueRoleRemovals failed: %v", err)
	}
	if len(due) != 1 || due[0].RoleID != "r1" {
		t.Fatalf("due = %v, want the one scheduled removal", due)
	}

	if err := store.DeleteRoleRemoval(due[0].ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	due, _ = store.DueRoleRemovals(removeAt.Add(time.Hour))
	if len(due) != 0 {
		t.Error("expected removal to be destroyed")
	}
}

func TestClaimJobRunContention(t *testing.T) {
	store := testStore(t)
	at := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	_, claimed, err := store.ClaimJobRun("birthdays", at, "worker-a")
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}

	_, claimed, err = store.ClaimJobRun("birthdays", at, "worker-b")
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if claimed {
		t.Error("second worker should not claim the same firing")
	}

	// The next firing is claimable again.
	_, claimed, err = store.ClaimJobRun("birthdays", at.Add(time.Hour), "worker-b")
	if err != nil || !claimed {
		t.Fatalf("next firing: claimed=%v err=%v", claimed, err)
	}
}

func TestSetOverviewMessage(t *testing.T) {
	store := testStore(t)

	config, err := store.EnsureGuildConfig("g1")
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if config.OverviewMessageID != nil {
		t.Fatal("fresh config should have no overview message")
	}

	if err := store.SetOverviewMessage("g1", "m42"); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	config, _ = store.GetGuildConfig("g1")
	if config.OverviewMessageID == nil || *config.OverviewMessageID != "m42" {
		t.Errorf("overview message = %v, want m42", config.OverviewMessageID)
	}
}
