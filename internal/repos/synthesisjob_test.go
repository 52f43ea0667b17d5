package repos_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/soulprintlabs/soulprint-backend/internal/repos"
	"github.com/soulprintlabs/soulprint-backend/internal/repos/testutil"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

func TestSynthesisJobRepo_ClaimNextRunnable_ClaimsOldestPending(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewSynthesisJobRepo(db, testutil.Logger(t))
	ctx := context.Background()
	user := testutil.SeedUser(t, db, "claim@example.com")

	now := time.Now()
	older := testutil.SeedJob(t, db, user.ID, types.JobStatusPending, now.Add(-2*time.Hour))
	testutil.SeedJob(t, db, user.ID, types.JobStatusPending, now.Add(-1*time.Hour))

	job, err := repo.ClaimNextRunnable(ctx, nil, 5, 2*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil || job.ID != older.ID {
		t.Fatalf("expected oldest pending job, got %+v", job)
	}
	if job.Status != types.JobStatusProcessing || job.Attempts != 1 {
		t.Errorf("status=%q attempts=%d", job.Status, job.Attempts)
	}

	stored, err := repo.GetByID(ctx, nil, older.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != types.JobStatusProcessing || stored.HeartbeatAt == nil || stored.LockedAt == nil || stored.StartedAt == nil {
		t.Errorf("claim not persisted: %+v", stored)
	}
}

func TestSynthesisJobRepo_ClaimNextRunnable_NothingToClaim(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewSynthesisJobRepo(db, testutil.Logger(t))
	user := testutil.SeedUser(t, db, "idle@example.com")
	testutil.SeedJob(t, db, user.ID, types.JobStatusComplete, time.Now())
	testutil.SeedJob(t, db, user.ID, types.JobStatusFailed, time.Now())

	job, err := repo.ClaimNextRunnable(context.Background(), nil, 5, 2*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no claim, got %+v", job)
	}
}

func TestSynthesisJobRepo_ClaimNextRunnable_ReclaimsStaleProcessing(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewSynthesisJobRepo(db, testutil.Logger(t))
	ctx := context.Background()
	user := testutil.SeedUser(t, db, "stale@example.com")

	now := time.Now()
	stale := testutil.SeedJob(t, db, user.ID, types.JobStatusProcessing, now.Add(-time.Hour))
	if err := repo.UpdateFields(ctx, nil, stale.ID, map[string]interface{}{
		"heartbeat_at": now.Add(-10 * time.Minute),
		"attempts":     1,
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	fresh := testutil.SeedJob(t, db, user.ID, types.JobStatusProcessing, now.Add(-30*time.Minute))
	if err := repo.UpdateFields(ctx, nil, fresh.ID, map[string]interface{}{
		"heartbeat_at": now,
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	job, err := repo.ClaimNextRunnable(ctx, nil, 5, 2*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil || job.ID != stale.ID {
		t.Fatalf("expected the stale job, got %+v", job)
	}
	if job.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", job.Attempts)
	}

	// The freshly heartbeating row stays owned.
	if again, _ := repo.ClaimNextRunnable(ctx, nil, 5, 2*time.Minute); again != nil && again.ID == fresh.ID {
		t.Error("live processing job was reclaimed")
	}
}

func TestSynthesisJobRepo_ClaimNextRunnable_RespectsAttemptCeiling(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewSynthesisJobRepo(db, testutil.Logger(t))
	ctx := context.Background()
	user := testutil.SeedUser(t, db, "ceiling@example.com")

	exhausted := testutil.SeedJob(t, db, user.ID, types.JobStatusPending, time.Now())
	if err := repo.UpdateFields(ctx, nil, exhausted.ID, map[string]interface{}{
		"attempts": 5,
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	job, err := repo.ClaimNextRunnable(ctx, nil, 5, 2*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job != nil {
		t.Fatalf("exhausted job was claimed: %+v", job)
	}
}

func TestSynthesisJobRepo_UpdateFieldsUnlessStatus_GuardsTerminalRows(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewSynthesisJobRepo(db, testutil.Logger(t))
	ctx := context.Background()
	user := testutil.SeedUser(t, db, "guard@example.com")
	guard := []string{types.JobStatusComplete, types.JobStatusFailed}

	running := testutil.SeedJob(t, db, user.ID, types.JobStatusProcessing, time.Now())
	ok, err := repo.UpdateFieldsUnlessStatus(ctx, nil, running.ID, guard, map[string]interface{}{
		"progress": 50,
	})
	if err != nil || !ok {
		t.Fatalf("guard rejected a live row: ok=%v err=%v", ok, err)
	}

	done := testutil.SeedJob(t, db, user.ID, types.JobStatusComplete, time.Now())
	ok, err = repo.UpdateFieldsUnlessStatus(ctx, nil, done.ID, guard, map[string]interface{}{
		"status": types.JobStatusFailed,
	})
	if err != nil {
		t.Fatalf("guard errored: %v", err)
	}
	if ok {
		t.Fatal("guard allowed a write to a terminal row")
	}
	stored, _ := repo.GetByID(ctx, nil, done.ID)
	if stored.Status != types.JobStatusComplete {
		t.Errorf("terminal status clobbered: %q", stored.Status)
	}
}

func TestSynthesisJobRepo_Heartbeat_OnlyTouchesProcessing(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewSynthesisJobRepo(db, testutil.Logger(t))
	ctx := context.Background()
	user := testutil.SeedUser(t, db, "hb@example.com")

	pending := testutil.SeedJob(t, db, user.ID, types.JobStatusPending, time.Now())
	if err := repo.Heartbeat(ctx, nil, pending.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	stored, _ := repo.GetByID(ctx, nil, pending.ID)
	if stored.HeartbeatAt != nil {
		t.Error("heartbeat written to a non-processing row")
	}

	processing := testutil.SeedJob(t, db, user.ID, types.JobStatusProcessing, time.Now())
	if err := repo.Heartbeat(ctx, nil, processing.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	stored, _ = repo.GetByID(ctx, nil, processing.ID)
	if stored.HeartbeatAt == nil {
		t.Error("heartbeat not written")
	}
}

func TestSynthesisJobRepo_GetLatestForUser(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewSynthesisJobRepo(db, testutil.Logger(t))
	ctx := context.Background()
	user := testutil.SeedUser(t, db, "latest@example.com")
	other := testutil.SeedUser(t, db, "other@example.com")

	now := time.Now()
	testutil.SeedJob(t, db, user.ID, types.JobStatusComplete, now.Add(-2*time.Hour))
	newest := testutil.SeedJob(t, db, user.ID, types.JobStatusPending, now)
	testutil.SeedJob(t, db, other.ID, types.JobStatusPending, now.Add(time.Hour))

	job, err := repo.GetLatestForUser(ctx, nil, user.ID, types.JobTypeMemoryFullPass)
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if job == nil || job.ID != newest.ID {
		t.Fatalf("expected newest job for user, got %+v", job)
	}

	if job, _ := repo.GetLatestForUser(ctx, nil, uuid.New(), types.JobTypeMemoryFullPass); job != nil {
		t.Errorf("expected nil for unknown user, got %+v", job)
	}
}
