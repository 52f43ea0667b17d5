package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/soulprintlabs/soulprint-backend/internal/jobs/runtime"
	"github.com/soulprintlabs/soulprint-backend/internal/jobs/worker"
	"github.com/soulprintlabs/soulprint-backend/internal/repos"
	"github.com/soulprintlabs/soulprint-backend/internal/repos/testutil"
	"github.com/soulprintlabs/soulprint-backend/internal/services"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

type recordingHandler struct {
	jobType string
	run     func(jc *runtime.Context) error
}

func (h *recordingHandler) Type() string { return h.jobType }

func (h *recordingHandler) Run(jc *runtime.Context) error { return h.run(jc) }

func waitForStatus(t *testing.T, repo repos.SynthesisJobRepo, jobID uuid.UUID, want string) *types.SynthesisJob {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := repo.GetByID(context.Background(), nil, jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("job never reached status %q", want)
	return nil
}

func TestWorker_ClaimsAndCompletesPendingJob(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "1")
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewSynthesisJobRepo(db, log)
	user := testutil.SeedUser(t, db, "worker@example.com")
	job := testutil.SeedJob(t, db, user.ID, types.JobStatusPending, time.Now().Add(-time.Minute))

	registry := runtime.NewRegistry()
	if err := registry.Register(&recordingHandler{
		jobType: types.JobTypeMemoryFullPass,
		run: func(jc *runtime.Context) error {
			jc.Progress("working", 50)
			jc.Succeed("done", map[string]any{"ok": true})
			return nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.NewWorker(db, log, repo, registry, services.NewNopJobNotifier()).Start(ctx)

	done := waitForStatus(t, repo, job.ID, types.JobStatusComplete)
	if done.Progress != 100 || done.Stage != "done" {
		t.Errorf("completion state: progress=%d stage=%q", done.Progress, done.Stage)
	}
	if done.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", done.Attempts)
	}
}

func TestWorker_FailsJobWithoutHandler(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "1")
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewSynthesisJobRepo(db, log)
	user := testutil.SeedUser(t, db, "nohandler@example.com")
	job := testutil.SeedJob(t, db, user.ID, types.JobStatusPending, time.Now().Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.NewWorker(db, log, repo, runtime.NewRegistry(), services.NewNopJobNotifier()).Start(ctx)

	failed := waitForStatus(t, repo, job.ID, types.JobStatusFailed)
	if failed.Stage != "dispatch" {
		t.Errorf("stage = %q, want dispatch", failed.Stage)
	}
	if failed.Error == "" {
		t.Error("error message not recorded")
	}
}

func TestWorker_HandlerErrorFailsJob(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "1")
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewSynthesisJobRepo(db, log)
	user := testutil.SeedUser(t, db, "handlererr@example.com")
	job := testutil.SeedJob(t, db, user.ID, types.JobStatusPending, time.Now().Add(-time.Minute))

	registry := runtime.NewRegistry()
	_ = registry.Register(&recordingHandler{
		jobType: types.JobTypeMemoryFullPass,
		run: func(jc *runtime.Context) error {
			return context.DeadlineExceeded
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.NewWorker(db, log, repo, registry, services.NewNopJobNotifier()).Start(ctx)

	failed := waitForStatus(t, repo, job.ID, types.JobStatusFailed)
	if failed.Stage != "run" {
		t.Errorf("stage = %q, want run", failed.Stage)
	}
}
