package worker

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/soulprintlabs/soulprint-backend/internal/jobs/runtime"
	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/repos"
	"github.com/soulprintlabs/soulprint-backend/internal/services"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
	"github.com/soulprintlabs/soulprint-backend/internal/utils"
)

const (
	defaultPollInterval      = 1 * time.Second
	defaultHeartbeatInterval = 15 * time.Second
	defaultStaleProcessing   = 2 * time.Minute
	maxAttempts              = 5
)

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.SynthesisJobRepo
	registry *runtime.Registry
	notify   services.JobNotifier

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	staleProcessing   time.Duration
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.SynthesisJobRepo, registry *runtime.Registry, notify services.JobNotifier) *Worker {
	log := baseLog.With("component", "JobWorker")
	return &Worker{
		db:                db,
		log:               log,
		repo:              repo,
		registry:          registry,
		notify:            notify,
		pollInterval:      utils.GetEnvAsDuration("WORKER_POLL_INTERVAL", defaultPollInterval, log),
		heartbeatInterval: utils.GetEnvAsDuration("WORKER_HEARTBEAT_INTERVAL", defaultHeartbeatInterval, log),
		staleProcessing:   utils.GetEnvAsDuration("WORKER_STALE_PROCESSING", defaultStaleProcessing, log),
	}
}

// Start launches the worker pool. Each loop polls for a claimable job; claims
// go through ClaimNextRunnable, which also picks up processing rows whose
// heartbeat went stale, so jobs orphaned by a crash resume automatically.
func (w *Worker) Start(ctx context.Context) {
	concurrency := utils.GetEnvAsInt("WORKER_CONCURRENCY", 4, w.log)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Starting job worker pool", "concurrency", concurrency)

	for i := 0; i < concurrency; i++ {
		workerID := i + 1
		go w.runLoop(ctx, workerID)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(ctx, nil, maxAttempts, w.staleProcessing)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.runJob(ctx, workerID, job)
		}
	}
}

func (w *Worker) runJob(ctx context.Context, workerID int, job *types.SynthesisJob) {
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type",
			"worker_id", workerID,
			"job_type", job.JobType,
			"job_id", job.ID,
		)
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		return
	}

	// Heartbeat while the handler runs so a live long stage is not mistaken
	// for an orphan and reclaimed.
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go func() {
		t := time.NewTicker(w.heartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				if err := w.repo.Heartbeat(hbCtx, nil, job.ID); err != nil {
					w.log.Warn("Heartbeat failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}()
	defer stopHeartbeat()

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic",
				"worker_id", workerID,
				"job_id", job.ID,
				"job_type", job.JobType,
				"panic", r,
			)
			jc.Fail("panic", errFromRecover(r))
		}
	}()

	if runErr := h.Run(jc); runErr != nil {
		// Pipelines call jc.Fail themselves; this is a safety net.
		jc.Fail("run", runErr)
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
