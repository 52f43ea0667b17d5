package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/soulprintlabs/soulprint-backend/internal/clients/redis"
	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

// JobNotifier pushes job lifecycle events to interested clients. The worker
// calls it on every transition; implementations must not block job execution.
type JobNotifier interface {
	JobCreated(userID uuid.UUID, job *types.SynthesisJob)
	JobProgress(userID uuid.UUID, job *types.SynthesisJob, stage string, progress int)
	JobFailed(userID uuid.UUID, job *types.SynthesisJob, stage string, errorMessage string)
	JobDone(userID uuid.UUID, job *types.SynthesisJob)
}

const (
	JobEventCreated  = "job_created"
	JobEventProgress = "job_progress"
	JobEventFailed   = "job_failed"
	JobEventDone     = "job_done"
)

type jobNotifier struct {
	log *logger.Logger
	bus redis.NotifyBus
}

// NewJobNotifier returns a notifier that publishes job events onto the redis
// notify bus, keyed by the owning user's ID.
func NewJobNotifier(baseLog *logger.Logger, bus redis.NotifyBus) JobNotifier {
	return &jobNotifier{
		log: baseLog.With("service", "JobNotifier"),
		bus: bus,
	}
}

func (n *jobNotifier) publish(userID uuid.UUID, event string, data map[string]any) {
	if n == nil || n.bus == nil || userID == uuid.Nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		n.log.Warn("job event marshal failed", "event", event, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.bus.Publish(ctx, redis.NotifyMessage{
		Channel: userID.String(),
		Event:   event,
		Data:    raw,
	}); err != nil {
		n.log.Warn("job event publish failed", "event", event, "user_id", userID, "error", err)
	}
}

func (n *jobNotifier) JobCreated(userID uuid.UUID, job *types.SynthesisJob) {
	n.publish(userID, JobEventCreated, map[string]any{"job": job})
}

func (n *jobNotifier) JobProgress(userID uuid.UUID, job *types.SynthesisJob, stage string, progress int) {
	n.publish(userID, JobEventProgress, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"stage":    stage,
		"progress": progress,
	})
}

func (n *jobNotifier) JobFailed(userID uuid.UUID, job *types.SynthesisJob, stage string, errorMessage string) {
	n.publish(userID, JobEventFailed, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"stage":    stage,
		"error":    errorMessage,
	})
}

func (n *jobNotifier) JobDone(userID uuid.UUID, job *types.SynthesisJob) {
	n.publish(userID, JobEventDone, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"result":   job.Result,
	})
}

// nopJobNotifier is used when redis is not configured (dev mode, tests).
type nopJobNotifier struct{}

func NewNopJobNotifier() JobNotifier { return nopJobNotifier{} }

func (nopJobNotifier) JobCreated(uuid.UUID, *types.SynthesisJob)                  {}
func (nopJobNotifier) JobProgress(uuid.UUID, *types.SynthesisJob, string, int)    {}
func (nopJobNotifier) JobFailed(uuid.UUID, *types.SynthesisJob, string, string)   {}
func (nopJobNotifier) JobDone(uuid.UUID, *types.SynthesisJob)                     {}
