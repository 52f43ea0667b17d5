package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	apperrors "github.com/soulprintlabs/soulprint-backend/internal/pkg/errors"
	"github.com/soulprintlabs/soulprint-backend/internal/repos"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

type JobService interface {
	// Enqueue creates a pending synthesis job for the user. If a runnable job
	// of the same type already exists for the user, that job is returned
	// instead and created=false.
	Enqueue(ctx context.Context, ownerUserID uuid.UUID, jobType string, payload map[string]any) (job *types.SynthesisJob, created bool, err error)
	GetByIDForUser(ctx context.Context, userID uuid.UUID, jobID uuid.UUID) (*types.SynthesisJob, error)
	GetLatestForUser(ctx context.Context, userID uuid.UUID, jobType string) (*types.SynthesisJob, error)
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.SynthesisJobRepo
	users  repos.UserRepo
	notify JobNotifier
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, repo repos.SynthesisJobRepo, users repos.UserRepo, notify JobNotifier) JobService {
	return &jobService{
		db:     db,
		log:    baseLog.With("service", "JobService"),
		repo:   repo,
		users:  users,
		notify: notify,
	}
}

func (s *jobService) Enqueue(ctx context.Context, ownerUserID uuid.UUID, jobType string, payload map[string]any) (*types.SynthesisJob, bool, error) {
	if ownerUserID == uuid.Nil {
		return nil, false, fmt.Errorf("missing owner_user_id: %w", apperrors.ErrInvalidArgument)
	}
	if jobType == "" {
		return nil, false, fmt.Errorf("missing job_type: %w", apperrors.ErrInvalidArgument)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	owner, err := s.users.GetByID(ctx, nil, ownerUserID)
	if err != nil {
		return nil, false, fmt.Errorf("look up owner: %w", err)
	}
	if owner == nil {
		return nil, false, fmt.Errorf("unknown owner %s: %w", ownerUserID, apperrors.ErrNotFound)
	}

	var (
		job     *types.SynthesisJob
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		latest, err := s.repo.GetLatestForUser(ctx, txx, ownerUserID, jobType)
		if err != nil {
			return err
		}
		// One full pass per user at a time. A stuck processing row is not
		// blocked here; the claim loop reclaims it once its heartbeat goes
		// stale.
		if latest != nil && !latest.Terminal() {
			job = latest
			return nil
		}

		b, _ := json.Marshal(payload)
		now := time.Now()
		row := &types.SynthesisJob{
			ID:          uuid.New(),
			OwnerUserID: ownerUserID,
			JobType:     jobType,
			Status:      types.JobStatusPending,
			Stage:       "queued",
			Progress:    0,
			Attempts:    0,
			Payload:     datatypes.JSON(b),
			Result:      datatypes.JSON([]byte(`{}`)),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if _, err := s.repo.Create(ctx, txx, row); err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		job = row
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created && s.notify != nil {
		s.notify.JobCreated(ownerUserID, job)
	}
	return job, created, nil
}

func (s *jobService) GetByIDForUser(ctx context.Context, userID uuid.UUID, jobID uuid.UUID) (*types.SynthesisJob, error) {
	if userID == uuid.Nil {
		return nil, apperrors.ErrUnauthorized
	}
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("missing job id: %w", apperrors.ErrInvalidArgument)
	}
	job, err := s.repo.GetByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	// Ownership failures look identical to missing rows.
	if job == nil || job.OwnerUserID != userID {
		return nil, apperrors.ErrNotFound
	}
	return job, nil
}

func (s *jobService) GetLatestForUser(ctx context.Context, userID uuid.UUID, jobType string) (*types.SynthesisJob, error) {
	if userID == uuid.Nil {
		return nil, apperrors.ErrUnauthorized
	}
	job, err := s.repo.GetLatestForUser(ctx, nil, userID, jobType)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperrors.ErrNotFound
	}
	return job, nil
}
