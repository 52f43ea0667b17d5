package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

type SynthesisJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.SynthesisJob) (*types.SynthesisJob, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.SynthesisJob, error)
	GetLatestForUser(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, jobType string) (*types.SynthesisJob, error)
	// ClaimNextRunnable picks one resumable job and marks it processing under
	// SKIP LOCKED, incrementing its attempt counter. Eligible rows are pending
	// jobs and processing jobs whose heartbeat has gone stale (the process that
	// owned them died), both below the attempt ceiling.
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, staleProcessing time.Duration) (*types.SynthesisJob, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsUnlessStatus applies updates only while the job is not in one
	// of the given statuses. Returns false when the guard rejected the write.
	UpdateFieldsUnlessStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, unless []string, updates map[string]interface{}) (bool, error)
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type synthesisJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSynthesisJobRepo(db *gorm.DB, baseLog *logger.Logger) SynthesisJobRepo {
	return &synthesisJobRepo{
		db:  db,
		log: baseLog.With("repo", "SynthesisJobRepo"),
	}
}

func (r *synthesisJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.SynthesisJob) (*types.SynthesisJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if job == nil {
		return nil, nil
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *synthesisJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.SynthesisJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.SynthesisJob
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *synthesisJobRepo) GetLatestForUser(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, jobType string) (*types.SynthesisJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if ownerUserID == uuid.Nil || jobType == "" {
		return nil, nil
	}
	var job types.SynthesisJob
	err := transaction.WithContext(ctx).
		Where("owner_user_id = ? AND job_type = ?", ownerUserID, jobType).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *synthesisJobRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, staleProcessing time.Duration) (*types.SynthesisJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	staleCutoff := now.Add(-staleProcessing)
	var claimed *types.SynthesisJob
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.SynthesisJob
		q := txx.Session(&gorm.Session{})
		// sqlite (dev mode) has no row locks and runs a single process.
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		q = q.Where(`
				attempts < ?
				AND (
					status = ?
					OR (
						status = ?
						AND heartbeat_at IS NOT NULL
						AND heartbeat_at < ?
					)
				)
			`, maxAttempts, types.JobStatusPending, types.JobStatusProcessing, staleCutoff).
			Order("created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.SynthesisJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.JobStatusProcessing,
				"attempts":     gorm.Expr("attempts + 1"),
				"started_at":   now,
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = types.JobStatusProcessing
		job.Attempts++
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *synthesisJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.SynthesisJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *synthesisJobRepo) UpdateFieldsUnlessStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, unless []string, updates map[string]interface{}) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	q := transaction.WithContext(ctx).
		Model(&types.SynthesisJob{}).
		Where("id = ?", id)
	if len(unless) > 0 {
		q = q.Where("status NOT IN ?", unless)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *synthesisJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.SynthesisJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusProcessing).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}
