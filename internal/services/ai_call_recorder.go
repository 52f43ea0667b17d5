package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/platform/openai"
	"github.com/soulprintlabs/soulprint-backend/internal/repos"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

// aiCallRecorder persists one audit row per model call. Attribution comes
// from the context so the AI client stays ignorant of users and jobs.
type aiCallRecorder struct {
	log  *logger.Logger
	repo repos.AICallLogRepo
}

func NewAICallRecorder(baseLog *logger.Logger, repo repos.AICallLogRepo) openai.CallRecorder {
	return &aiCallRecorder{
		log:  baseLog.With("service", "AICallRecorder"),
		repo: repo,
	}
}

type callAttributionKey struct{}

type callAttribution struct {
	UserID uuid.UUID
	JobID  uuid.UUID
}

// WithCallAttribution tags a context so subsequent AI calls are attributed to
// a user and job in the call log.
func WithCallAttribution(ctx context.Context, userID, jobID uuid.UUID) context.Context {
	return context.WithValue(ctx, callAttributionKey{}, &callAttribution{UserID: userID, JobID: jobID})
}

func getCallAttribution(ctx context.Context) *callAttribution {
	if ctx == nil {
		return nil
	}
	if a, ok := ctx.Value(callAttributionKey{}).(*callAttribution); ok {
		return a
	}
	return nil
}

func (r *aiCallRecorder) RecordCall(ctx context.Context, callType string, model string, usage openai.Usage, success bool, errMsg string) {
	if r == nil || r.repo == nil {
		return
	}
	row := &types.AICallLog{
		CallType: callType,
		Model:    model,
		Success:  success,
		Error:    errMsg,
	}
	if b, err := json.Marshal(usage); err == nil {
		row.Usage = datatypes.JSON(b)
	}
	if a := getCallAttribution(ctx); a != nil {
		if a.UserID != uuid.Nil {
			uid := a.UserID
			row.UserID = &uid
		}
		if a.JobID != uuid.Nil {
			jid := a.JobID
			row.JobID = &jid
		}
	}

	// Detached context: the call may have failed on a canceled ctx and the
	// audit row should still land.
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.repo.Create(writeCtx, nil, row); err != nil {
		r.log.Warn("ai call log insert failed", "call_type", callType, "error", err)
	}
}
