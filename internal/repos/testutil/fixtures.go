package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

func SeedUser(tb testing.TB, db *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "A",
		LastName:  "B",
	}
	if err := db.WithContext(context.Background()).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedJob(tb testing.TB, db *gorm.DB, ownerUserID uuid.UUID, status string, createdAt time.Time) *types.SynthesisJob {
	tb.Helper()
	j := &types.SynthesisJob{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     types.JobTypeMemoryFullPass,
		Status:      status,
		Stage:       "queued",
		Payload:     datatypes.JSON([]byte(`{}`)),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if err := db.WithContext(context.Background()).Create(j).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return j
}

func SeedChunk(tb testing.TB, db *gorm.DB, userID uuid.UUID, conversationID string, index int) *types.ConversationChunk {
	tb.Helper()
	c := &types.ConversationChunk{
		ID:             uuid.New(),
		UserID:         userID,
		ConversationID: conversationID,
		Tier:           types.ChunkTierMedium,
		Content:        "chunk",
		TokenCount:     1,
		ChunkIndex:     index,
		TotalChunks:    index + 1,
	}
	if err := db.WithContext(context.Background()).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}

func PtrTime(v time.Time) *time.Time { return &v }
