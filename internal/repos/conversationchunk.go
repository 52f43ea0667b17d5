package repos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

type ConversationChunkRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.ConversationChunk) ([]*types.ConversationChunk, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ConversationChunk, error)
	// GetMissingEmbeddings pages through chunks whose embedding is still null.
	GetMissingEmbeddings(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.ConversationChunk, error)
	UpdateEmbedding(ctx context.Context, tx *gorm.DB, chunkID uuid.UUID, vector []float32) error
	DeleteAllForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type conversationChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationChunkRepo(db *gorm.DB, baseLog *logger.Logger) ConversationChunkRepo {
	return &conversationChunkRepo{
		db:  db,
		log: baseLog.With("repo", "ConversationChunkRepo"),
	}
}

func (r *conversationChunkRepo) CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.ConversationChunk) ([]*types.ConversationChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return []*types.ConversationChunk{}, nil
	}
	for _, ch := range chunks {
		if ch != nil && ch.ID == uuid.Nil {
			ch.ID = uuid.New()
		}
	}

	// Keep batches small because Content is large.
	const batchSize = 100

	if err := transaction.WithContext(ctx).CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *conversationChunkRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ConversationChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ConversationChunk
	if userID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("conversation_id, chunk_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conversationChunkRepo) GetMissingEmbeddings(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.ConversationChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ConversationChunk
	if limit <= 0 {
		limit = 50
	}
	q := transaction.WithContext(ctx).Where("embedding IS NULL")
	// Nil user means all users (backfill tooling).
	if userID != uuid.Nil {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conversationChunkRepo) UpdateEmbedding(ctx context.Context, tx *gorm.DB, chunkID uuid.UUID, vector []float32) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if chunkID == uuid.Nil || len(vector) == 0 {
		return nil
	}
	raw, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	return transaction.WithContext(ctx).
		Model(&types.ConversationChunk{}).
		Where("id = ?", chunkID).
		Updates(map[string]interface{}{
			"embedding":  datatypes.JSON(raw),
			"updated_at": time.Now(),
		}).Error
}

func (r *conversationChunkRepo) DeleteAllForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&types.ConversationChunk{}).Error
}
