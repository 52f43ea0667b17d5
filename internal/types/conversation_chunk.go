package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Chunk tiers. The full pass emits medium chunks only; micro/macro exist for
// retrieval callers that want finer or broader granularity from the same
// source text.
const (
	ChunkTierMicro  = "micro"
	ChunkTierMedium = "medium"
	ChunkTierMacro  = "macro"
)

// ConversationChunk is a token-bounded slice of one conversation, the unit of
// extraction and embedding. Embedding stays null until the embed stage writes
// it back; a fresh full pass purges all chunks for the user first.
type ConversationChunk struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	ConversationID    string         `gorm:"column:conversation_id;not null;index" json:"conversation_id"`
	ConversationTitle string         `gorm:"column:conversation_title" json:"conversation_title"`
	Tier              string         `gorm:"column:tier;not null;index" json:"tier"`
	Content           string         `gorm:"column:content;not null" json:"content"`
	TokenCount        int            `gorm:"column:token_count;not null" json:"token_count"`
	ChunkIndex        int            `gorm:"column:chunk_index;not null" json:"chunk_index"`
	TotalChunks       int            `gorm:"column:total_chunks;not null" json:"total_chunks"`
	IsRecent          bool           `gorm:"column:is_recent;not null;default:false" json:"is_recent"`
	Embedding         datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ConversationChunk) TableName() string { return "conversation_chunk" }
