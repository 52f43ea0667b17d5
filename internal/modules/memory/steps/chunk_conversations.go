package steps

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/modules/memory"
	"github.com/soulprintlabs/soulprint-backend/internal/repos"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

type ChunkConversationsDeps struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Chunks repos.ConversationChunkRepo
}

type ChunkConversationsInput struct {
	UserID        uuid.UUID
	Conversations []memory.Conversation
	Params        memory.ChunkParams
}

type ChunkConversationsOutput struct {
	Chunks    []*types.ConversationChunk
	Persisted bool
}

// ChunkConversations splits the export into chunks and persists them. The
// user's previous chunks are purged first so a fresh full pass is idempotent.
// Persistence failures are logged and do not fail the stage: downstream
// stages work from the in-memory chunks, and a later attempt recomputes.
func ChunkConversations(ctx context.Context, deps ChunkConversationsDeps, in ChunkConversationsInput) (ChunkConversationsOutput, error) {
	out := ChunkConversationsOutput{}
	if deps.Log == nil || deps.Chunks == nil {
		return out, fmt.Errorf("chunk_conversations: missing deps")
	}
	if in.UserID == uuid.Nil {
		return out, fmt.Errorf("chunk_conversations: missing user_id")
	}
	if len(in.Conversations) == 0 {
		return out, fmt.Errorf("chunk_conversations: export contains no conversations")
	}

	chunks := memory.ChunkConversations(in.Conversations, in.Params)
	if len(chunks) == 0 {
		return out, fmt.Errorf("chunk_conversations: export produced no chunks")
	}
	for _, ch := range chunks {
		ch.UserID = in.UserID
	}
	out.Chunks = chunks

	if err := deps.Chunks.DeleteAllForUser(ctx, nil, in.UserID); err != nil {
		deps.Log.Warn("chunk_conversations: purge of prior chunks failed, continuing", "user_id", in.UserID, "error", err)
	}
	if _, err := deps.Chunks.CreateBatch(ctx, nil, chunks); err != nil {
		deps.Log.Warn("chunk_conversations: chunk insert failed, continuing with in-memory chunks", "user_id", in.UserID, "error", err)
		return out, nil
	}
	out.Persisted = true
	return out, nil
}
