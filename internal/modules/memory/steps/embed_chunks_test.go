package steps

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

func TestEmbedChunks_WritesVectorsBack(t *testing.T) {
	ai := &fakeAI{}
	chunks := &fakeChunks{}
	c1 := &types.ConversationChunk{ID: uuid.New(), Content: "first"}
	c2 := &types.ConversationChunk{ID: uuid.New(), Content: "second"}

	out, err := EmbedChunks(context.Background(), EmbedChunksDeps{Log: logger.NewNop(), AI: ai, Chunks: chunks}, EmbedChunksInput{
		Chunks: []*types.ConversationChunk{c1, c2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ChunksTotal != 2 || out.ChunksEmbedded != 2 || out.ChunksFailed != 0 {
		t.Errorf("total=%d embedded=%d failed=%d", out.ChunksTotal, out.ChunksEmbedded, out.ChunksFailed)
	}
	if len(chunks.embeddings[c1.ID]) == 0 || len(chunks.embeddings[c2.ID]) == 0 {
		t.Error("vectors not written back")
	}
}

func TestEmbedChunks_FailuresAreSkippedNotFatal(t *testing.T) {
	ai := &fakeAI{
		embedFn: func(inputs []string) ([][]float32, error) {
			if strings.Contains(inputs[0], "bad") {
				return nil, errors.New("rate limited")
			}
			return [][]float32{{1}}, nil
		},
	}
	chunks := &fakeChunks{}
	out, err := EmbedChunks(context.Background(), EmbedChunksDeps{Log: logger.NewNop(), AI: ai, Chunks: chunks}, EmbedChunksInput{
		Chunks: []*types.ConversationChunk{
			{ID: uuid.New(), Content: "bad chunk"},
			{ID: uuid.New(), Content: "good chunk"},
		},
	})
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if out.ChunksEmbedded != 1 || out.ChunksFailed != 1 {
		t.Errorf("embedded=%d failed=%d", out.ChunksEmbedded, out.ChunksFailed)
	}
}

func TestEmbedChunks_WriteBackFailureCountsAsFailed(t *testing.T) {
	chunks := &fakeChunks{updateErr: errors.New("db down")}
	out, err := EmbedChunks(context.Background(), EmbedChunksDeps{Log: logger.NewNop(), AI: &fakeAI{}, Chunks: chunks}, EmbedChunksInput{
		Chunks: []*types.ConversationChunk{{ID: uuid.New(), Content: "x"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ChunksEmbedded != 0 || out.ChunksFailed != 1 {
		t.Errorf("embedded=%d failed=%d", out.ChunksEmbedded, out.ChunksFailed)
	}
}

func TestEmbedChunks_TruncatesOversizedInput(t *testing.T) {
	ai := &fakeAI{}
	chunks := &fakeChunks{}
	_, err := EmbedChunks(context.Background(), EmbedChunksDeps{Log: logger.NewNop(), AI: ai, Chunks: chunks}, EmbedChunksInput{
		Chunks: []*types.ConversationChunk{{ID: uuid.New(), Content: strings.Repeat("x", 20000)}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ai.embedInputs) != 1 || len(ai.embedInputs[0]) != embedInputCharCap {
		t.Errorf("input not truncated: %d chars", len(ai.embedInputs[0]))
	}
}
