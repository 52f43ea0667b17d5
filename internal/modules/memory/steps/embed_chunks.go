package steps

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/platform/openai"
	"github.com/soulprintlabs/soulprint-backend/internal/repos"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

type EmbedChunksDeps struct {
	Log    *logger.Logger
	AI     openai.Client
	Chunks repos.ConversationChunkRepo
}

type EmbedChunksInput struct {
	Chunks      []*types.ConversationChunk
	Concurrency int
}

type EmbedChunksOutput struct {
	ChunksTotal    int
	ChunksEmbedded int
	ChunksFailed   int
}

// The embedding model caps input length; longer chunk text is truncated
// rather than split, since the vector is a retrieval aid, not the record.
const embedInputCharCap = 8000

// EmbedChunks computes one embedding per chunk and writes it back to the
// persisted record. Embeddings are an enhancement for later retrieval:
// failures (embed call or write-back) are logged and skipped, and never
// surface as a stage error.
func EmbedChunks(ctx context.Context, deps EmbedChunksDeps, in EmbedChunksInput) (EmbedChunksOutput, error) {
	out := EmbedChunksOutput{ChunksTotal: len(in.Chunks)}
	if deps.Log == nil || deps.AI == nil || deps.Chunks == nil {
		return out, fmt.Errorf("embed_chunks: missing deps")
	}
	maxConc := in.Concurrency
	if maxConc < 1 {
		maxConc = 10
	}

	var embedded, failed int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConc)

	for _, chunk := range in.Chunks {
		chunk := chunk
		g.Go(func() error {
			if chunk == nil {
				return nil
			}
			text := chunk.Content
			if len(text) > embedInputCharCap {
				text = text[:embedInputCharCap]
			}
			vecs, err := deps.AI.Embed(gctx, []string{text})
			if err != nil || len(vecs) != 1 {
				deps.Log.Warn("embed_chunks: embedding failed, skipping chunk",
					"chunk_id", chunk.ID, "error", err)
				atomic.AddInt32(&failed, 1)
				return nil
			}
			if err := deps.Chunks.UpdateEmbedding(gctx, nil, chunk.ID, vecs[0]); err != nil {
				deps.Log.Warn("embed_chunks: embedding write-back failed, skipping chunk",
					"chunk_id", chunk.ID, "error", err)
				atomic.AddInt32(&failed, 1)
				return nil
			}
			atomic.AddInt32(&embedded, 1)
			return nil
		})
	}
	_ = g.Wait()

	out.ChunksEmbedded = int(embedded)
	out.ChunksFailed = int(failed)
	return out, nil
}
