package steps

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/modules/memory"
	"github.com/soulprintlabs/soulprint-backend/internal/platform/openai"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

type ExtractFactsDeps struct {
	Log *logger.Logger
	AI  openai.Client
}

type ExtractFactsInput struct {
	Chunks      []*types.ConversationChunk
	Concurrency int
}

type ExtractFactsOutput struct {
	Bundles      []memory.FactBundle
	ChunksFailed int
}

var extractTemperature = 0.1

// ExtractFacts runs one extraction call per chunk under a bounded fan-out.
// Every call is fault-isolated: a timeout, rate limit, or malformed response
// yields the empty bundle for that chunk, never an error for the stage.
func ExtractFacts(ctx context.Context, deps ExtractFactsDeps, in ExtractFactsInput) (ExtractFactsOutput, error) {
	out := ExtractFactsOutput{}
	if deps.Log == nil || deps.AI == nil {
		return out, fmt.Errorf("extract_facts: missing deps")
	}
	maxConc := in.Concurrency
	if maxConc < 1 {
		maxConc = 10
	}

	bundles := make([]memory.FactBundle, len(in.Chunks))
	var failed int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConc)

	for i, chunk := range in.Chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if chunk == nil {
				bundles[i] = memory.EmptyFactBundle()
				return nil
			}
			raw, err := deps.AI.GenerateJSON(gctx,
				memory.ExtractionSystemPrompt,
				memory.ExtractionUserPrompt(chunk.Content),
				"fact_bundle",
				memory.FactBundleSchema(),
				openai.Options{Temperature: &extractTemperature},
			)
			if err != nil {
				deps.Log.Warn("extract_facts: chunk extraction failed, substituting empty bundle",
					"conversation_id", chunk.ConversationID,
					"chunk_index", chunk.ChunkIndex,
					"error", err,
				)
				atomic.AddInt32(&failed, 1)
				bundles[i] = memory.EmptyFactBundle()
				return nil
			}
			bundle, pErr := memory.ParseFactBundle(raw)
			if pErr != nil {
				deps.Log.Warn("extract_facts: unparseable extraction output, substituting empty bundle",
					"conversation_id", chunk.ConversationID,
					"chunk_index", chunk.ChunkIndex,
					"error", pErr,
				)
				atomic.AddInt32(&failed, 1)
				bundles[i] = memory.EmptyFactBundle()
				return nil
			}
			bundles[i] = bundle
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Workers never return errors; this only fires on context cancellation.
		return out, err
	}

	out.Bundles = bundles
	out.ChunksFailed = int(failed)
	return out, nil
}
