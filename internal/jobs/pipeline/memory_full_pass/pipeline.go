package memory_full_pass

import (
	"fmt"

	"github.com/google/uuid"

	jobrt "github.com/soulprintlabs/soulprint-backend/internal/jobs/runtime"
	"github.com/soulprintlabs/soulprint-backend/internal/modules/memory"
	"github.com/soulprintlabs/soulprint-backend/internal/modules/memory/steps"
	"github.com/soulprintlabs/soulprint-backend/internal/services"
)

// Stage order for the full pass. Chunking and fact work are load-bearing and
// fail the job; later stages degrade (fallback document, skipped embeddings,
// untouched profile sections) so one flaky call never wastes the whole run.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	userID := jc.Job.OwnerUserID
	if userID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("job has no owner"))
		return nil
	}
	exportRef := jc.PayloadString("export_ref")
	if exportRef == "" {
		jc.Fail("validate", fmt.Errorf("missing export_ref"))
		return nil
	}

	ctx := services.WithCallAttribution(jc.Ctx, userID, jc.Job.ID)

	jc.Progress("download", 2)
	conversations, err := p.exports.Download(ctx, exportRef)
	if err != nil {
		jc.Fail("download", err)
		return nil
	}
	if len(conversations) == 0 {
		jc.Fail("download", fmt.Errorf("export contains no conversations"))
		return nil
	}

	jc.Progress("chunk", 10)
	chunked, err := steps.ChunkConversations(ctx, steps.ChunkConversationsDeps{
		DB:     p.db,
		Log:    p.log,
		Chunks: p.chunks,
	}, steps.ChunkConversationsInput{
		UserID:        userID,
		Conversations: conversations,
		Params: memory.ChunkParams{
			TargetTokens:  p.tuning.ChunkTargetTokens,
			OverlapTokens: p.tuning.ChunkOverlapTokens,
		},
	})
	if err != nil {
		jc.Fail("chunk", err)
		return nil
	}

	jc.Progress("extract_facts", 25)
	extracted, err := steps.ExtractFacts(ctx, steps.ExtractFactsDeps{
		Log: p.log,
		AI:  p.ai,
	}, steps.ExtractFactsInput{
		Chunks:      chunked.Chunks,
		Concurrency: p.tuning.ExtractConcurrency,
	})
	if err != nil {
		jc.Fail("extract_facts", err)
		return nil
	}

	jc.Progress("consolidate", 45)
	bundle := memory.Consolidate(extracted.Bundles)

	jc.Progress("reduce", 50)
	reduced, err := steps.ReduceFacts(ctx, steps.ReduceFactsDeps{
		Log: p.log,
		AI:  p.ai,
	}, steps.ReduceFactsInput{
		Bundle:       bundle,
		BudgetTokens: p.tuning.ReduceBudgetTokens,
		BatchTokens:  p.tuning.ReduceBatchTokens,
		MaxDepth:     p.tuning.ReduceMaxDepth,
		Concurrency:  p.tuning.ExtractConcurrency,
	})
	if err != nil {
		jc.Fail("reduce", err)
		return nil
	}

	jc.Progress("synthesize", 65)
	synthesized, err := steps.SynthesizeMemory(ctx, steps.SynthesizeMemoryDeps{
		Log:      p.log,
		AI:       p.ai,
		Profiles: p.profiles,
	}, steps.SynthesizeMemoryInput{
		UserID: userID,
		Bundle: reduced.Bundle,
	})
	if err != nil {
		jc.Fail("synthesize", err)
		return nil
	}

	jc.Progress("embed", 75)
	embedded, err := steps.EmbedChunks(ctx, steps.EmbedChunksDeps{
		Log:    p.log,
		AI:     p.ai,
		Chunks: p.chunks,
	}, steps.EmbedChunksInput{
		Chunks:      chunked.Chunks,
		Concurrency: p.tuning.EmbedConcurrency,
	})
	if err != nil {
		jc.Fail("embed", err)
		return nil
	}

	jc.Progress("profile", 90)
	profiled, err := steps.RegenerateProfile(ctx, steps.RegenerateProfileDeps{
		Log:      p.log,
		AI:       p.ai,
		Profiles: p.profiles,
	}, steps.RegenerateProfileInput{
		UserID:        userID,
		Conversations: conversations,
		MemoryDoc:     synthesized.Memory,
		Sample: memory.SampleParams{
			Target: p.tuning.ProfileSampleSize,
		},
	})
	if err != nil {
		jc.Fail("profile", err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"conversations":     len(conversations),
		"chunks":            len(chunked.Chunks),
		"chunks_persisted":  chunked.Persisted,
		"chunks_failed":     extracted.ChunksFailed,
		"facts":             reduced.Bundle.TotalEntries(),
		"reduce_passes":     reduced.Passes,
		"batches_failed":    reduced.BatchesFailed,
		"memory_degraded":   synthesized.Degraded,
		"chunks_embedded":   embedded.ChunksEmbedded,
		"embeds_failed":     embedded.ChunksFailed,
		"profile_persisted": profiled.Persisted,
		"profile_degraded":  profiled.Degraded,
	})
	return nil
}
