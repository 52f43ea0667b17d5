package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/modules/memory"
	"github.com/soulprintlabs/soulprint-backend/internal/platform/openai"
	"github.com/soulprintlabs/soulprint-backend/internal/repos"
)

type SynthesizeMemoryDeps struct {
	Log      *logger.Logger
	AI       openai.Client
	Profiles repos.UserProfileRepo
}

type SynthesizeMemoryInput struct {
	UserID uuid.UUID
	Bundle memory.FactBundle
}

type SynthesizeMemoryOutput struct {
	Memory    string
	Degraded  bool // the deterministic fallback was used
	Persisted bool
}

var synthesisTemperature = 0.7

// SynthesizeMemory turns the reduced bundle into the memory document and
// checkpoints it immediately. Neither an LLM failure (fallback template) nor
// a persistence failure blocks the pipeline.
func SynthesizeMemory(ctx context.Context, deps SynthesizeMemoryDeps, in SynthesizeMemoryInput) (SynthesizeMemoryOutput, error) {
	out := SynthesizeMemoryOutput{}
	if deps.Log == nil || deps.AI == nil || deps.Profiles == nil {
		return out, fmt.Errorf("synthesize_memory: missing deps")
	}
	if in.UserID == uuid.Nil {
		return out, fmt.Errorf("synthesize_memory: missing user_id")
	}

	doc, err := deps.AI.GenerateText(ctx,
		memory.SynthesisSystemPrompt,
		memory.SynthesisUserPrompt(in.Bundle),
		openai.Options{Temperature: &synthesisTemperature},
	)
	if err != nil {
		deps.Log.Warn("synthesize_memory: synthesis call failed, using fallback template", "user_id", in.UserID, "error", err)
		doc = memory.FallbackMemoryDocument(in.Bundle)
		out.Degraded = true
	}
	out.Memory = doc

	now := time.Now()
	if err := deps.Profiles.Patch(ctx, nil, in.UserID, map[string]interface{}{
		"memory":            doc,
		"memory_updated_at": now,
	}); err != nil {
		deps.Log.Warn("synthesize_memory: memory checkpoint write failed, continuing", "user_id", in.UserID, "error", err)
		return out, nil
	}
	out.Persisted = true
	return out, nil
}
