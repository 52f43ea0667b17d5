package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/modules/memory"
	"github.com/soulprintlabs/soulprint-backend/internal/platform/openai"
	"github.com/soulprintlabs/soulprint-backend/internal/repos"
)

type RegenerateProfileDeps struct {
	Log      *logger.Logger
	AI       openai.Client
	Profiles repos.UserProfileRepo
}

type RegenerateProfileInput struct {
	UserID        uuid.UUID
	Conversations []memory.Conversation
	MemoryDoc     string
	Sample        memory.SampleParams
}

type RegenerateProfileOutput struct {
	Sections  *memory.ProfileSections
	Persisted bool
	// Degraded means both attempts produced invalid output; previously
	// persisted sections are left untouched.
	Degraded bool
}

var profileTemperature = 0.4

// RegenerateProfile samples the richest conversations, combines them with the
// memory document, and asks for the five structured profile sections. Invalid
// output gets one retry with an explicit schema nudge; a second failure
// degrades gracefully. On success all five sections plus the combined
// rendering are persisted atomically.
func RegenerateProfile(ctx context.Context, deps RegenerateProfileDeps, in RegenerateProfileInput) (RegenerateProfileOutput, error) {
	out := RegenerateProfileOutput{}
	if deps.Log == nil || deps.AI == nil || deps.Profiles == nil {
		return out, fmt.Errorf("regenerate_profile: missing deps")
	}
	if in.UserID == uuid.Nil {
		return out, fmt.Errorf("regenerate_profile: missing user_id")
	}

	sampled := memory.SampleConversations(in.Conversations, in.Sample)
	formatted := memory.FormatConversationSample(sampled, in.Sample)
	deps.Log.Info("regenerate_profile: sampled conversations",
		"user_id", in.UserID, "candidates", len(in.Conversations), "sampled", len(sampled), "formatted_chars", len(formatted))

	userPrompt := memory.ProfileUserPrompt(formatted, in.MemoryDoc)

	sections, err := requestSections(ctx, deps, userPrompt)
	if err != nil {
		deps.Log.Warn("regenerate_profile: first attempt invalid, retrying with schema nudge",
			"user_id", in.UserID, "error", err)
		sections, err = requestSections(ctx, deps, userPrompt+memory.ProfileRetryNudge)
	}
	if err != nil {
		deps.Log.Warn("regenerate_profile: retry also invalid, keeping previous sections",
			"user_id", in.UserID, "error", err)
		out.Degraded = true
		return out, nil
	}
	out.Sections = sections

	persisted := map[string]datatypes.JSON{
		"soul":     mustJSON(sections.Soul),
		"identity": mustJSON(sections.Identity),
		"user":     mustJSON(sections.User),
		"agents":   mustJSON(sections.Agents),
		"tools":    mustJSON(sections.Tools),
	}
	combined := memory.CombinedMarkdown(sections, in.MemoryDoc)

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := deps.Profiles.ReplaceSections(writeCtx, nil, in.UserID, persisted, combined); err != nil {
		deps.Log.Warn("regenerate_profile: section write failed, previous sections remain",
			"user_id", in.UserID, "error", err)
		return out, nil
	}
	out.Persisted = true
	return out, nil
}

func requestSections(ctx context.Context, deps RegenerateProfileDeps, userPrompt string) (*memory.ProfileSections, error) {
	raw, err := deps.AI.GenerateJSON(ctx,
		memory.ProfileSystemPrompt,
		userPrompt,
		"profile_sections",
		memory.ProfileSchema(),
		openai.Options{Temperature: &profileTemperature},
	)
	if err != nil {
		return nil, err
	}
	return memory.ParseProfileSections(raw)
}

func mustJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}
