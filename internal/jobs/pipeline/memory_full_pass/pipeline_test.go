package memory_full_pass_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/soulprintlabs/soulprint-backend/internal/jobs/pipeline/memory_full_pass"
	"github.com/soulprintlabs/soulprint-backend/internal/jobs/runtime"
	"github.com/soulprintlabs/soulprint-backend/internal/modules/memory"
	"github.com/soulprintlabs/soulprint-backend/internal/platform/openai"
	"github.com/soulprintlabs/soulprint-backend/internal/repos"
	"github.com/soulprintlabs/soulprint-backend/internal/repos/testutil"
	"github.com/soulprintlabs/soulprint-backend/internal/services"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

type scriptedAI struct{}

func (scriptedAI) GenerateText(ctx context.Context, system, user string, opts openai.Options) (string, error) {
	return "## Preferences\n\nLikes coffee.\n", nil
}

func (scriptedAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any, opts openai.Options) (json.RawMessage, error) {
	switch schemaName {
	case "fact_bundle":
		return json.RawMessage(`{"preferences": ["likes coffee"]}`), nil
	case "profile_sections":
		return json.RawMessage(`{
			"soul": {"communication_style": "direct", "personality_traits": [], "tone_preferences": "", "boundaries": [], "humor_style": "", "formality_level": "", "emotional_patterns": ""},
			"identity": {"name": "Sam", "role": "", "background": "", "goals": [], "expertise_areas": [], "current_focus": ""},
			"user": {"interests": [], "values": [], "context_notes": "", "relationships": [], "routines": []},
			"agents": {"interaction_history": "", "preferred_workflows": [], "delegation_style": "", "trust_level": ""},
			"tools": {"frequently_used": [], "integrations": [], "workflows": [], "automation_preferences": ""}
		}`), nil
	default:
		return json.RawMessage(`{"entries": []}`), nil
	}
}

func (scriptedAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type scriptedExports struct {
	conversations []memory.Conversation
	err           error
}

func (s scriptedExports) Download(ctx context.Context, ref string) ([]memory.Conversation, error) {
	return s.conversations, s.err
}

func fullPassFixture(t *testing.T, exports services.ExportSource, payload string) (*runtime.Context, *memory_full_pass.Pipeline, repos.SynthesisJobRepo, repos.UserProfileRepo, repos.ConversationChunkRepo) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	jobRepo := repos.NewSynthesisJobRepo(db, log)
	chunkRepo := repos.NewConversationChunkRepo(db, log)
	profileRepo := repos.NewUserProfileRepo(db, log)

	user := testutil.SeedUser(t, db, "pipeline@example.com")
	job := testutil.SeedJob(t, db, user.ID, types.JobStatusProcessing, time.Now())
	if payload != "" {
		job.Payload = datatypes.JSON([]byte(payload))
		if err := jobRepo.UpdateFields(context.Background(), nil, job.ID, map[string]interface{}{
			"payload": job.Payload,
		}); err != nil {
			t.Fatalf("setup payload: %v", err)
		}
	}

	jc := runtime.NewContext(context.Background(), db, job, jobRepo, services.NewNopJobNotifier())
	p := memory_full_pass.New(db, log, scriptedAI{}, exports, chunkRepo, profileRepo, memory_full_pass.Tuning{})
	return jc, p, jobRepo, profileRepo, chunkRepo
}

func exportedConversations() []memory.Conversation {
	return []memory.Conversation{{
		ID:    "c1",
		Title: "Coffee",
		Turns: []memory.Turn{
			{Role: "user", Text: "I really like coffee.", Timestamp: time.Now()},
			{Role: "assistant", Text: "Noted."},
			{Role: "user", Text: "Every morning."},
			{Role: "assistant", Text: "Understood."},
		},
	}}
}

func TestPipeline_FullPassCompletes(t *testing.T) {
	exports := scriptedExports{conversations: exportedConversations()}
	jc, p, jobRepo, profileRepo, chunkRepo := fullPassFixture(t, exports, `{"export_ref": "exports/u1.json"}`)

	if err := p.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}

	job, err := jobRepo.GetByID(context.Background(), nil, jc.Job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != types.JobStatusComplete || job.Progress != 100 || job.Stage != "done" {
		t.Fatalf("job not completed: status=%q stage=%q progress=%d error=%q", job.Status, job.Stage, job.Progress, job.Error)
	}

	var result map[string]any
	if err := json.Unmarshal(job.Result, &result); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if result["conversations"] != float64(1) || result["chunks_persisted"] != true {
		t.Errorf("result: %v", result)
	}
	if result["memory_degraded"] != false || result["profile_persisted"] != true {
		t.Errorf("degradation flags: %v", result)
	}

	chunks, _ := chunkRepo.GetByUserID(context.Background(), nil, job.OwnerUserID)
	if len(chunks) == 0 {
		t.Fatal("no chunks persisted")
	}
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			t.Errorf("chunk %s not embedded", ch.ID)
		}
	}

	profile, _ := profileRepo.GetByUserID(context.Background(), nil, job.OwnerUserID)
	if profile == nil {
		t.Fatal("no profile row")
	}
	if !strings.Contains(profile.Memory, "Likes coffee.") {
		t.Errorf("memory document: %q", profile.Memory)
	}
	if len(profile.Soul) == 0 || len(profile.Tools) == 0 || profile.CombinedText == "" {
		t.Errorf("profile sections incomplete: %+v", profile)
	}
}

func TestPipeline_DownloadFailureFailsJob(t *testing.T) {
	exports := scriptedExports{err: errors.New("object not found")}
	jc, p, jobRepo, _, _ := fullPassFixture(t, exports, `{"export_ref": "exports/missing.json"}`)

	if err := p.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}
	job, _ := jobRepo.GetByID(context.Background(), nil, jc.Job.ID)
	if job.Status != types.JobStatusFailed || job.Stage != "download" {
		t.Errorf("status=%q stage=%q", job.Status, job.Stage)
	}
	if !strings.Contains(job.Error, "object not found") {
		t.Errorf("error = %q", job.Error)
	}
}

func TestPipeline_MissingExportRefFailsValidation(t *testing.T) {
	exports := scriptedExports{conversations: exportedConversations()}
	jc, p, jobRepo, _, _ := fullPassFixture(t, exports, "")

	if err := p.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}
	job, _ := jobRepo.GetByID(context.Background(), nil, jc.Job.ID)
	if job.Status != types.JobStatusFailed || job.Stage != "validate" {
		t.Errorf("status=%q stage=%q", job.Status, job.Stage)
	}
}

func TestPipeline_EmptyExportFailsJob(t *testing.T) {
	exports := scriptedExports{conversations: nil}
	jc, p, jobRepo, _, _ := fullPassFixture(t, exports, `{"export_ref": "exports/empty.json"}`)

	if err := p.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}
	job, _ := jobRepo.GetByID(context.Background(), nil, jc.Job.ID)
	if job.Status != types.JobStatusFailed || job.Stage != "download" {
		t.Errorf("status=%q stage=%q", job.Status, job.Stage)
	}
}
