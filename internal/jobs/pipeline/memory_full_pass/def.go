package memory_full_pass

import (
	"gorm.io/gorm"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/platform/openai"
	"github.com/soulprintlabs/soulprint-backend/internal/repos"
	"github.com/soulprintlabs/soulprint-backend/internal/services"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

// Tuning carries the pipeline knobs from config. Zero values fall back to
// each step's default.
type Tuning struct {
	ChunkTargetTokens  int
	ChunkOverlapTokens int
	ExtractConcurrency int
	EmbedConcurrency   int
	ReduceBudgetTokens int
	ReduceBatchTokens  int
	ReduceMaxDepth     int
	ProfileSampleSize  int
}

type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	ai       openai.Client
	exports  services.ExportSource
	chunks   repos.ConversationChunkRepo
	profiles repos.UserProfileRepo
	tuning   Tuning
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	ai openai.Client,
	exports services.ExportSource,
	chunks repos.ConversationChunkRepo,
	profiles repos.UserProfileRepo,
	tuning Tuning,
) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", types.JobTypeMemoryFullPass),
		ai:       ai,
		exports:  exports,
		chunks:   chunks,
		profiles: profiles,
		tuning:   tuning,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeMemoryFullPass }
