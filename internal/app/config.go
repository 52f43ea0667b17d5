package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/utils"
)

type Config struct {
	ServiceName  string
	Environment  string
	Port         string
	JWTSecretKey string
	StorageMode  string // "gcs" or "local"
	Tuning       PipelineTuning
}

// PipelineTuning holds the knobs of the synthesis pipeline. Defaults are the
// production values; a YAML file (PIPELINE_CONFIG_PATH) overrides them, and
// individual env vars override the file.
type PipelineTuning struct {
	ChunkTargetTokens  int `yaml:"chunk_target_tokens"`
	ChunkOverlapTokens int `yaml:"chunk_overlap_tokens"`
	ExtractConcurrency int `yaml:"extract_concurrency"`
	EmbedConcurrency   int `yaml:"embed_concurrency"`
	ReduceBudgetTokens int `yaml:"reduce_budget_tokens"`
	ReduceBatchTokens  int `yaml:"reduce_batch_tokens"`
	ReduceMaxDepth     int `yaml:"reduce_max_depth"`
	ProfileSampleSize  int `yaml:"profile_sample_size"`
}

func defaultTuning() PipelineTuning {
	return PipelineTuning{
		ChunkTargetTokens:  2000,
		ChunkOverlapTokens: 200,
		ExtractConcurrency: 10,
		EmbedConcurrency:   10,
		ReduceBudgetTokens: 200000,
		ReduceBatchTokens:  50000,
		ReduceMaxDepth:     5,
		ProfileSampleSize:  200,
	}
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		ServiceName:  utils.GetEnv("SERVICE_NAME", "soulprint-backend", log),
		Environment:  utils.GetEnv("APP_ENV", "development", log),
		Port:         utils.GetEnv("PORT", "8080", log),
		JWTSecretKey: utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log),
		StorageMode:  utils.GetEnv("STORAGE_MODE", "gcs", log),
		Tuning:       loadTuning(log),
	}
	return cfg
}

func loadTuning(log *logger.Logger) PipelineTuning {
	t := defaultTuning()

	if path := os.Getenv("PIPELINE_CONFIG_PATH"); path != "" {
		if err := loadTuningFile(path, &t); err != nil {
			log.Warn("pipeline tuning file not loaded, using defaults", "path", path, "error", err)
		} else {
			log.Info("pipeline tuning loaded", "path", path)
		}
	}

	// Env overrides outrank the file.
	t.ChunkTargetTokens = utils.GetEnvAsInt("CHUNK_TARGET_TOKENS", t.ChunkTargetTokens, log)
	t.ChunkOverlapTokens = utils.GetEnvAsInt("CHUNK_OVERLAP_TOKENS", t.ChunkOverlapTokens, log)
	t.ExtractConcurrency = utils.GetEnvAsInt("EXTRACT_CONCURRENCY", t.ExtractConcurrency, log)
	t.EmbedConcurrency = utils.GetEnvAsInt("EMBED_CONCURRENCY", t.EmbedConcurrency, log)
	t.ReduceBudgetTokens = utils.GetEnvAsInt("REDUCE_BUDGET_TOKENS", t.ReduceBudgetTokens, log)
	t.ReduceBatchTokens = utils.GetEnvAsInt("REDUCE_BATCH_TOKENS", t.ReduceBatchTokens, log)
	t.ReduceMaxDepth = utils.GetEnvAsInt("REDUCE_MAX_DEPTH", t.ReduceMaxDepth, log)
	t.ProfileSampleSize = utils.GetEnvAsInt("PROFILE_SAMPLE_SIZE", t.ProfileSampleSize, log)
	return t
}

func loadTuningFile(path string, t *PipelineTuning) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, t); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
