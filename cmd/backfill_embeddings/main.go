package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/soulprintlabs/soulprint-backend/internal/db"
	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/modules/memory/steps"
	"github.com/soulprintlabs/soulprint-backend/internal/platform/openai"
	"github.com/soulprintlabs/soulprint-backend/internal/repos"
	"github.com/soulprintlabs/soulprint-backend/internal/services"
)

// Backfills embeddings for chunks whose embed call failed during a full pass.
// Safe to re-run; it only touches chunks with a null embedding.
func main() {
	userFlag := flag.String("user", "", "only backfill chunks for this user id")
	batchFlag := flag.Int("batch", 200, "chunks per page")
	flag.Parse()

	log, err := logger.New("production")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var userID uuid.UUID
	if *userFlag != "" {
		userID, err = uuid.Parse(*userFlag)
		if err != nil {
			log.Fatal("Invalid -user flag", "error", err)
		}
	}

	dbService, err := db.New(log)
	if err != nil {
		log.Fatal("Database init failed", "error", err)
	}
	gdb := dbService.DB()

	chunkRepo := repos.NewConversationChunkRepo(gdb, log)
	callLogRepo := repos.NewAICallLogRepo(gdb, log)
	aiClient, err := openai.NewClient(log, services.NewAICallRecorder(log, callLogRepo))
	if err != nil {
		log.Fatal("OpenAI client init failed", "error", err)
	}

	ctx := context.Background()
	total, embedded, failed := 0, 0, 0
	for {
		// Embedded chunks drop out of the null-embedding query, so the page
		// offset stays at zero.
		chunks, err := chunkRepo.GetMissingEmbeddings(ctx, nil, userID, *batchFlag, 0)
		if err != nil {
			log.Fatal("Query for missing embeddings failed", "error", err)
		}
		if len(chunks) == 0 {
			break
		}
		out, err := steps.EmbedChunks(ctx, steps.EmbedChunksDeps{
			Log:    log,
			AI:     aiClient,
			Chunks: chunkRepo,
		}, steps.EmbedChunksInput{Chunks: chunks})
		if err != nil {
			log.Fatal("Embed step failed", "error", err)
		}
		total += out.ChunksTotal
		embedded += out.ChunksEmbedded
		failed += out.ChunksFailed
		// Everything in this page failed; stop instead of spinning on it.
		if out.ChunksEmbedded == 0 {
			break
		}
	}

	log.Info("Backfill finished", "total", total, "embedded", embedded, "failed", failed)
}
