package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/modules/memory"
	"github.com/soulprintlabs/soulprint-backend/internal/platform/openai"
)

type ReduceFactsDeps struct {
	Log *logger.Logger
	AI  openai.Client
}

type ReduceFactsInput struct {
	Bundle       memory.FactBundle
	BudgetTokens int // default 200000
	BatchTokens  int // default 50000
	MaxDepth     int // default 5
	Concurrency  int // default 10
}

type ReduceFactsOutput struct {
	Bundle        memory.FactBundle
	Passes        int
	BatchesFailed int
}

var reduceTemperature = 0.2

// ReduceFacts shrinks an oversized bundle to fit the token budget. Each pass
// splits every category into ~BatchTokens batches, consolidates each batch
// with one LLM call (parallel, fault-isolated: a failing batch keeps its
// input), and loops on the smaller bundle. The loop is bounded by MaxDepth;
// on exhaustion the best-effort bundle is returned rather than an error.
func ReduceFacts(ctx context.Context, deps ReduceFactsDeps, in ReduceFactsInput) (ReduceFactsOutput, error) {
	out := ReduceFactsOutput{Bundle: in.Bundle.Normalize()}
	if deps.Log == nil || deps.AI == nil {
		return out, fmt.Errorf("reduce_facts: missing deps")
	}
	budget := in.BudgetTokens
	if budget <= 0 {
		budget = 200000
	}
	batchTokens := in.BatchTokens
	if batchTokens <= 0 {
		batchTokens = 50000
	}
	maxDepth := in.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 5
	}
	maxConc := in.Concurrency
	if maxConc < 1 {
		maxConc = 10
	}

	var failed int32
	for depth := 0; depth < maxDepth; depth++ {
		size := out.Bundle.EstimateTokens()
		if size <= budget {
			break
		}
		deps.Log.Info("reduce_facts: bundle over budget, consolidating",
			"pass", depth+1, "estimated_tokens", size, "budget", budget)

		next := memory.FactBundle{}
		next.Preferences = reduceCategory(ctx, deps, "preferences", stringItemSchema(), out.Bundle.Preferences, batchTokens, maxConc, &failed)
		next.Projects = reduceCategory(ctx, deps, "projects", projectItemSchema(), out.Bundle.Projects, batchTokens, maxConc, &failed)
		next.Dates = reduceCategory(ctx, deps, "dates", dateItemSchema(), out.Bundle.Dates, batchTokens, maxConc, &failed)
		next.Beliefs = reduceCategory(ctx, deps, "beliefs", stringItemSchema(), out.Bundle.Beliefs, batchTokens, maxConc, &failed)
		next.Decisions = reduceCategory(ctx, deps, "decisions", decisionItemSchema(), out.Bundle.Decisions, batchTokens, maxConc, &failed)
		out.Bundle = next.Normalize()
		out.Passes = depth + 1
	}

	if final := out.Bundle.EstimateTokens(); final > budget {
		deps.Log.Warn("reduce_facts: depth exhausted, returning best-effort bundle",
			"passes", out.Passes, "estimated_tokens", final, "budget", budget)
	}
	out.BatchesFailed = int(failed)
	return out, nil
}

// reduceCategory consolidates one category's entries in parallel batches.
// A batch whose call fails, or whose response would empty a non-empty batch,
// falls back to its input unchanged.
func reduceCategory[T any](ctx context.Context, deps ReduceFactsDeps, category string, itemSchema map[string]any, entries []T, batchTokens, maxConc int, failed *int32) []T {
	if len(entries) == 0 {
		return entries
	}
	batches := batchByTokens(entries, batchTokens)
	results := make([][]T, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConc)
	for bi, batch := range batches {
		bi, batch := bi, batch
		g.Go(func() error {
			batchJSON, err := json.Marshal(batch)
			if err != nil {
				results[bi] = batch
				return nil
			}
			raw, err := deps.AI.GenerateJSON(gctx,
				memory.ReduceSystemPrompt,
				memory.ReduceUserPrompt(category, string(batchJSON)),
				"consolidated_"+category,
				memory.ReduceBatchSchema(itemSchema),
				openai.Options{Temperature: &reduceTemperature},
			)
			if err != nil {
				deps.Log.Warn("reduce_facts: batch consolidation failed, keeping batch unchanged",
					"category", category, "batch", bi, "error", err)
				atomic.AddInt32(failed, 1)
				results[bi] = batch
				return nil
			}
			var envelope struct {
				Entries []T `json:"entries"`
			}
			if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Entries) == 0 {
				deps.Log.Warn("reduce_facts: unusable batch consolidation output, keeping batch unchanged",
					"category", category, "batch", bi, "error", err)
				atomic.AddInt32(failed, 1)
				results[bi] = batch
				return nil
			}
			results[bi] = envelope.Entries
			return nil
		})
	}
	_ = g.Wait()

	out := make([]T, 0, len(entries))
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func batchByTokens[T any](entries []T, batchTokens int) [][]T {
	var batches [][]T
	var cur []T
	curTokens := 0
	for _, e := range entries {
		raw, _ := json.Marshal(e)
		t := memory.EstimateTokens(string(raw))
		if len(cur) > 0 && curTokens+t > batchTokens {
			batches = append(batches, cur)
			cur = nil
			curTokens = 0
		}
		cur = append(cur, e)
		curTokens += t
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

func stringItemSchema() map[string]any {
	return map[string]any{"type": "string"}
}

func projectItemSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"name", "description"},
		"properties": map[string]any{
			"name":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
		},
	}
}

func dateItemSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"event", "date"},
		"properties": map[string]any{
			"event": map[string]any{"type": "string"},
			"date":  map[string]any{"type": "string"},
		},
	}
}

func decisionItemSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"decision", "context"},
		"properties": map[string]any{
			"decision": map[string]any{"type": "string"},
			"context":  map[string]any{"type": "string"},
		},
	}
}
