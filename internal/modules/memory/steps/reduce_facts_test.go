package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/modules/memory"
)

func TestReduceFacts_UnderBudgetIsANoop(t *testing.T) {
	ai := &fakeAI{}
	in := memory.FactBundle{Preferences: []string{"small"}}.Normalize()
	out, err := ReduceFacts(context.Background(), ReduceFactsDeps{Log: logger.NewNop(), AI: ai}, ReduceFactsInput{
		Bundle:       in,
		BudgetTokens: 100000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Passes != 0 {
		t.Errorf("passes = %d, want 0", out.Passes)
	}
	if ai.jsonCalls != 0 {
		t.Errorf("expected no LLM calls, got %d", ai.jsonCalls)
	}
	if diff := cmp.Diff(in, out.Bundle); diff != "" {
		t.Errorf("bundle changed (-in +out):\n%s", diff)
	}
}

func TestReduceFacts_ConsolidatesUntilUnderBudget(t *testing.T) {
	// Every consolidation call collapses the batch to one entry, so one pass
	// brings the bundle under any reasonable budget.
	ai := &fakeAI{
		generateJSONFn: func(system, user, schemaName string) (json.RawMessage, error) {
			if strings.HasPrefix(schemaName, "consolidated_preferences") {
				return json.RawMessage(`{"entries": ["merged preference"]}`), nil
			}
			return json.RawMessage(`{"entries": [{"name": "merged", "description": ""}]}`), nil
		},
	}
	var prefs []string
	for i := 0; i < 200; i++ {
		prefs = append(prefs, fmt.Sprintf("preference number %04d with some padding text", i))
	}
	in := memory.FactBundle{Preferences: prefs}.Normalize()
	out, err := ReduceFacts(context.Background(), ReduceFactsDeps{Log: logger.NewNop(), AI: ai}, ReduceFactsInput{
		Bundle:       in,
		BudgetTokens: 500,
		BatchTokens:  300,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Passes < 1 {
		t.Fatalf("expected at least one pass, got %d", out.Passes)
	}
	if out.BatchesFailed != 0 {
		t.Errorf("batches failed = %d", out.BatchesFailed)
	}
	if got := out.Bundle.EstimateTokens(); got > 500 {
		t.Errorf("bundle still over budget: %d tokens", got)
	}
	if len(out.Bundle.Preferences) == 0 || out.Bundle.Preferences[0] != "merged preference" {
		t.Errorf("preferences not consolidated: %v", out.Bundle.Preferences)
	}
}

func TestReduceFacts_FailedBatchKeepsItsInput(t *testing.T) {
	ai := &fakeAI{
		generateJSONFn: func(system, user, schemaName string) (json.RawMessage, error) {
			return nil, errors.New("provider down")
		},
	}
	var prefs []string
	for i := 0; i < 50; i++ {
		prefs = append(prefs, fmt.Sprintf("preference %04d", i))
	}
	in := memory.FactBundle{Preferences: prefs}.Normalize()
	out, err := ReduceFacts(context.Background(), ReduceFactsDeps{Log: logger.NewNop(), AI: ai}, ReduceFactsInput{
		Bundle:       in,
		BudgetTokens: 10,
		MaxDepth:     2,
	})
	if err != nil {
		t.Fatalf("best-effort path must not error: %v", err)
	}
	if out.Passes != 2 {
		t.Errorf("passes = %d, want the full depth of 2", out.Passes)
	}
	if out.BatchesFailed == 0 {
		t.Error("expected failed batches to be counted")
	}
	if diff := cmp.Diff(in, out.Bundle); diff != "" {
		t.Errorf("failing batches must keep their input (-in +out):\n%s", diff)
	}
}

func TestReduceFacts_EmptyConsolidationKeepsBatch(t *testing.T) {
	ai := &fakeAI{
		generateJSONFn: func(system, user, schemaName string) (json.RawMessage, error) {
			return json.RawMessage(`{"entries": []}`), nil
		},
	}
	in := memory.FactBundle{Beliefs: []string{"belief one", "belief two"}}.Normalize()
	out, err := ReduceFacts(context.Background(), ReduceFactsDeps{Log: logger.NewNop(), AI: ai}, ReduceFactsInput{
		Bundle:       in,
		BudgetTokens: 1,
		MaxDepth:     1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Bundle.Beliefs) != 2 {
		t.Errorf("beliefs emptied by unusable output: %v", out.Bundle.Beliefs)
	}
	if out.BatchesFailed == 0 {
		t.Error("unusable output should count as a failed batch")
	}
}
