package memory

import "fmt"

const ExtractionSystemPrompt = `You are a memory extraction agent. You read a slice of a user's chat history and pull out durable facts about the user. Only record facts that would still matter weeks later; ignore one-off conversational details. Respond with JSON only.`

func ExtractionUserPrompt(chunkText string) string {
	return fmt.Sprintf(`Extract durable facts about the user from this conversation excerpt.

Categories:
- preferences: stable likes, dislikes, habits and working styles
- projects: things the user is building or working toward (name + description)
- dates: events with dates the user cares about (event + date)
- beliefs: values and convictions the user expressed
- decisions: choices the user made, with the context around them

Include every category, empty if nothing qualifies.

EXCERPT:
%s`, chunkText)
}

// FactBundleSchema is the structured-output schema for a full extraction.
func FactBundleSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"preferences", "projects", "dates", "beliefs", "decisions"},
		"properties": map[string]any{
			"preferences": stringArraySchema(),
			"projects":    objectArraySchema(map[string]any{"name": stringSchema(), "description": stringSchema()}, []string{"name", "description"}),
			"dates":       objectArraySchema(map[string]any{"event": stringSchema(), "date": stringSchema()}, []string{"event", "date"}),
			"beliefs":     stringArraySchema(),
			"decisions":   objectArraySchema(map[string]any{"decision": stringSchema(), "context": stringSchema()}, []string{"decision", "context"}),
		},
	}
}

const ReduceSystemPrompt = `You consolidate lists of extracted user facts. Merge duplicates and near-duplicates, combine overlapping entries, keep every distinct fact. Never invent new facts. Respond with JSON only.`

func ReduceUserPrompt(category string, batchJSON string) string {
	return fmt.Sprintf(`Consolidate this batch of %q entries into a smaller list that preserves every distinct fact.

ENTRIES:
%s`, category, batchJSON)
}

// ReduceBatchSchema wraps a category's item schema in an {entries: [...]}
// envelope for batch consolidation calls.
func ReduceBatchSchema(itemSchema map[string]any) map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"entries"},
		"properties": map[string]any{
			"entries": map[string]any{"type": "array", "items": itemSchema},
		},
	}
}

func stringSchema() map[string]any {
	return map[string]any{"type": "string"}
}

func stringArraySchema() map[string]any {
	return map[string]any{"type": "array", "items": stringSchema()}
}

func objectArraySchema(props map[string]any, required []string) map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             required,
			"properties":           props,
		},
	}
}
