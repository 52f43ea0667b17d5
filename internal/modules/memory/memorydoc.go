package memory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The five fixed section headings of the memory document.
var MemorySections = []string{
	"Preferences",
	"Projects",
	"Important Dates",
	"Beliefs & Values",
	"Decisions & Context",
}

const SynthesisSystemPrompt = `You write a personal memory document from structured facts about a user. Write warm, concrete prose an assistant can load before future conversations. Stay faithful to the facts given; do not invent.`

func SynthesisUserPrompt(bundle FactBundle) string {
	raw, _ := json.MarshalIndent(bundle, "", "  ")
	var b strings.Builder
	b.WriteString("Write a markdown memory document with exactly these sections:\n")
	for _, s := range MemorySections {
		fmt.Fprintf(&b, "## %s\n", s)
	}
	b.WriteString("\nFACTS:\n")
	b.Write(raw)
	return b.String()
}

// FallbackMemoryDocument is the deterministic template used when memory
// synthesis fails: the five headings with per-category fact counts, so the
// checkpoint is never empty.
func FallbackMemoryDocument(bundle FactBundle) string {
	counts := []int{
		len(bundle.Preferences),
		len(bundle.Projects),
		len(bundle.Dates),
		len(bundle.Beliefs),
		len(bundle.Decisions),
	}
	var b strings.Builder
	for i, s := range MemorySections {
		fmt.Fprintf(&b, "## %s\n\n%d facts on record.\n\n", s, counts[i])
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
