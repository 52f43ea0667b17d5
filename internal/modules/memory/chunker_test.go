package memory

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

func turnsOf(role string, texts ...string) []Turn {
	out := make([]Turn, 0, len(texts))
	for _, t := range texts {
		out = append(out, Turn{Role: role, Text: t})
	}
	return out
}

func TestChunkConversations_SmallConversationIsOneChunk(t *testing.T) {
	conv := Conversation{
		ID:    "c1",
		Title: "Small",
		Turns: []Turn{
			{Role: "user", Text: "Hello there."},
			{Role: "assistant", Text: "Hi. How can I help?"},
		},
	}
	chunks := ChunkConversations([]Conversation{conv}, ChunkParams{})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	ch := chunks[0]
	if ch.ConversationID != "c1" || ch.ConversationTitle != "Small" {
		t.Errorf("conversation identity not stamped: %+v", ch)
	}
	if ch.ChunkIndex != 0 || ch.TotalChunks != 1 {
		t.Errorf("expected index 0 of 1, got %d of %d", ch.ChunkIndex, ch.TotalChunks)
	}
	if ch.Tier != types.ChunkTierMedium {
		t.Errorf("expected default tier %q, got %q", types.ChunkTierMedium, ch.Tier)
	}
	want := "user: Hello there.\nassistant: Hi. How can I help?\n"
	if ch.Content != want {
		t.Errorf("content mismatch:\n got %q\nwant %q", ch.Content, want)
	}
	if ch.TokenCount != EstimateTokens(want) {
		t.Errorf("token count %d, want %d", ch.TokenCount, EstimateTokens(want))
	}
}

func TestChunkConversations_SplitsLongConversationWithOverlap(t *testing.T) {
	var texts []string
	for i := 0; i < 40; i++ {
		texts = append(texts, fmt.Sprintf("This is distinct sentence number %04d about topic %04d.", i, i))
	}
	conv := Conversation{ID: "c1", Title: "Long", Turns: turnsOf("user", texts...)}
	params := ChunkParams{TargetTokens: 60, OverlapTokens: 15}
	chunks := ChunkConversations([]Conversation{conv}, params)
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, ch.ChunkIndex)
		}
		if ch.TotalChunks != len(chunks) {
			t.Errorf("chunk %d total %d, want %d", i, ch.TotalChunks, len(chunks))
		}
		if ch.ConversationID != "c1" {
			t.Errorf("chunk %d conversation %q", i, ch.ConversationID)
		}
	}

	// Adjacent chunks share a non-empty overlap: some suffix of each chunk is
	// the prefix of the next.
	overlap := func(prev, next string) int {
		max := len(prev)
		if len(next) < max {
			max = len(next)
		}
		for k := max; k > 0; k-- {
			if strings.HasSuffix(prev, next[:k]) {
				return k
			}
		}
		return 0
	}
	full := chunks[0].Content
	for i := 1; i < len(chunks); i++ {
		k := overlap(chunks[i-1].Content, chunks[i].Content)
		if k == 0 {
			t.Fatalf("chunks %d and %d share no overlap", i-1, i)
		}
		full += chunks[i].Content[k:]
	}

	// Stripping the overlaps reconstructs the rendered conversation exactly.
	var want strings.Builder
	for _, txt := range texts {
		want.WriteString("user: ")
		want.WriteString(txt)
		want.WriteString("\n")
	}
	if full != want.String() {
		t.Errorf("reconstruction mismatch:\n got %d chars\nwant %d chars", len(full), want.Len())
	}
}

func TestChunkConversations_SkipsSystemAndEmptyTurns(t *testing.T) {
	conv := Conversation{
		ID: "c1",
		Turns: []Turn{
			{Role: "system", Text: "You are a helpful assistant."},
			{Role: "user", Text: "   "},
		},
	}
	if chunks := ChunkConversations([]Conversation{conv}, ChunkParams{}); len(chunks) != 0 {
		t.Fatalf("expected no chunks for system-only conversation, got %d", len(chunks))
	}
}

func TestChunkConversations_TruncatesOversizedTurn(t *testing.T) {
	conv := Conversation{
		ID:    "c1",
		Turns: []Turn{{Role: "user", Text: strings.Repeat("x", 9000)}},
	}
	chunks := ChunkConversations([]Conversation{conv}, ChunkParams{TurnCharCap: 100})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	want := "user: " + strings.Repeat("x", 100) + "\n"
	if chunks[0].Content != want {
		t.Errorf("turn not truncated at cap: got %d chars", len(chunks[0].Content))
	}
}

func TestChunkConversations_RecentFlag(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := Conversation{
		ID:    "recent",
		Turns: []Turn{{Role: "user", Text: "Hello.", Timestamp: now.Add(-48 * time.Hour)}},
	}
	old := Conversation{
		ID:    "old",
		Turns: []Turn{{Role: "user", Text: "Hello.", Timestamp: now.Add(-90 * 24 * time.Hour)}},
	}
	chunks := ChunkConversations([]Conversation{recent, old}, ChunkParams{Now: now})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		wantRecent := ch.ConversationID == "recent"
		if ch.IsRecent != wantRecent {
			t.Errorf("conversation %q: is_recent = %v, want %v", ch.ConversationID, ch.IsRecent, wantRecent)
		}
	}
}

func TestChunkConversations_NeverSpansConversations(t *testing.T) {
	mk := func(id string) Conversation {
		var texts []string
		for i := 0; i < 20; i++ {
			texts = append(texts, fmt.Sprintf("Sentence %d in %s goes here.", i, id))
		}
		return Conversation{ID: id, Turns: turnsOf("user", texts...)}
	}
	chunks := ChunkConversations([]Conversation{mk("a"), mk("b")}, ChunkParams{TargetTokens: 40, OverlapTokens: 10})
	byConv := map[string]int{}
	for _, ch := range chunks {
		byConv[ch.ConversationID]++
		if strings.Contains(ch.Content, "in a") && strings.Contains(ch.Content, "in b") {
			t.Fatalf("chunk mixes conversations: %q", ch.Content)
		}
	}
	if byConv["a"] < 2 || byConv["b"] < 2 {
		t.Fatalf("expected both conversations split, got %v", byConv)
	}
}

func TestSplitSentences_ReconstructsInput(t *testing.T) {
	cases := []string{
		"",
		"no terminator at all",
		"One. Two? Three! Four",
		"line one\nline two\n",
		"Ends mid. word.within token. Trailing space. ",
		"A!B?C.D\n\nE. ",
	}
	for _, in := range cases {
		parts := splitSentences(in)
		if got := strings.Join(parts, ""); got != in {
			t.Errorf("splitSentences(%q) does not reconstruct: %q", in, got)
		}
	}
}
