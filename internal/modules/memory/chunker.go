package memory

import (
	"strings"
	"time"

	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

// ChunkParams tune the chunker. Zero values pick the defaults.
type ChunkParams struct {
	TargetTokens  int    // per-chunk token budget, default 2000
	OverlapTokens int    // context shared between adjacent chunks, default 200
	Tier          string // tier label stamped on every chunk, default medium
	TurnCharCap   int    // single-turn truncation, default 5000
	RecentWindow  time.Duration // age below which a conversation counts as recent, default 30 days
	Now           time.Time     // reference time for the recency check, default time.Now()
}

func (p ChunkParams) withDefaults() ChunkParams {
	if p.TargetTokens <= 0 {
		p.TargetTokens = 2000
	}
	if p.OverlapTokens <= 0 {
		p.OverlapTokens = 200
	}
	if p.Tier == "" {
		p.Tier = types.ChunkTierMedium
	}
	if p.TurnCharCap <= 0 {
		p.TurnCharCap = 5000
	}
	if p.RecentWindow <= 0 {
		p.RecentWindow = 30 * 24 * time.Hour
	}
	if p.Now.IsZero() {
		p.Now = time.Now()
	}
	return p
}

// ChunkConversations splits every conversation into token-bounded chunks.
// Pure and deterministic: no I/O, same input and params give the same output.
// Chunks never span two conversations; adjacent chunks within a conversation
// share the trailing overlap of their predecessor.
func ChunkConversations(conversations []Conversation, params ChunkParams) []*types.ConversationChunk {
	p := params.withDefaults()
	out := make([]*types.ConversationChunk, 0, len(conversations))
	for _, conv := range conversations {
		out = append(out, chunkConversation(conv, p)...)
	}
	return out
}

func chunkConversation(conv Conversation, p ChunkParams) []*types.ConversationChunk {
	text := renderConversation(conv, p.TurnCharCap)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	recent := false
	if last := conv.LastActivity(); !last.IsZero() {
		recent = p.Now.Sub(last) <= p.RecentWindow
	}

	newChunk := func(content string, index int) *types.ConversationChunk {
		return &types.ConversationChunk{
			ConversationID:    conv.ID,
			ConversationTitle: conv.Title,
			Tier:              p.Tier,
			Content:           content,
			TokenCount:        EstimateTokens(content),
			ChunkIndex:        index,
			IsRecent:          recent,
		}
	}

	if EstimateTokens(text) <= p.TargetTokens {
		ch := newChunk(text, 0)
		ch.TotalChunks = 1
		return []*types.ConversationChunk{ch}
	}

	sentences := splitSentences(text)
	chunks := make([]*types.ConversationChunk, 0, 4)
	var cur strings.Builder
	overlapSeed := ""

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		content := cur.String()
		chunks = append(chunks, newChunk(content, len(chunks)))
		overlapSeed = trailingOverlap(content, overlapSeed, p.OverlapTokens)
		cur.Reset()
		cur.WriteString(overlapSeed)
	}

	for _, sentence := range sentences {
		if cur.Len() > 0 && EstimateTokens(cur.String())+EstimateTokens(sentence) > p.TargetTokens {
			flush()
		}
		cur.WriteString(sentence)
	}
	if strings.TrimSpace(strings.TrimPrefix(cur.String(), overlapSeed)) != "" {
		chunks = append(chunks, newChunk(cur.String(), len(chunks)))
	}

	for _, ch := range chunks {
		ch.TotalChunks = len(chunks)
	}
	return chunks
}

// renderConversation flattens a conversation to labeled plain text. System
// turns are skipped; a single turn is truncated at the cap to bound memory.
func renderConversation(conv Conversation, turnCharCap int) string {
	var b strings.Builder
	for _, t := range conv.Turns {
		if strings.EqualFold(t.Role, "system") {
			continue
		}
		text := t.Text
		if len(text) > turnCharCap {
			text = text[:turnCharCap]
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

// splitSentences cuts text after sentence boundaries (". ", "? ", "! ",
// newline). Concatenating the returned pieces reproduces the input exactly.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' {
			out = append(out, text[start:i+1])
			start = i + 1
			continue
		}
		if (c == '.' || c == '?' || c == '!') && i+1 < len(text) && text[i+1] == ' ' {
			out = append(out, text[start:i+2])
			start = i + 2
			i++
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// trailingOverlap returns the suffix of content worth ~overlapTokens, cut at
// sentence boundaries, to seed the next chunk. prevSeed is stripped first so
// overlap never compounds across consecutive chunks.
func trailingOverlap(content, prevSeed string, overlapTokens int) string {
	body := strings.TrimPrefix(content, prevSeed)
	sentences := splitSentences(body)
	var picked []string
	total := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		t := EstimateTokens(sentences[i])
		if total+t > overlapTokens && len(picked) > 0 {
			break
		}
		picked = append([]string{sentences[i]}, picked...)
		total += t
		if total >= overlapTokens {
			break
		}
	}
	return strings.Join(picked, "")
}
