package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// The five profile section names, in render order.
var ProfileSectionNames = []string{"soul", "identity", "user", "agents", "tools"}

type SoulSection struct {
	CommunicationStyle string   `json:"communication_style"`
	PersonalityTraits  []string `json:"personality_traits"`
	TonePreferences    string   `json:"tone_preferences"`
	Boundaries         []string `json:"boundaries"`
	HumorStyle         string   `json:"humor_style"`
	FormalityLevel     string   `json:"formality_level"`
	EmotionalPatterns  string   `json:"emotional_patterns"`
}

type IdentitySection struct {
	Name           string   `json:"name"`
	Role           string   `json:"role"`
	Background     string   `json:"background"`
	Goals          []string `json:"goals"`
	ExpertiseAreas []string `json:"expertise_areas"`
	CurrentFocus   string   `json:"current_focus"`
}

type UserSection struct {
	Interests     []string `json:"interests"`
	Values        []string `json:"values"`
	ContextNotes  string   `json:"context_notes"`
	Relationships []string `json:"relationships"`
	Routines      []string `json:"routines"`
}

type AgentsSection struct {
	InteractionHistory string   `json:"interaction_history"`
	PreferredWorkflows []string `json:"preferred_workflows"`
	DelegationStyle    string   `json:"delegation_style"`
	TrustLevel         string   `json:"trust_level"`
}

type ToolsSection struct {
	FrequentlyUsed        []string `json:"frequently_used"`
	Integrations          []string `json:"integrations"`
	Workflows             []string `json:"workflows"`
	AutomationPreferences string   `json:"automation_preferences"`
}

// ProfileSections is the fixed-schema output of profile regeneration. The
// five sections are only ever persisted together.
type ProfileSections struct {
	Soul     SoulSection     `json:"soul"`
	Identity IdentitySection `json:"identity"`
	User     UserSection     `json:"user"`
	Agents   AgentsSection   `json:"agents"`
	Tools    ToolsSection    `json:"tools"`
}

// SectionValidationError reports which required section keys were missing or
// malformed in LLM output.
type SectionValidationError struct {
	Missing []string
	Reason  string
}

func (e *SectionValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("profile sections invalid: missing %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("profile sections invalid: %s", e.Reason)
}

// ParseProfileSections validates LLM output against the fixed schema: all
// five top-level sections must be present as objects. Malformed output is
// rejected whole — never partially merged.
func ParseProfileSections(raw json.RawMessage) (*ProfileSections, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, &SectionValidationError{Reason: err.Error()}
	}
	var missing []string
	for _, name := range ProfileSectionNames {
		v, ok := top[name]
		if !ok || len(v) == 0 || v[0] != '{' {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &SectionValidationError{Missing: missing}
	}
	var sections ProfileSections
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, &SectionValidationError{Reason: err.Error()}
	}
	return &sections, nil
}

// SampleParams tune conversation sampling for profile regeneration.
type SampleParams struct {
	Target      int       // number of conversations to keep, default 200
	MinTurns    int       // conversations below this are excluded, default 4
	Now         time.Time // reference time for the recency bonus
	PerTurnCap  int       // per-turn char truncation when formatting, default 2000
	TotalCap    int       // total formatted char cap, default 600000
}

func (p SampleParams) withDefaults() SampleParams {
	if p.Target <= 0 {
		p.Target = 200
	}
	if p.MinTurns <= 0 {
		p.MinTurns = 4
	}
	if p.Now.IsZero() {
		p.Now = time.Now()
	}
	if p.PerTurnCap <= 0 {
		p.PerTurnCap = 2000
	}
	if p.TotalCap <= 0 {
		p.TotalCap = 600000
	}
	return p
}

// ScoreConversation ranks a conversation by richness:
// messages*10 + sum(min(user_message_length,500)) +
// min(userTurns, assistantTurns)*20 + recency bonus.
func ScoreConversation(conv Conversation, now time.Time) int {
	score := len(conv.Turns) * 10
	userTurns := 0
	assistantTurns := 0
	for _, t := range conv.Turns {
		switch {
		case strings.EqualFold(t.Role, "user"):
			userTurns++
			l := len(t.Text)
			if l > 500 {
				l = 500
			}
			score += l
		case strings.EqualFold(t.Role, "assistant"):
			assistantTurns++
		}
	}
	balanced := userTurns
	if assistantTurns < balanced {
		balanced = assistantTurns
	}
	score += balanced * 20
	score += recencyBonus(conv.LastActivity(), now)
	return score
}

func recencyBonus(last, now time.Time) int {
	if last.IsZero() {
		return 0
	}
	age := now.Sub(last)
	switch {
	case age <= 7*24*time.Hour:
		return 300
	case age <= 30*24*time.Hour:
		return 150
	case age <= 90*24*time.Hour:
		return 50
	default:
		return 0
	}
}

// SampleConversations returns the top-target conversations by score, ties
// broken by original order. Conversations with fewer than MinTurns turns are
// excluded regardless of score.
func SampleConversations(conversations []Conversation, params SampleParams) []Conversation {
	p := params.withDefaults()

	type scored struct {
		conv  Conversation
		score int
		order int
	}
	eligible := make([]scored, 0, len(conversations))
	for i, conv := range conversations {
		if len(conv.Turns) < p.MinTurns {
			continue
		}
		eligible = append(eligible, scored{conv: conv, score: ScoreConversation(conv, p.Now), order: i})
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].score != eligible[j].score {
			return eligible[i].score > eligible[j].score
		}
		return eligible[i].order < eligible[j].order
	})
	if len(eligible) > p.Target {
		eligible = eligible[:p.Target]
	}
	out := make([]Conversation, len(eligible))
	for i, e := range eligible {
		out[i] = e.conv
	}
	return out
}

// FormatConversationSample renders sampled conversations as labeled text
// blocks, each turn truncated at PerTurnCap chars and the whole output capped
// at TotalCap chars to respect the model context window.
func FormatConversationSample(conversations []Conversation, params SampleParams) string {
	p := params.withDefaults()
	var b strings.Builder
	for _, conv := range conversations {
		var block strings.Builder
		title := conv.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&block, "=== Conversation: %s ===\n", title)
		for _, t := range conv.Turns {
			if strings.EqualFold(t.Role, "system") {
				continue
			}
			text := t.Text
			if len(text) > p.PerTurnCap {
				text = text[:p.PerTurnCap]
			}
			fmt.Fprintf(&block, "%s: %s\n", t.Role, text)
		}
		block.WriteString("\n")
		if b.Len()+block.Len() > p.TotalCap {
			break
		}
		b.WriteString(block.String())
	}
	return b.String()
}

const ProfileSystemPrompt = `You derive a structured personality profile from a user's conversation history and memory document. Ground every field in the material given; prefer empty fields over invention. Respond with JSON only.`

func ProfileUserPrompt(sample, memoryDoc string) string {
	return fmt.Sprintf(`Derive the user's profile sections from the conversations and memory document below.

MEMORY DOCUMENT:
%s

CONVERSATIONS:
%s`, memoryDoc, sample)
}

// ProfileRetryNudge is appended to the user prompt when the first attempt
// produced output that failed schema validation.
const ProfileRetryNudge = `

Your previous output was invalid. Respond with a JSON object containing exactly the keys "soul", "identity", "user", "agents" and "tools", each an object conforming to the schema.`

// ProfileSchema is the structured-output schema for the five sections.
func ProfileSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"soul", "identity", "user", "agents", "tools"},
		"properties": map[string]any{
			"soul": sectionSchema(map[string]any{
				"communication_style": stringSchema(),
				"personality_traits":  stringArraySchema(),
				"tone_preferences":    stringSchema(),
				"boundaries":          stringArraySchema(),
				"humor_style":         stringSchema(),
				"formality_level":     stringSchema(),
				"emotional_patterns":  stringSchema(),
			}),
			"identity": sectionSchema(map[string]any{
				"name":            stringSchema(),
				"role":            stringSchema(),
				"background":      stringSchema(),
				"goals":           stringArraySchema(),
				"expertise_areas": stringArraySchema(),
				"current_focus":   stringSchema(),
			}),
			"user": sectionSchema(map[string]any{
				"interests":     stringArraySchema(),
				"values":        stringArraySchema(),
				"context_notes": stringSchema(),
				"relationships": stringArraySchema(),
				"routines":      stringArraySchema(),
			}),
			"agents": sectionSchema(map[string]any{
				"interaction_history": stringSchema(),
				"preferred_workflows": stringArraySchema(),
				"delegation_style":    stringSchema(),
				"trust_level":         stringSchema(),
			}),
			"tools": sectionSchema(map[string]any{
				"frequently_used":        stringArraySchema(),
				"integrations":           stringArraySchema(),
				"workflows":              stringArraySchema(),
				"automation_preferences": stringSchema(),
			}),
		},
	}
}

func sectionSchema(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             required,
		"properties":           props,
	}
}

// CombinedMarkdown renders the five sections plus the memory document as one
// markdown artifact for prompt injection.
func CombinedMarkdown(sections *ProfileSections, memoryDoc string) string {
	var b strings.Builder

	b.WriteString("# Soul\n\n")
	writeField(&b, "Communication style", sections.Soul.CommunicationStyle)
	writeList(&b, "Personality traits", sections.Soul.PersonalityTraits)
	writeField(&b, "Tone preferences", sections.Soul.TonePreferences)
	writeList(&b, "Boundaries", sections.Soul.Boundaries)
	writeField(&b, "Humor style", sections.Soul.HumorStyle)
	writeField(&b, "Formality level", sections.Soul.FormalityLevel)
	writeField(&b, "Emotional patterns", sections.Soul.EmotionalPatterns)

	b.WriteString("\n# Identity\n\n")
	writeField(&b, "Name", sections.Identity.Name)
	writeField(&b, "Role", sections.Identity.Role)
	writeField(&b, "Background", sections.Identity.Background)
	writeList(&b, "Goals", sections.Identity.Goals)
	writeList(&b, "Expertise areas", sections.Identity.ExpertiseAreas)
	writeField(&b, "Current focus", sections.Identity.CurrentFocus)

	b.WriteString("\n# User\n\n")
	writeList(&b, "Interests", sections.User.Interests)
	writeList(&b, "Values", sections.User.Values)
	writeField(&b, "Context notes", sections.User.ContextNotes)
	writeList(&b, "Relationships", sections.User.Relationships)
	writeList(&b, "Routines", sections.User.Routines)

	b.WriteString("\n# Agents\n\n")
	writeField(&b, "Interaction history", sections.Agents.InteractionHistory)
	writeList(&b, "Preferred workflows", sections.Agents.PreferredWorkflows)
	writeField(&b, "Delegation style", sections.Agents.DelegationStyle)
	writeField(&b, "Trust level", sections.Agents.TrustLevel)

	b.WriteString("\n# Tools\n\n")
	writeList(&b, "Frequently used", sections.Tools.FrequentlyUsed)
	writeList(&b, "Integrations", sections.Tools.Integrations)
	writeList(&b, "Workflows", sections.Tools.Workflows)
	writeField(&b, "Automation preferences", sections.Tools.AutomationPreferences)

	if strings.TrimSpace(memoryDoc) != "" {
		b.WriteString("\n# Memory\n\n")
		b.WriteString(strings.TrimSpace(memoryDoc))
		b.WriteString("\n")
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func writeList(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(values, "; "))
}
