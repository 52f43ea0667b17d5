package memory

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Export parsing for chat-history archives. Two shapes are accepted per
// conversation: a pre-parsed flat message list, or the mapping/DAG shape that
// assistant exports use, where edits and regenerations leave dead branches and
// only the path ending at current_node is live.

type exportConversation struct {
	ID          string                `json:"id"`
	ConvID      string                `json:"conversation_id"`
	Title       string                `json:"title"`
	CurrentNode string                `json:"current_node"`
	Mapping     map[string]exportNode `json:"mapping"`
	Messages    []exportMessage       `json:"messages"`
}

type exportNode struct {
	ID       string         `json:"id"`
	Message  *exportMessage `json:"message"`
	Parent   string         `json:"parent"`
	Children []string       `json:"children"`
}

type exportMessage struct {
	Author     *exportAuthor   `json:"author"`
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	CreateTime float64         `json:"create_time"`
	Metadata   map[string]any  `json:"metadata"`
}

type exportAuthor struct {
	Role string `json:"role"`
}

func (m *exportMessage) role() string {
	if m == nil {
		return ""
	}
	if m.Author != nil && m.Author.Role != "" {
		return m.Author.Role
	}
	return m.Role
}

// ParseExport decodes an export archive into conversations. The top level may
// be a bare conversation array or an object with a "conversations" key.
// Conversations that fail to decode are skipped rather than failing the whole
// archive.
func ParseExport(raw []byte) ([]Conversation, error) {
	var convs []exportConversation
	if err := json.Unmarshal(raw, &convs); err != nil {
		var wrapper struct {
			Conversations []exportConversation `json:"conversations"`
		}
		if werr := json.Unmarshal(raw, &wrapper); werr != nil {
			return nil, fmt.Errorf("parse export: %w", err)
		}
		convs = wrapper.Conversations
	}

	out := make([]Conversation, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		turns := extractActivePath(c)
		if len(turns) == 0 {
			continue
		}
		id := c.ID
		if id == "" {
			id = c.ConvID
		}
		out = append(out, Conversation{
			ID:    id,
			Title: c.Title,
			Turns: turns,
		})
	}
	return out, nil
}

// extractActivePath returns the visible messages of a conversation in order.
// Mapping-shaped conversations are traversed backward from current_node so
// dead edit branches are excluded; a missing current_node falls back to the
// most recently active leaf.
func extractActivePath(c *exportConversation) []Turn {
	if len(c.Mapping) == 0 {
		turns := make([]Turn, 0, len(c.Messages))
		for i := range c.Messages {
			m := &c.Messages[i]
			if !visibleMessage(m) {
				continue
			}
			text := extractContent(m.Content)
			if text == "" {
				continue
			}
			turns = append(turns, Turn{
				Role:      m.role(),
				Text:      text,
				Timestamp: fromUnixSeconds(m.CreateTime),
			})
		}
		return turns
	}

	tip := c.CurrentNode
	if _, ok := c.Mapping[tip]; !ok {
		tip = latestLeaf(c.Mapping)
	}

	var path []*exportNode
	seen := map[string]bool{}
	for id := tip; id != ""; {
		node, ok := c.Mapping[id]
		if !ok || seen[id] {
			break
		}
		seen[id] = true
		n := node
		path = append(path, &n)
		id = node.Parent
	}

	turns := make([]Turn, 0, len(path))
	for i := len(path) - 1; i >= 0; i-- {
		m := path[i].Message
		if !visibleMessage(m) {
			continue
		}
		text := extractContent(m.Content)
		if text == "" {
			continue
		}
		turns = append(turns, Turn{
			Role:      m.role(),
			Text:      text,
			Timestamp: fromUnixSeconds(m.CreateTime),
		})
	}
	return turns
}

// latestLeaf picks the childless node whose message is newest. Exports without
// a current_node still resolve to the branch the user last touched.
func latestLeaf(mapping map[string]exportNode) string {
	best := ""
	bestTime := math.Inf(-1)
	for id, node := range mapping {
		if len(node.Children) > 0 {
			continue
		}
		t := 0.0
		if node.Message != nil {
			t = node.Message.CreateTime
		}
		if best == "" || t > bestTime {
			best = id
			bestTime = t
		}
	}
	return best
}

// visibleMessage keeps user and assistant turns. System turns are hidden
// unless the user authored them (custom instructions); tool output and other
// machinery roles never surface in exported transcripts.
func visibleMessage(m *exportMessage) bool {
	if m == nil {
		return false
	}
	switch m.role() {
	case "user", "assistant":
		return true
	case "system":
		if v, ok := m.Metadata["is_user_system_message"].(bool); ok && v {
			return true
		}
		return false
	default:
		return false
	}
}

// extractContent flattens the polymorphic content field: a plain string, an
// object with "text", or an object with "parts" holding strings and
// text-bearing objects. Non-text parts (asset pointers) are dropped.
func extractContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj struct {
		Text  string            `json:"text"`
		Parts []json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if len(obj.Parts) == 0 {
		return strings.TrimSpace(obj.Text)
	}

	var pieces []string
	for _, p := range obj.Parts {
		var ps string
		if err := json.Unmarshal(p, &ps); err == nil {
			if t := strings.TrimSpace(ps); t != "" {
				pieces = append(pieces, t)
			}
			continue
		}
		var po struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(p, &po); err == nil {
			if t := strings.TrimSpace(po.Text); t != "" {
				pieces = append(pieces, t)
			}
		}
	}
	return strings.Join(pieces, "\n")
}

func fromUnixSeconds(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	s, frac := math.Modf(sec)
	return time.Unix(int64(s), int64(frac*1e9))
}
