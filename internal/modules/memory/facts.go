package memory

import (
	"encoding/json"
	"strings"
)

// Project is a thing the user is building or working toward.
type Project struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// KeyDate is an event the user cares about, with its date as free text.
type KeyDate struct {
	Event string `json:"event"`
	Date  string `json:"date"`
}

// Decision records a choice the user made and the context around it.
type Decision struct {
	Decision string `json:"decision"`
	Context  string `json:"context"`
}

// FactBundle is the five-category structured extraction of durable facts from
// chunk text. All five lists are always present (possibly empty). It is an
// intermediate shape only — consumed by consolidation, reduction, and memory
// synthesis, never persisted.
type FactBundle struct {
	Preferences []string   `json:"preferences"`
	Projects    []Project  `json:"projects"`
	Dates       []KeyDate  `json:"dates"`
	Beliefs     []string   `json:"beliefs"`
	Decisions   []Decision `json:"decisions"`
}

// EmptyFactBundle is the fallback value for any failed extraction: all five
// categories present and empty.
func EmptyFactBundle() FactBundle {
	return FactBundle{
		Preferences: []string{},
		Projects:    []Project{},
		Dates:       []KeyDate{},
		Beliefs:     []string{},
		Decisions:   []Decision{},
	}
}

// Normalize replaces nil category lists with empty ones so every bundle
// carries all five keys.
func (b FactBundle) Normalize() FactBundle {
	if b.Preferences == nil {
		b.Preferences = []string{}
	}
	if b.Projects == nil {
		b.Projects = []Project{}
	}
	if b.Dates == nil {
		b.Dates = []KeyDate{}
	}
	if b.Beliefs == nil {
		b.Beliefs = []string{}
	}
	if b.Decisions == nil {
		b.Decisions = []Decision{}
	}
	return b
}

func (b FactBundle) TotalEntries() int {
	return len(b.Preferences) + len(b.Projects) + len(b.Dates) + len(b.Beliefs) + len(b.Decisions)
}

// EstimateTokens measures the serialized size of the bundle with the same
// cheap proxy the chunker uses.
func (b FactBundle) EstimateTokens() int {
	raw, err := json.Marshal(b)
	if err != nil {
		return 0
	}
	return EstimateTokens(string(raw))
}

// ParseFactBundle decodes LLM output into a normalized bundle.
func ParseFactBundle(raw json.RawMessage) (FactBundle, error) {
	var b FactBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return EmptyFactBundle(), err
	}
	return b.Normalize(), nil
}

// Consolidate merges bundles into one, deduplicating per category:
// preferences and beliefs by exact string, projects by case-insensitive name,
// dates by event, decisions by decision text. The merge is commutative with
// respect to bundle order up to entry ordering, and idempotent.
func Consolidate(bundles []FactBundle) FactBundle {
	out := EmptyFactBundle()

	seenPref := map[string]bool{}
	seenProj := map[string]bool{}
	seenDate := map[string]bool{}
	seenBelief := map[string]bool{}
	seenDecision := map[string]bool{}

	for _, b := range bundles {
		for _, p := range b.Preferences {
			if p == "" || seenPref[p] {
				continue
			}
			seenPref[p] = true
			out.Preferences = append(out.Preferences, p)
		}
		for _, p := range b.Projects {
			key := strings.ToLower(strings.TrimSpace(p.Name))
			if key == "" || seenProj[key] {
				continue
			}
			seenProj[key] = true
			out.Projects = append(out.Projects, p)
		}
		for _, d := range b.Dates {
			if d.Event == "" || seenDate[d.Event] {
				continue
			}
			seenDate[d.Event] = true
			out.Dates = append(out.Dates, d)
		}
		for _, bl := range b.Beliefs {
			if bl == "" || seenBelief[bl] {
				continue
			}
			seenBelief[bl] = true
			out.Beliefs = append(out.Beliefs, bl)
		}
		for _, d := range b.Decisions {
			if d.Decision == "" || seenDecision[d.Decision] {
				continue
			}
			seenDecision[d.Decision] = true
			out.Decisions = append(out.Decisions, d)
		}
	}
	return out
}
