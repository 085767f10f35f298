package analyze

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kestrelworks/triage/pkg/models"
)

// Hints are optional refinements from a language model. Every field may be
// empty; invalid values are ignored so a misbehaving provider can never
// break intake.
type Hints struct {
	// Priority is the suggested priority name.
	Priority string `json:"priority,omitempty"`
	// Tags are additional skill tags.
	Tags []string `json:"tags,omitempty"`
	// Title is a suggested title.
	Title string `json:"title,omitempty"`
	// DependsOnRefs are textual references to prerequisite tasks, fed to
	// the dependency analyzer alongside the lexical cues.
	DependsOnRefs []string `json:"depends_on_refs,omitempty"`
	// EstimatedHours overrides the effort estimate when positive.
	EstimatedHours float64 `json:"estimated_hours,omitempty"`
}

// Empty reports whether the hints carry nothing.
func (h Hints) Empty() bool {
	return h.Priority == "" && len(h.Tags) == 0 && h.Title == "" &&
		len(h.DependsOnRefs) == 0 && h.EstimatedHours <= 0
}

// Merge overlays hints onto the deterministic summary. A parseable hint
// priority wins; hint tags join the derived ones; a hint title within
// length wins; a positive hour estimate wins.
func (s Summary) Merge(h Hints) Summary {
	if p, err := models.ParsePriority(h.Priority); err == nil {
		s.Priority = p
	}

	if len(h.Tags) > 0 {
		seen := make(map[string]bool, len(s.Tags)+len(h.Tags))
		for _, t := range s.Tags {
			seen[t] = true
		}
		for _, t := range h.Tags {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				seen[t] = true
			}
		}
		tags := make([]string, 0, len(seen))
		for t := range seen {
			tags = append(tags, t)
		}
		sort.Strings(tags)
		s.Tags = tags
	}

	if title := strings.TrimSpace(h.Title); title != "" && utf8.RuneCountInString(title) <= MaxTitleLength {
		s.Title = title
	}

	if h.EstimatedHours > 0 && h.EstimatedHours <= maxEstimatedHours {
		s.EstimatedHours = h.EstimatedHours
	}

	return s
}
