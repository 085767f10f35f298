package deps

import (
	"regexp"
	"strings"

	"github.com/kestrelworks/triage/pkg/models"
)

// Cue is one lexical prerequisite reference found in a description, like
// "blocked by task T-102" or "after the API migration".
type Cue struct {
	// Phrase is the trigger phrase that matched.
	Phrase string
	// Reference is the text naming the prerequisite.
	Reference string
}

// cuePatterns capture prerequisite references. Each pattern's first group
// is the trigger phrase, the second the reference text up to punctuation.
var cuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(depends\s+on)\s+(.+?)(?:[.;,]|$)`),
	regexp.MustCompile(`(?i)\b(blocked\s+by)\s+(.+?)(?:[.;,]|$)`),
	regexp.MustCompile(`(?i)\b(waiting\s+(?:on|for))\s+(.+?)(?:[.;,]|$)`),
	regexp.MustCompile(`(?i)\b(once)\s+(.+?)\s+(?:is\s+done|is\s+complete|completes|finishes)`),
	regexp.MustCompile(`(?i)\b(after)\s+(.+?)(?:[.;,]|$)`),
}

// taskIDPattern matches board-style task identifiers like T-102 or PROJ-4711.
var taskIDPattern = regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9]*-\d+\b`)

// DetectCues extracts prerequisite references from the text, in order of
// appearance. The same reference is reported once.
func DetectCues(text string) []Cue {
	var cues []Cue
	seen := make(map[string]bool)
	for _, pattern := range cuePatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			ref := strings.TrimSpace(m[2])
			key := strings.ToLower(ref)
			if ref == "" || seen[key] {
				continue
			}
			seen[key] = true
			cues = append(cues, Cue{
				Phrase:    strings.ToLower(strings.Join(strings.Fields(m[1]), " ")),
				Reference: ref,
			})
		}
	}
	return cues
}

// referenceStopwords are filler words ignored when matching a reference
// against task titles.
var referenceStopwords = map[string]bool{
	"task": true, "ticket": true, "the": true, "a": true, "an": true,
	"is": true, "of": true, "to": true, "for": true, "on": true,
}

// MatchReference resolves a cue reference to one of the open tasks.
// An explicit task ID mention wins; otherwise the task whose title shares
// the most reference words is chosen, requiring at least half of the
// meaningful reference words to appear in the title. Returns nil and false
// when nothing matches; the bool reports whether the match was by ID.
func MatchReference(reference string, open []*models.Task) (*models.Task, bool) {
	for _, id := range taskIDPattern.FindAllString(reference, -1) {
		for _, task := range open {
			if strings.EqualFold(task.ID, id) {
				return task, true
			}
		}
	}

	refWords := meaningfulWords(reference)
	if len(refWords) == 0 {
		return nil, false
	}

	var best *models.Task
	bestOverlap := 0
	for _, task := range open {
		titleWords := make(map[string]bool)
		for _, w := range meaningfulWords(task.Title) {
			titleWords[w] = true
		}
		overlap := 0
		for _, w := range refWords {
			if titleWords[w] {
				overlap++
			}
		}
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = task
		}
	}

	if best == nil || bestOverlap*2 < len(refWords) {
		return nil, false
	}
	return best, false
}

func meaningfulWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '-'
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if !referenceStopwords[f] {
			words = append(words, f)
		}
	}
	return words
}
