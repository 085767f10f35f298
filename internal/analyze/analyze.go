// Package analyze derives task metadata from free-text descriptions:
// priority, tags, a suggested title and an effort estimate. It is fully
// deterministic; language-model hints can overlay it but never replace it.
package analyze

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kestrelworks/triage/pkg/models"
)

// MaxTitleLength is the longest suggested title, in runes.
const MaxTitleLength = 60

// fallbackTitle is used when the description yields nothing usable.
const fallbackTitle = "New task"

// maxEstimatedHours caps the effort estimate.
const maxEstimatedHours = 40

// Complexity classifies how involved a task looks.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Summary is the derived metadata for one description.
type Summary struct {
	// Priority is the inferred priority.
	Priority models.Priority `json:"priority"`
	// Tags are the matched skill and technology tags, sorted.
	Tags []string `json:"tags,omitempty"`
	// Title is the suggested task title.
	Title string `json:"title"`
	// Complexity is the effort class.
	Complexity Complexity `json:"complexity"`
	// EstimatedHours is the effort estimate derived from Complexity.
	EstimatedHours float64 `json:"estimated_hours"`
}

// priorityCue pairs a priority with its trigger pattern. Order matters:
// the first match wins, so urgency outranks an offhand "someday".
type priorityCue struct {
	priority models.Priority
	pattern  *regexp.Regexp
}

var priorityCues = []priorityCue{
	{models.PriorityUrgent, regexp.MustCompile(`(?i)\b(urgent|urgently|asap|critical|emergency|immediately|right away|production down|blocker|blocking|blocked)\b`)},
	{models.PriorityHigh, regexp.MustCompile(`(?i)\b(important|priority|quickly|soon|necessary|this week)\b`)},
	{models.PriorityNormal, regexp.MustCompile(`(?i)\b(normal|regular|moderate|when you can)\b`)},
	{models.PriorityLow, regexp.MustCompile(`(?i)\b(optional|suggestion|nice to have|future|someday|whenever|no rush|low priority)\b`)},
}

// negativeSentiment raises an otherwise normal task to high: an unhappy
// client is waiting on it.
var negativeSentiment = regexp.MustCompile(`(?i)\b(angry|upset|unhappy|frustrated|frustrating|complaint|complained|escalated|escalation|unacceptable)\b`)

// tagCues maps a tag to the vocabulary that implies it. Unlike priority,
// every matching tag applies.
var tagCues = map[string]*regexp.Regexp{
	"development":    regexp.MustCompile(`(?i)\b(code|coding|program|develop|implement|bug|error|api|backend|frontend)\b`),
	"design":         regexp.MustCompile(`(?i)\b(design|ui|ux|mockup|prototype|visual|interface|wireframe)\b`),
	"qa":             regexp.MustCompile(`(?i)\b(test|testing|qa|verify|validate|review)\b`),
	"marketing":      regexp.MustCompile(`(?i)\b(marketing|content|social|campaign|promotion|seo)\b`),
	"support":        regexp.MustCompile(`(?i)\b(support|help|problem|incident|ticket)\b`),
	"infrastructure": regexp.MustCompile(`(?i)\b(server|database|infrastructure|deploy|hosting|devops)\b`),
}

// techKeywords become tags verbatim when mentioned.
var techKeywords = []string{
	"react", "vue", "angular", "node", "python", "django", "go",
	"mysql", "postgresql", "mongodb", "redis", "elasticsearch",
	"aws", "azure", "gcp", "docker", "kubernetes",
}

var complexityCues = map[Complexity]*regexp.Regexp{
	ComplexitySimple:  regexp.MustCompile(`(?i)\b(change|update|fix|correct|review|verify|typo|rename|text|color|link|image)\b`),
	ComplexityMedium:  regexp.MustCompile(`(?i)\b(implement|develop|create|design|optimize|integrate|configure|refactor|build)\b`),
	ComplexityComplex: regexp.MustCompile(`(?i)\b(architecture|system|database|algorithm|performance|scalability|security|migration|rewrite)\b`),
}

var (
	integrationPattern = regexp.MustCompile(`(?i)\b(api|integration|third[- ]party|webhook)\b`)
	testingPattern     = regexp.MustCompile(`(?i)\b(test|testing|qa)\b`)
)

// baseHours is the effort estimate per complexity class before adjustments.
var baseHours = map[Complexity]float64{
	ComplexitySimple:  1,
	ComplexityMedium:  4,
	ComplexityComplex: 8,
}

// Analyze derives the full summary for a description.
func Analyze(description string) Summary {
	complexity, hours := ClassifyComplexity(description)
	return Summary{
		Priority:       InferPriority(description),
		Tags:           ExtractTags(description),
		Title:          SuggestTitle(description),
		Complexity:     complexity,
		EstimatedHours: hours,
	}
}

// InferPriority returns the first matching priority cue, defaulting to
// normal. Negative sentiment promotes a normal result to high.
func InferPriority(description string) models.Priority {
	priority := models.PriorityNormal
	for _, cue := range priorityCues {
		if cue.pattern.MatchString(description) {
			priority = cue.priority
			break
		}
	}

	if priority == models.PriorityNormal && negativeSentiment.MatchString(description) {
		priority = models.PriorityHigh
	}
	return priority
}

// ExtractTags returns every tag whose vocabulary appears in the
// description, plus any mentioned technologies, sorted and deduplicated.
func ExtractTags(description string) []string {
	seen := make(map[string]bool)
	for tag, pattern := range tagCues {
		if pattern.MatchString(description) {
			seen[tag] = true
		}
	}

	lower := strings.ToLower(description)
	for _, tech := range techKeywords {
		if containsWord(lower, tech) {
			seen[tech] = true
		}
	}

	if len(seen) == 0 {
		return nil
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// containsWord reports whether w occurs in s bounded by non-alphanumerics.
func containsWord(s, w string) bool {
	for start := 0; ; {
		idx := strings.Index(s[start:], w)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(w)
		beforeOK := idx == 0 || !isWordByte(s[idx-1])
		afterOK := end == len(s) || !isWordByte(s[end])
		if beforeOK && afterOK {
			return true
		}
		start = idx + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// SuggestTitle derives a title from the first sentence, trimmed to
// MaxTitleLength on a word boundary with an ellipsis. Descriptions too
// short to title fall back to a generic one.
func SuggestTitle(description string) string {
	title := firstClause(description)
	title = strings.TrimSpace(title)

	if utf8.RuneCountInString(title) > MaxTitleLength {
		title = truncateOnWord(title, MaxTitleLength-1) + "…"
	}

	title = capitalize(title)
	if utf8.RuneCountInString(title) < 5 {
		return fallbackTitle
	}
	return title
}

// firstClause cuts at the first sentence end, falling back to commas and
// semicolons when the first sentence alone is still too long.
func firstClause(s string) string {
	s = strings.TrimSpace(s)
	head, _, _ := strings.Cut(s, ".")
	if utf8.RuneCountInString(head) > MaxTitleLength {
		head, _, _ = strings.Cut(s, ",")
		if utf8.RuneCountInString(head) > MaxTitleLength {
			head, _, _ = strings.Cut(s, ";")
		}
	}
	return strings.TrimSpace(head)
}

// truncateOnWord cuts s to at most max runes without splitting a word.
func truncateOnWord(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := string(runes[:max])
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \t")
}

// capitalize upper-cases the first rune.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	if unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// ClassifyComplexity classifies the description and estimates effort.
// Any complex cue wins outright; otherwise medium wins when it outscores
// simple. The estimate starts from the class base and grows for long
// descriptions, external integrations and testing work, capped at
// maxEstimatedHours.
func ClassifyComplexity(description string) (Complexity, float64) {
	scores := make(map[Complexity]int, len(complexityCues))
	for class, pattern := range complexityCues {
		scores[class] = len(pattern.FindAllString(description, -1))
	}

	complexity := ComplexitySimple
	switch {
	case scores[ComplexityComplex] > 0:
		complexity = ComplexityComplex
	case scores[ComplexityMedium] > scores[ComplexitySimple]:
		complexity = ComplexityMedium
	}

	hours := baseHours[complexity]
	if len(description) > 500 {
		hours += 2
	}
	if integrationPattern.MatchString(description) {
		hours += 4
	}
	if testingPattern.MatchString(description) {
		hours += 2
	}
	if hours > maxEstimatedHours {
		hours = maxEstimatedHours
	}
	return complexity, hours
}
