package brain

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/inkling/internal/memory"
)

// defaultMaxNewPerTurn bounds how many facts one message may add.
const defaultMaxNewPerTurn = 5

// Captured is one fact pulled out of a user message.
type Captured struct {
	Category   memory.Category
	Key        string
	Value      string
	Importance float64
}

type captureRule struct {
	re       *regexp.Regexp
	category memory.Category
	// key builds the store key from the cleaned capture; value adjusts the
	// stored text when non-nil.
	key   func(clean string) string
	value func(clean string) string

	importance float64
}

// The value capture stops at the first punctuation, so "I like sushi, a
// lot" stores just "sushi". The name rule additionally stops before a
// conjunction so "Bob and I like sushi" keeps only "Bob".
var captureRules = []captureRule{
	{
		re:         regexp.MustCompile(`(?i)\bmy name is\s+([^.,!?;:\n]+?)(?:\s+(?:and|but)\b|[.,!?;:\n]|$)`),
		category:   memory.CategoryUser,
		key:        func(string) string { return "user_name" },
		value:      titleCase,
		importance: 0.95,
	},
	{
		re:         regexp.MustCompile(`(?i)\bi (?:like|love|prefer)\s+([^.,!?;:\n]+)`),
		category:   memory.CategoryPreference,
		key:        func(clean string) string { return "pref_" + slug(clean) },
		importance: 0.9,
	},
	{
		re:         regexp.MustCompile(`(?i)\bi(?:'m| am) allergic to\s+([^.,!?;:\n]+)`),
		category:   memory.CategoryUser,
		key:        func(clean string) string { return "allergy_" + slug(clean) },
		importance: 0.95,
	},
	{
		re:         regexp.MustCompile(`(?i)\bi work(?:ed)? at\s+([^.,!?;:\n]+)`),
		category:   memory.CategoryUser,
		key:        func(string) string { return "workplace" },
		importance: 0.85,
	},
	{
		re:         regexp.MustCompile(`(?i)\bi work as\s+(?:an?\s+)?([^.,!?;:\n]+)`),
		category:   memory.CategoryUser,
		key:        func(string) string { return "occupation" },
		importance: 0.85,
	},
}

// ExtractFacts scans a raw user message with the capture rules, in rule
// order, stopping after maxNew facts.
func ExtractFacts(text string, maxNew int) []Captured {
	if maxNew <= 0 {
		maxNew = defaultMaxNewPerTurn
	}
	var out []Captured
	for _, rule := range captureRules {
		if len(out) >= maxNew {
			break
		}
		for _, m := range rule.re.FindAllStringSubmatch(text, -1) {
			clean := cleanCapture(m[1])
			if clean == "" {
				continue
			}
			value := clean
			if rule.value != nil {
				value = rule.value(clean)
			}
			out = append(out, Captured{
				Category:   rule.category,
				Key:        rule.key(clean),
				Value:      value,
				Importance: rule.importance,
			})
			if len(out) >= maxNew {
				break
			}
		}
	}
	return out
}

// cleanCapture trims whitespace and surrounding quotes.
func cleanCapture(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = out[:32]
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
