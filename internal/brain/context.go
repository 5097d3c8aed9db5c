package brain

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/inkling/internal/memory"
)

const (
	defaultContextItems = 6
	defaultContextChars = 600
	maxQueryTerms       = 4
)

var termPattern = regexp.MustCompile(`[a-z][a-z0-9_'-]{2,}`)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "day": {}, "get": {}, "has": {},
	"him": {}, "his": {}, "how": {}, "now": {}, "see": {}, "two": {},
	"way": {}, "who": {}, "did": {}, "its": {}, "let": {}, "say": {},
	"she": {}, "too": {}, "use": {}, "that": {}, "with": {}, "have": {},
	"this": {}, "will": {}, "your": {}, "from": {}, "they": {}, "know": {},
	"want": {}, "been": {}, "good": {}, "much": {}, "some": {}, "time": {},
	"what": {}, "when": {}, "just": {}, "like": {}, "about": {}, "could": {},
	"would": {}, "there": {}, "their": {}, "please": {}, "tell": {},
}

// queryTerms pulls the first few meaningful lowercase words out of the
// user's message for memory lookup.
func queryTerms(text string) []string {
	var terms []string
	seen := map[string]struct{}{}
	for _, w := range termPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return terms
}

// buildMemoryContext renders remembered facts for the system prompt.
// Preferences always get half the item slots; the rest come from matching
// the user's own words. Returns "" when nothing is remembered.
func (b *Brain) buildMemoryContext(userText string) string {
	if b.memory == nil {
		return ""
	}
	maxItems := b.contextItems
	maxChars := b.contextChars

	var picked []memory.Entry
	seen := map[string]struct{}{}
	add := func(entries []memory.Entry) {
		for _, e := range entries {
			id := string(e.Category) + "\x00" + e.Key
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			picked = append(picked, e)
		}
	}

	if prefs, err := b.memory.RecallByCategory(memory.CategoryPreference, maxItems/2); err == nil {
		add(prefs)
	}
	for _, term := range queryTerms(userText) {
		if len(picked) >= maxItems {
			break
		}
		if hits, err := b.memory.Recall(term, "", maxItems-len(picked)); err == nil {
			add(hits)
		}
	}
	if len(picked) > maxItems {
		picked = picked[:maxItems]
	}
	if len(picked) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Things I remember:")
	for _, e := range picked {
		line := "\n- " + e.Key + ": " + e.Value
		if sb.Len()+len(line) > maxChars {
			break
		}
		sb.WriteString(line)
	}
	return sb.String()
}
