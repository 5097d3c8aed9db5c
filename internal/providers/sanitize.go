package providers

import "regexp"

// Secrets must never reach logs, journals, or the display. Order matters:
// the longer Anthropic prefix has to win over the generic sk- form.
var sanitizers = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{8,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{8,}`),
	regexp.MustCompile(`(?i)\b(?:api[_-]?key|apikey|key|token|secret)\s*[=:]\s*[^\s"',;]+`),
	// Whitespace-separated form needs a long value so "the key to the
	// cage" survives; earlier replacements are excluded by the [.
	regexp.MustCompile(`(?i)\b(?:api[_-]?key|apikey|key|token|secret)\s+[^\s\[]\S{9,}`),
}

// Sanitize replaces anything that looks like an API credential with a
// placeholder.
func Sanitize(s string) string {
	for _, re := range sanitizers {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}
