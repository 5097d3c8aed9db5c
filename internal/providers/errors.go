package providers

import (
	"errors"
	"fmt"
	"strings"
)

// Kind groups provider failures by how the caller should react.
type Kind int

const (
	// KindGeneric means retry the same provider after a short pause.
	KindGeneric Kind = iota
	// KindRateLimit means back off exponentially on the same provider.
	KindRateLimit
	// KindQuota means the provider is out of budget; move to the next one.
	KindQuota
)

func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindQuota:
		return "quota_exceeded"
	default:
		return "provider_error"
	}
}

// Error wraps a provider failure with its classification. The message is
// sanitized before wrapping.
type Error struct {
	Provider string
	Kind     Kind
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// newError classifies raw failure text and strips credentials from it.
func newError(provider, message string) *Error {
	return &Error{
		Provider: provider,
		Kind:     classify(message),
		Message:  Sanitize(message),
	}
}

// classify buckets a failure by substrings of its text, case-insensitive.
func classify(message string) Kind {
	m := strings.ToLower(message)
	if strings.Contains(m, "rate") || strings.Contains(m, "429") {
		return KindRateLimit
	}
	for _, s := range []string{"quota", "insufficient", "resource", "exhausted"} {
		if strings.Contains(m, s) {
			return KindQuota
		}
	}
	return KindGeneric
}

// KindOf classifies any error. Wrapped provider errors keep their original
// classification; everything else is judged by its text.
func KindOf(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return classify(err.Error())
}
