package ai

import (
	"fmt"
	"strings"
)

// ProviderError describes a failed call to an AI backend. StatusCode is zero
// when no HTTP status was obtained (network unreachable, timeout).
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

var authKeywords = []string{"unauthorized", "invalid api key", "authentication", "forbidden"}

// Auth reports whether the failure is an authentication/authorization error.
// Auth errors are never retried: the key will not become valid by waiting.
func (e *ProviderError) Auth() bool {
	if e.StatusCode == 401 || e.StatusCode == 403 {
		return true
	}
	message := strings.ToLower(e.Message)
	for _, keyword := range authKeywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}

// Retryable reports whether another attempt may succeed.
func (e *ProviderError) Retryable() bool {
	return !e.Auth()
}

// ParseError indicates a 2xx provider response whose content could not be
// coerced into the expected structure by any fallback strategy. The raw text
// is kept for manual inspection.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return "parse evaluation response: " + e.Reason
}
