// FILE: callwisp/src/internal/redact/redact.go
package redact

import (
	"regexp"
	"sort"
	"strings"
)

// Placeholder replaces every redacted value
const Placeholder = "***REDACTED***"

// Key name fragments that mark a value as secret
var sensitivePatterns = []string{
	"PASSWORD", "PASSWD", "PASS",
	"SECRET", "TOKEN",
	"API_KEY", "APIKEY",
	"PRIVATE_KEY", "PRIVATE",
	"ACCESS_KEY", "ACCESS_TOKEN",
	"AUTH", "AUTHORIZATION",
	"CREDENTIAL", "CREDENTIALS",
	"SESSION_ID", "SESSION",
	"COOKIE",
}

var (
	sensitiveKeyRe = compileKeyPattern()

	// key=value, key: value, "key": "value"
	inlineSecretRe = regexp.MustCompile(`(?i)((?:password|passwd|pass|secret|token|api_key|apikey|private_key|access_key|access_token|auth|authorization|credential|session_id|cookie)["']?\s*[:=]\s*["']?(?:(?:bearer|basic)\s+)?)([^"'\s,}\]]+)`)
)

func compileKeyPattern() *regexp.Regexp {
	patterns := make([]string, len(sensitivePatterns))
	copy(patterns, sensitivePatterns)
	// Longest first so the alternation reports the most specific fragment
	sort.SliceStable(patterns, func(i, j int) bool {
		return len(patterns[i]) > len(patterns[j])
	})
	for i, p := range patterns {
		patterns[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("(" + strings.Join(patterns, "|") + ")")
}

// IsSensitiveKey reports whether a key or parameter name likely holds a secret
func IsSensitiveKey(name string) bool {
	return sensitiveKeyRe.MatchString(strings.ToUpper(name))
}

// Value masks a secret, optionally keeping the first visible characters
func Value(value string, visible int) string {
	if value == "" || visible <= 0 || len(value) <= visible {
		return Placeholder
	}
	if strings.HasSuffix(value, Placeholder) {
		return value
	}
	return value[:visible] + Placeholder
}

// Kwargs returns a copy of the mapping with values at sensitive keys masked.
// Non-string sensitive values become the placeholder; nested maps are walked.
func Kwargs(kwargs map[string]any) map[string]any {
	if kwargs == nil {
		return nil
	}
	result := make(map[string]any, len(kwargs))
	for key, value := range kwargs {
		if IsSensitiveKey(key) {
			result[key] = Placeholder
			continue
		}
		result[key] = Nested(value)
	}
	return result
}

// Nested masks secrets inside a structured value: maps are walked by key,
// slices element-wise. Scalars are returned unchanged.
func Nested(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Kwargs(v)
	case map[string]string:
		return stringMap(v)
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = Nested(item)
		}
		return result
	}
	return value
}

func stringMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for key, value := range m {
		if IsSensitiveKey(key) {
			result[key] = Placeholder
		} else {
			result[key] = value
		}
	}
	return result
}

// Args masks positional string arguments whose parameter name is sensitive.
// Without names nothing can be inferred and args are returned unchanged.
func Args(args []any, names []string) []any {
	if len(names) == 0 || len(args) == 0 {
		return args
	}
	result := make([]any, len(args))
	copy(result, args)
	for i := range result {
		if i >= len(names) {
			break
		}
		if !IsSensitiveKey(names[i]) {
			continue
		}
		if s, ok := result[i].(string); ok {
			result[i] = Value(s, 0)
		}
	}
	return result
}

// String masks inline key/value secrets in free text, preserving the key
func String(text string) string {
	if text == "" {
		return text
	}
	return inlineSecretRe.ReplaceAllString(text, "${1}"+Placeholder)
}
