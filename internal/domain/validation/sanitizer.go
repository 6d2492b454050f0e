package validation

import (
	"strings"
	"unicode/utf8"
)

// MaxStringLength is the maximum length of any string value (1MB).
// Strings longer than this are truncated to prevent memory exhaustion.
const MaxStringLength = 1048576

// Sanitizer cleans string input before it is stored.
type Sanitizer struct {
	// Stateless
}

// NewSanitizer creates a new Sanitizer instance.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// SanitizeString removes null bytes (PostgreSQL text cannot hold them),
// replaces invalid UTF-8 and truncates oversized strings on a rune boundary.
func (s *Sanitizer) SanitizeString(str string) string {
	str = strings.ReplaceAll(str, "\x00", "")
	if !utf8.ValidString(str) {
		str = strings.ToValidUTF8(str, "�")
	}
	if len(str) > MaxStringLength {
		cut := MaxStringLength
		for cut > 0 && !utf8.RuneStart(str[cut]) {
			cut--
		}
		str = str[:cut]
	}
	return str
}

// SanitizeStringPtr sanitizes the pointed-to string, preserving nil.
func (s *Sanitizer) SanitizeStringPtr(str *string) *string {
	if str == nil {
		return nil
	}
	clean := s.SanitizeString(*str)
	return &clean
}

// SanitizeValue recursively sanitizes a decoded JSON value.
// For strings, it applies SanitizeString.
// For maps and slices, it recurses into each element.
// For other types (numbers, booleans, nil), it returns them unchanged.
func (s *Sanitizer) SanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return s.SanitizeString(val)

	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v := range val {
			result[s.SanitizeString(k)] = s.SanitizeValue(v)
		}
		return result

	case []any:
		result := make([]any, len(val))
		for i, v := range val {
			result[i] = s.SanitizeValue(v)
		}
		return result

	default:
		return v
	}
}
