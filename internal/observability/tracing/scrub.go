package tracing

import "strings"

// RedactionMarker replaces the value of any field whose name matches the
// sensitive-field list.
const RedactionMarker = "[REDACTED]"

// Scrubber redacts sensitive fields from attribute maps before they are
// attached to spans or emitted in log lines.
//
// A field name matches when it equals a configured sensitive field or
// contains one as a substring, compared case-insensitively. "AccessToken",
// "square_access_token" and "ACCESS_TOKEN" all match "access_token".
type Scrubber struct {
	fields []string
}

// NewScrubber creates a Scrubber for the given sensitive field names.
func NewScrubber(fields []string) *Scrubber {
	lowered := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			lowered = append(lowered, f)
		}
	}
	return &Scrubber{fields: lowered}
}

// IsSensitive reports whether a field name matches the sensitive list.
func (s *Scrubber) IsSensitive(key string) bool {
	lowered := strings.ToLower(key)
	for _, f := range s.fields {
		if lowered == f || strings.Contains(lowered, f) {
			return true
		}
	}
	return false
}

// Scrub returns a deep copy of value with sensitive fields redacted.
// The input is never mutated. Maps and slices are copied recursively;
// all other values pass through unchanged.
func (s *Scrubber) Scrub(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return s.ScrubMap(v)
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, val := range v {
			if s.IsSensitive(k) {
				out[k] = RedactionMarker
			} else {
				out[k] = val
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.Scrub(item)
		}
		return out
	default:
		return value
	}
}

// ScrubMap returns a deep copy of m with sensitive fields redacted.
// A nil map yields a nil map.
func (s *Scrubber) ScrubMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s.IsSensitive(k) {
			out[k] = RedactionMarker
			continue
		}
		out[k] = s.Scrub(v)
	}
	return out
}
