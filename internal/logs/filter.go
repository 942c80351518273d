package logs

import (
	"encoding/json"
	"strings"

	"facereview/internal/logging"
)

// Filter selects log lines. Zero fields match everything.
type Filter struct {
	FaceID       string
	SuggestionID string
	EventType    string
	Contains     string
}

// Empty reports whether f matches every line.
func (f Filter) Empty() bool {
	return f.FaceID == "" && f.SuggestionID == "" && f.EventType == "" && f.Contains == ""
}

// Match reports whether line passes the filter. Structured fields are only
// inspected on JSON lines; a console line never matches a field filter.
func (f Filter) Match(line string) bool {
	if f.Contains != "" && !strings.Contains(line, f.Contains) {
		return false
	}
	if f.FaceID == "" && f.SuggestionID == "" && f.EventType == "" {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return false
	}
	return fieldIs(fields, logging.FieldFaceID, f.FaceID) &&
		fieldIs(fields, logging.FieldSuggestionID, f.SuggestionID) &&
		fieldIs(fields, logging.FieldEventType, f.EventType)
}

func fieldIs(fields map[string]any, key, want string) bool {
	if want == "" {
		return true
	}
	got, ok := fields[key].(string)
	return ok && got == want
}
