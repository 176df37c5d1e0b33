package templatefmt

import (
	"encoding/json"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"
)

// FuncMap returns helpers available to every notification template.
// Params: none.
// Returns: helper map shared by config validation and runtime rendering.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"json":     MarshalJSON,
		"join":     strings.Join,
		"joinIDs":  JoinIDs,
		"fmtTime":  FormatTime,
		"truncate": Truncate,
		"upper":    strings.ToUpper,
	}
}

// ParseNotificationTemplate parses one notification template with shared helpers.
// Missing keys are errors so a typo in a field name fails at config load.
func ParseNotificationTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// JoinIDs renders rule ids as a comma-separated list.
func JoinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// FormatTime renders a timestamp in RFC3339 UTC; zero time renders empty.
func FormatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

// Truncate shortens text to at most limit runes and appends an ellipsis when cut.
func Truncate(limit int, text string) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "…"
}

// MarshalJSON renders value into JSON string for template embedding.
// Params: template value of any type.
// Returns: marshaled JSON string or "null" on marshal failure.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
