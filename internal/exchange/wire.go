package exchange

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Level is the common [price, amount] array form of an order-book level.
type Level [2]Number

func LevelFields(l Level) (Number, Number) { return l[0], l[1] }

// ErrorText renders an embedded error field. Exchanges send either a string or an object
// of field messages; strings are unquoted and anything else is kept as compact JSON.
// Absent, null, false and empty values yield "".
func ErrorText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", "false", `""`:
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
