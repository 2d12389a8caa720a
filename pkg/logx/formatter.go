package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Formatter renders one entry into the bytes written to the output.
type Formatter interface {
	Format(entry *LogEntry) ([]byte, error)
}

// LogEntry is a single record handed to a Formatter.
type LogEntry struct {
	Level     Level
	Message   string
	Fields    Fields
	Data      interface{}
	Error     error
	Timestamp time.Time
	Caller    string
}

// Fields is a map of structured data
type Fields map[string]interface{}

// RedactedValue replaces the value of every field listed in Config.RedactKeys.
const RedactedValue = "[REDACTED]"

// leadingKeys are printed first, in this order, so the ids that tie a line
// to a request and an account are always in the same place.
var leadingKeys = []string{
	"request_id",
	"tenant_id",
	"user_id",
	"recipe_user_id",
	"session_handle",
}

// orderedKeys returns the leading keys present in fields followed by the
// remaining keys sorted.
func orderedKeys(fields Fields) []string {
	keys := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(leadingKeys))
	for _, k := range leadingKeys {
		if _, ok := fields[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(fields)-len(keys))
	for k := range fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// redact returns a copy of fields with sensitive values masked.
func redact(fields Fields, keys map[string]bool) Fields {
	if len(fields) == 0 {
		return nil
	}
	out := make(Fields, len(fields))
	for k, v := range fields {
		if keys[strings.ToLower(k)] {
			out[k] = RedactedValue
			continue
		}
		out[k] = v
	}
	return out
}

// timestampValue renders t for the configured TimeFormat. The unix formats
// yield integers so JSON output keeps them numeric.
func timestampValue(t time.Time, format string) interface{} {
	switch format {
	case "unix":
		return t.Unix()
	case "unixmilli":
		return t.UnixMilli()
	case "":
		return t.Format(time.RFC3339)
	default:
		return t.Format(format)
	}
}

func indentJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", data)
	}
	return string(bytes)
}
