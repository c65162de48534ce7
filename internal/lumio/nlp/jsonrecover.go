package nlp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoJSONObject is returned by RecoverObject when the text holds no
// "{ ... }" span.
var ErrNoJSONObject = errors.New("nlp: no JSON object in response")

// fenceReplacer removes markdown code-fence markers. The language tag is
// removed before the bare fence so "```json" leaves nothing behind.
var fenceReplacer = strings.NewReplacer("```json", "", "```JSON", "", "```", "")

// StripFences removes markdown code-fence markers from s.
func StripFences(s string) string {
	return strings.TrimSpace(fenceReplacer.Replace(s))
}

// ScanObject returns the substring from the first '{' to the last '}'
// inclusive. The second result is false when either brace is missing or
// they are out of order.
func ScanObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// RecoverObject brace-scans raw and decodes the candidate into v.
func RecoverObject(raw string, v any) error {
	candidate, ok := ScanObject(raw)
	if !ok {
		return ErrNoJSONObject
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return fmt.Errorf("nlp: decode recovered object: %w", err)
	}
	return nil
}

// stringify renders an arbitrary decoded JSON value as plain text. Models
// sometimes return args as a number or a list instead of a string.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := stringify(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
