package services

import (
	"encoding/json"
	"strings"
)

// LegacySelectionDelimiter joined checkbox selections before selections were
// stored as JSON arrays. It can collide with option text, so it is only read.
const LegacySelectionDelimiter = ",,,"

// EncodeSelection stores a checkbox selection as a JSON array of strings, in
// the order given and without duplicates. An empty selection encodes to "".
func EncodeSelection(selected []string) string {
	if len(selected) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(selected))
	uniq := make([]string, 0, len(selected))
	for _, s := range selected {
		if seen[s] {
			continue
		}
		seen[s] = true
		uniq = append(uniq, s)
	}
	b, err := json.Marshal(uniq)
	if err != nil {
		// []string always marshals
		panic(err)
	}
	return string(b)
}

// DecodeSelection reverses EncodeSelection. Values that are not JSON arrays are
// split on LegacySelectionDelimiter.
func DecodeSelection(value string) ([]string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return []string{}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var out []string
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
			return nil, NewInvalidError("malformed selection: " + err.Error())
		}
		if out == nil {
			out = []string{}
		}
		return out, nil
	}
	return strings.Split(value, LegacySelectionDelimiter), nil
}
