package inspect

import (
	"encoding/json"
	"strings"
)

// VariableInfo is one entry of the decoded introspection payload (§4.12).
type VariableInfo struct {
	Type        string           `json:"type"`
	Repr        string           `json:"repr"`
	Shape       []int            `json:"shape,omitempty"`
	Columns     map[string]string `json:"columns,omitempty"`
	Length      int              `json:"length,omitempty"`
	Keys        []string         `json:"keys,omitempty"`
	MemoryBytes int              `json:"memory_bytes,omitempty"`
}

// ParseResult decodes the JSON line the injected script printed. The
// kernel bridge folds stdout into a text summary that may carry a trailing
// newline or surrounding stream noise, so this takes the last non-empty
// line rather than assuming the entire string is the payload.
func ParseResult(textSummary string) (map[string]VariableInfo, error) {
	lines := strings.Split(strings.TrimSpace(textSummary), "\n")
	last := lines[len(lines)-1]

	var out map[string]VariableInfo
	if err := json.Unmarshal([]byte(last), &out); err != nil {
		return nil, err
	}
	return out, nil
}
