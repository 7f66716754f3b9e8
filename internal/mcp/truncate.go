package mcp

import (
	"encoding/json"
	"fmt"
)

// TruncationMarker prefixes every marker the invoker leaves on clipped data.
const TruncationMarker = "[truncated"

// OmittedSuffix is appended to an object key to record how many trailing
// items were dropped from the array stored under that key.
const OmittedSuffix = "_omitted"

// stringCaps are the successive per-string rune limits tried before any
// array items are dropped.
var stringCaps = []int{4096, 1024, 256, 64}

// ClipText limits s to max runes, appending a visible marker that states how
// much was cut. It reports whether clipping happened.
func ClipText(s string, max int) (string, bool) {
	if max < 0 {
		max = 0
	}
	r := []rune(s)
	if len(r) <= max {
		return s, false
	}
	return string(r[:max]) + fmt.Sprintf(" … %s: %d more chars]", TruncationMarker, len(r)-max), true
}

// FitBudget returns a value whose JSON encoding is at most budget bytes.
// Long strings are clipped first, then trailing array items are dropped with
// a count recorded under key+OmittedSuffix on the owning object, or as a
// trailing marker string for arrays not held by an object. As a last resort
// the payload is replaced by a small notice object.
func FitBudget(v any, budget int) (any, bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false, fmt.Errorf("encode structured content: %w", err)
	}
	if budget <= 0 || len(data) <= budget {
		return v, false, nil
	}

	var base any
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, false, fmt.Errorf("decode structured content: %w", err)
	}

	for _, limit := range stringCaps {
		base = clipStrings(base, limit)
		if size(base) <= budget {
			return base, true, nil
		}
	}

	for keep := longestArray(base) / 2; ; keep /= 2 {
		trimmed := trimArrays(cloneJSON(base), keep)
		if size(trimmed) <= budget {
			return trimmed, true, nil
		}
		if keep == 0 {
			break
		}
	}

	notice := map[string]any{
		"truncated": true,
		"message":   fmt.Sprintf("%s: structured payload of %d bytes exceeded the %d byte budget]", TruncationMarker, len(data), budget),
	}
	return notice, true, nil
}

func size(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}

func cloneJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = cloneJSON(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = cloneJSON(child)
		}
		return out
	default:
		return v
	}
}

func clipStrings(v any, limit int) any {
	switch val := v.(type) {
	case string:
		clipped, _ := ClipText(val, limit)
		return clipped
	case map[string]any:
		for k, child := range val {
			val[k] = clipStrings(child, limit)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = clipStrings(child, limit)
		}
		return val
	default:
		return v
	}
}

func longestArray(v any) int {
	longest := 0
	switch val := v.(type) {
	case map[string]any:
		for _, child := range val {
			longest = max(longest, longestArray(child))
		}
	case []any:
		longest = len(val)
		for _, child := range val {
			longest = max(longest, longestArray(child))
		}
	}
	return longest
}

func trimArrays(v any, keep int) any {
	switch val := v.(type) {
	case map[string]any:
		omitted := make(map[string]int)
		for k, child := range val {
			if arr, ok := child.([]any); ok && len(arr) > keep {
				omitted[k] = len(arr) - keep
				child = arr[:keep]
			}
			val[k] = trimArrays(child, keep)
		}
		for k, n := range omitted {
			if prev, ok := val[k+OmittedSuffix].(float64); ok {
				n += int(prev)
			}
			val[k+OmittedSuffix] = n
		}
		return val
	case []any:
		dropped := 0
		if len(val) > keep {
			dropped = len(val) - keep
			val = val[:keep]
		}
		for i, child := range val {
			val[i] = trimArrays(child, keep)
		}
		if dropped > 0 {
			val = append(val, fmt.Sprintf("%s: %d more items]", TruncationMarker, dropped))
		}
		return val
	default:
		return v
	}
}
