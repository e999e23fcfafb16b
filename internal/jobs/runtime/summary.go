package runtime

import "sort"

// Result is what stage logic reports back. Only allow-listed scalar keys
// survive into responses and metrics rows.
type Result map[string]any

var allowList = map[string][]string{
	StageIngest:   {"sources", "fetched", "inserted", "duplicates", "disabled", "skipped", "failed", "errors"},
	StageCluster:  {"clusters", "items", "updated", "rejected", "skipped", "failed", "errors"},
	StageGenerate: {"drafts_created", "drafts_updated", "skipped", "failed", "errors"},
}

// itemKeys name the counters summed into the metrics row "items" column.
var itemKeys = map[string][]string{
	StageIngest:   {"inserted"},
	StageCluster:  {"items"},
	StageGenerate: {"drafts_created", "drafts_updated"},
}

func AllowedKeys(stage string) []string {
	keys := append([]string(nil), allowList[stage]...)
	sort.Strings(keys)
	return keys
}

// Summarize keeps the allow-listed keys of r whose values are numbers, bools
// or strings. Integer kinds are widened to int64.
func Summarize(stage string, r Result) Result {
	out := Result{}
	for _, k := range allowList[stage] {
		v, ok := r[k]
		if !ok {
			continue
		}
		if s, ok := scalar(v); ok {
			out[k] = s
		}
	}
	return out
}

// ZeroResult is the result shape returned when a stage has no logic wired.
func ZeroResult(stage string) Result {
	out := Result{}
	for _, k := range allowList[stage] {
		out[k] = int64(0)
	}
	return out
}

// ItemCount extracts the stage's work counter from a summary.
func ItemCount(stage string, summary Result) int64 {
	var n int64
	for _, k := range itemKeys[stage] {
		n += asInt(summary[k])
	}
	return n
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func scalar(v any) (any, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return float64(n), true
	case float64, bool, string:
		return n, true
	}
	return nil, false
}
