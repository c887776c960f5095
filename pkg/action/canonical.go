package action

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CanonicalJSON serializes v deterministically: object keys sorted, no
// insignificant whitespace. Policy pattern matching and request hashing
// both operate on this form, so it must stay stable across releases.
func CanonicalJSON(v any) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString(strconv.FormatBool(val))
	case string:
		b, _ := json.Marshal(val)
		sb.Write(b)
	case float64:
		sb.WriteString(formatNumber(val))
	case int:
		sb.WriteString(strconv.Itoa(val))
	case int64:
		sb.WriteString(strconv.FormatInt(val, 10))
	case json.Number:
		sb.WriteString(val.String())
	case map[string]any:
		writeCanonicalMap(sb, val)
	case Params:
		writeCanonicalMap(sb, val)
	case Context:
		writeCanonicalMap(sb, val)
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		// Fall back to encoding/json for anything exotic. Maps inside are
		// already sorted by encoding/json since Go 1.12.
		b, err := json.Marshal(val)
		if err != nil {
			b, _ = json.Marshal(fmt.Sprint(val))
		}
		sb.Write(b)
	}
}

func writeCanonicalMap(sb *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		sb.Write(kb)
		sb.WriteByte(':')
		writeCanonical(sb, m[k])
	}
	sb.WriteByte('}')
}

// formatNumber renders integral floats without a fractional part so that
// params decoded from JSON ({"n": 5}) canonicalize to "5", not "5e+00".
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
