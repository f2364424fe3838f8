package skills

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// placeholderRe matches ${name}. Names cannot contain '$', '{' or '}', so in
// "${a${b}}" only "${b}" is a placeholder.
var placeholderRe = regexp.MustCompile(`\$\{([^${}]+)\}`)

// Substitute replaces ${name} placeholders in v with values from vars.
// Strings are scanned once, left to right, with one lookup per placeholder;
// replacement text is never scanned again. Maps and slices are copied
// recursively, other values are returned as is. Placeholders without a value
// are kept verbatim. Neither v nor vars is modified.
func Substitute(v any, vars map[string]any) any {
	switch t := v.(type) {
	case string:
		return substituteString(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Substitute(e, vars)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Substitute(e, vars)
		}
		return out
	default:
		return v
	}
}

func substituteString(s string, vars map[string]any) string {
	if len(vars) == 0 {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		val, ok := vars[m[2:len(m)-1]]
		if !ok {
			return m
		}
		return Stringify(val)
	})
}

// Stringify renders a context value as placeholder replacement text.
// Integral numbers print without a fraction; maps and slices print as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
