package runtime

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

// placeholderPattern matches {name}, {nested.key} and {session.data.name}.
// Group 1 is the optional session.data. prefix, group 2 the identifier.
var placeholderPattern = regexp.MustCompile(`\{(session\.data\.)?([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\}`)

const sessionDataPrefix = "session.data."

// Resolve substitutes every placeholder in text with the stringified value found in data.
// Tokens whose identifier is absent from data are left verbatim.
// Resolution is a single pass: substituted values are never re-scanned.
func Resolve(text string, data map[string]any) string {
	matches := placeholderPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		key := text[m[4]:m[5]]

		b.WriteString(text[last:start])
		if v, ok := Lookup(data, key); ok {
			b.WriteString(Stringify(v))
		} else {
			b.WriteString(text[start:end])
		}
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

// ResolveValue applies Resolve to every string reachable inside v.
// Maps and slices are copied; other values are returned unchanged.
func ResolveValue(v any, data map[string]any) any {
	switch val := v.(type) {
	case string:
		return Resolve(val, data)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = ResolveValue(item, data)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ResolveValue(item, data)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			out[k] = Resolve(item, data)
		}
		return out
	}
	return v
}

// Lookup finds key in data. An exact key match wins; otherwise a dotted key
// walks nested maps and slices (numeric segments index slices).
func Lookup(data map[string]any, key string) (any, bool) {
	key = strings.TrimPrefix(key, sessionDataPrefix)
	if v, ok := data[key]; ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}

	var cur any = data
	for _, part := range strings.Split(key, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := cast.ToIntE(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Stringify renders a session value for substitution into text.
// Scalars use their natural form; maps and slices are rendered as JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case map[string]any, []any, map[string]string, []string:
		if raw, err := json.Marshal(val); err == nil {
			return string(raw)
		}
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	if raw, err := json.Marshal(v); err == nil {
		return string(raw)
	}
	return fmt.Sprintf("%v", v)
}
