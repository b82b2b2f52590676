package graph

import (
	"strconv"
	"strings"
)

// toSnake normalizes a kebab-case field name to snake_case so both
// spellings ("output-to" and "output_to") resolve to the same lookup.
func toSnake(s string) string {
	return strings.ReplaceAll(s, "-", "_")
}

// field looks up a key in m accepting either kebab-case or snake_case.
func field(m map[string]any, name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	snake := toSnake(name)
	if v, ok := m[snake]; ok {
		return v, true
	}
	kebab := strings.ReplaceAll(name, "_", "-")
	if v, ok := m[kebab]; ok {
		return v, true
	}
	for k, v := range m {
		if toSnake(k) == snake {
			return v, true
		}
	}
	return nil, false
}

func fieldString(m map[string]any, name string) string {
	v, ok := field(m, name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func fieldBool(m map[string]any, name string) bool {
	v, ok := field(m, name)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func fieldInt(m map[string]any, name string) (int, bool) {
	v, ok := field(m, name)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	return 0, false
}

func fieldMap(m map[string]any, name string) map[string]any {
	v, ok := field(m, name)
	if !ok {
		return nil
	}
	return asMap(v)
}

// asMap normalizes either map[string]any (JSON) or map[any]any (some YAML
// decode paths) into map[string]any.
func asMap(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out
	}
	return nil
}

func fieldStringMap(m map[string]any, name string) map[string]string {
	sub := fieldMap(m, name)
	if sub == nil {
		return nil
	}
	out := make(map[string]string, len(sub))
	for k, v := range sub {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func fieldStringSlice(m map[string]any, name string) []string {
	v, ok := field(m, name)
	if !ok {
		return nil
	}
	return asStringSlice(v)
}

func asStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			switch es := e.(type) {
			case string:
				out = append(out, es)
			default:
				out = append(out, toStringAny(es))
			}
		}
		return out
	}
	return nil
}

func toStringAny(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.Itoa(int(t))
	default:
		return ""
	}
}
