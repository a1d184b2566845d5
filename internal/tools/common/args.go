package common

import "strings"

// ParseCommaList splits a comma-separated argument, trimming blanks.
func ParseCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// StringList reads a tool argument given either as an array of strings or
// as a comma-separated string.
func StringList(args map[string]any, key string) []string {
	if v, ok := args[key].(string); ok {
		return ParseCommaList(v)
	}
	return StringValues(args, key)
}

// StringValues reads a tool argument given either as an array of strings or
// as a single string. Unlike StringList a string is never split, so values
// that contain commas (data URLs) survive intact.
func StringValues(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return []string{v}
		}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}
