package appeal

import (
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Render replaces every {{key}} placeholder (inner whitespace allowed, key
// matched case-insensitively) with its value from vars. Keys in vars must be
// lower case. Unknown placeholders are left verbatim.
func Render(text string, vars map[string]string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[strings.ToLower(key)]; ok {
			return v
		}
		return m
	})
}

// Unresolved lists the distinct placeholder keys left in text.
func Unresolved(text string) []string {
	seen := map[string]bool{}
	var keys []string
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		k := strings.ToLower(m[1])
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}
