// Package template renders the {{placeholder}} prompt texts sent to the model.
package template

import (
	"regexp"
	"sort"
)

// placeholderPattern matches {{name}} placeholders.
var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// Vars maps placeholder names to their values.
type Vars map[string]string

// Render substitutes every known {{name}} in text with its value. Unknown
// placeholders are left untouched. Substituted values are not rescanned, so
// generated code containing braces cannot inject further placeholders.
func Render(text string, vars Vars) string {
	if len(vars) == 0 {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[2 : len(match)-2]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

// Placeholders returns the distinct placeholder names used in text, sorted.
func Placeholders(text string) []string {
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		seen[m[1]] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Unknown returns placeholders in text that are not in allowed.
func Unknown(text string, allowed ...string) []string {
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[a] = true
	}
	var out []string
	for _, n := range Placeholders(text) {
		if !ok[n] {
			out = append(out, n)
		}
	}
	return out
}
