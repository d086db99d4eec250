package templates

import (
	"fmt"
	"strings"
	"text/template"
)

// Funcs are the helpers available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"contextAt": ContextAt,
		"join": func(sep string, items []any) string {
			parts := make([]string, 0, len(items))
			for _, it := range items {
				parts = append(parts, fmt.Sprint(it))
			}
			return strings.Join(parts, sep)
		},
		"default": func(def, v any) any {
			if v == nil || v == "" {
				return def
			}
			return v
		},
		"escapeLatex": EscapeLatex,
	}
}

// ContextAt returns the value at the dotted path under docCtx["data"]. The
// empty path is the data mapping itself; a missing path is an empty mapping.
func ContextAt(docCtx map[string]any, dotted string) map[string]any {
	cur, _ := docCtx["data"].(map[string]any)
	if dotted == "" {
		return cur
	}
	for _, part := range strings.Split(dotted, ".") {
		next, ok := cur[part].(map[string]any)
		if !ok {
			return map[string]any{}
		}
		cur = next
	}
	return cur
}

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

// EscapeLatex escapes the characters LaTeX treats specially.
func EscapeLatex(v any) string {
	return latexEscaper.Replace(fmt.Sprint(v))
}
