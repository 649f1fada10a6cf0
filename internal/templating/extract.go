package templating

import (
	"fmt"
	"regexp"

	"mass-messaging/pkg/models"
)

// Grammar is a placeholder syntax
type Grammar int

const (
	// Double is the {{token}} syntax used by chat templates and free text
	Double Grammar = iota
	// Single is the {token} syntax used by legacy email templates
	Single
)

func (g Grammar) String() string {
	if g == Single {
		return "single"
	}
	return "double"
}

// ParseGrammar accepts "double" or "single"; anything else is Double
func ParseGrammar(s string) Grammar {
	if s == "single" {
		return Single
	}
	return Double
}

var (
	doublePlaceholder = regexp.MustCompile(`\{\{(\w+)\}\}`)
	singlePlaceholder = regexp.MustCompile(`\{(\w+)\}`)
)

// Placeholder renders name in the grammar's marker form
func Placeholder(name string, g Grammar) string {
	if g == Single {
		return fmt.Sprintf("{%s}", name)
	}
	return fmt.Sprintf("{{%s}}", name)
}

// Extract returns the placeholder tokens of text in first-seen order.
// Tokens are compared case-sensitively; repeated tokens are reported once.
func Extract(text string, g Grammar) []string {
	vars := []string{}
	seen := map[string]struct{}{}
	for _, m := range matches(text, g) {
		token := text[m[2]:m[3]]
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		vars = append(vars, token)
	}
	return vars
}

// ExtractFields runs Extract over every field and unions the results,
// keeping the first-seen order across fields.
func ExtractFields(g Grammar, fields ...string) []string {
	vars := []string{}
	seen := map[string]struct{}{}
	for _, field := range fields {
		for _, token := range Extract(field, g) {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			vars = append(vars, token)
		}
	}
	return vars
}

// matches returns submatch indexes of every placeholder in text. For the
// single grammar a {token} that is itself wrapped in a second pair of braces
// belongs to the double grammar and is skipped.
func matches(text string, g Grammar) [][]int {
	if g == Double {
		return doublePlaceholder.FindAllStringSubmatchIndex(text, -1)
	}
	all := singlePlaceholder.FindAllStringSubmatchIndex(text, -1)
	out := all[:0:0]
	for _, m := range all {
		if m[0] > 0 && text[m[0]-1] == '{' && m[1] < len(text) && text[m[1]] == '}' {
			continue
		}
		out = append(out, m)
	}
	return out
}

// TemplateVariables extracts the variables of a stored template, subject first
func TemplateVariables(tpl models.Template, g Grammar) []string {
	return ExtractFields(g, tpl.Subject, tpl.Content)
}
