package merge

import (
	"regexp"
	"strings"
)

// tokenPattern matches a field token such as {{firstName}}.
var tokenPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// Token returns the literal placeholder text for a field name.
func Token(name string) string {
	return "{{" + name + "}}"
}

// Substitute replaces every occurrence of {{key}} in content with the row's
// value for key. Replacement is a single left-to-right pass, so a value that
// itself contains {{...}} is never expanded again. Tokens without a matching
// key are left verbatim. Empty keys are ignored.
func Substitute(content string, row DataRow) string {
	if row.Len() == 0 || !strings.Contains(content, "{{") {
		return content
	}
	pairs := make([]string, 0, row.Len()*2)
	for _, k := range row.keys {
		if k == "" {
			continue
		}
		pairs = append(pairs, Token(k), row.values[k])
	}
	if len(pairs) == 0 {
		return content
	}
	return strings.NewReplacer(pairs...).Replace(content)
}

// Tokens returns the distinct field names referenced by content, in order of
// first appearance.
func Tokens(content string) []string {
	matches := tokenPattern.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}

// FieldCoverage compares the tokens a template uses against the headers a
// data source provides.
type FieldCoverage struct {
	Tokens        []string `json:"tokens"`
	Matched       []string `json:"matched"`
	Unmatched     []string `json:"unmatched"`     // tokens left verbatim in output
	UnusedHeaders []string `json:"unusedHeaders"` // headers no token refers to
}

// Coverage reports which template tokens are satisfied by headers.
func Coverage(tokens, headers []string) FieldCoverage {
	hs := make(map[string]bool, len(headers))
	for _, h := range headers {
		hs[h] = true
	}
	ts := make(map[string]bool, len(tokens))

	cov := FieldCoverage{
		Tokens:        tokens,
		Matched:       []string{},
		Unmatched:     []string{},
		UnusedHeaders: []string{},
	}
	for _, t := range tokens {
		ts[t] = true
		if hs[t] {
			cov.Matched = append(cov.Matched, t)
		} else {
			cov.Unmatched = append(cov.Unmatched, t)
		}
	}
	for _, h := range headers {
		if !ts[h] {
			cov.UnusedHeaders = append(cov.UnusedHeaders, h)
		}
	}
	return cov
}
