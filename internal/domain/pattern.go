package domain

import (
	"regexp"
	"strings"
)

// compilePattern anchors pattern into a case-insensitive regex over a bare
// domain. "*" inside a label becomes [^.]*; a leading "*." token becomes
// (?:[^.]+\.)+ so it matches a subdomain of any depth (one label or
// more). The bare apex is not matched; it must be listed separately.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	labels := strings.Split(pattern, ".")

	var parts []string
	start := 0
	if len(labels) > 1 && labels[0] == "*" {
		parts = append(parts, `(?:[^.]+\.)+`)
		start = 1
	}

	var tail []string
	for i := start; i < len(labels); i++ {
		tail = append(tail, compileLabel(labels[i]))
	}
	parts = append(parts, strings.Join(tail, `\.`))

	expr := "(?i)^" + strings.Join(parts, "") + "$"
	return regexp.Compile(expr)
}

// compileLabel turns one dot-separated label into a regex fragment,
// escaping literal characters and expanding each "*" to [^.]*.
func compileLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		if r == '*' {
			b.WriteString(`[^.]*`)
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	return b.String()
}

// hasNonWildcardLabel reports whether pattern contains at least one label
// with no "*" character — the invariant that rejects "*" and "*.*".
func hasNonWildcardLabel(pattern string) bool {
	for _, label := range strings.Split(pattern, ".") {
		if label != "" && !strings.Contains(label, "*") {
			return true
		}
	}
	return false
}
