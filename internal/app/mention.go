package app

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var mentionRe = regexp.MustCompile(`\B@(\w+)`)

const snippetLen = 100

// extractMentions returns the distinct usernames mentioned in content, in
// order of first appearance. Matching ignores case.
func extractMentions(content string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range mentionRe.FindAllStringSubmatch(content, -1) {
		key := strings.ToLower(m[1])
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// mentions reports whether content mentions username.
func mentions(content, username string) bool {
	if username == "" {
		return false
	}
	for _, m := range mentionRe.FindAllStringSubmatch(content, -1) {
		if strings.EqualFold(m[1], username) {
			return true
		}
	}
	return false
}

// firstKeyword returns the first keyword found in content, ignoring case.
func firstKeyword(content string, keywords []string) (string, bool) {
	lower := strings.ToLower(content)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

func snippet(content string) string {
	if utf8.RuneCountInString(content) <= snippetLen {
		return content
	}
	return string([]rune(content)[:snippetLen]) + "…"
}
