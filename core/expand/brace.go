package expand

import (
	"strconv"
	"strings"
)

// braceExpand rewrites a{b,c}d into abd acd, and expands {1..3} and
// {a..c} ranges. Braces inside quotes or substitutions stay literal, as
// does a brace group with no alternatives.
func braceExpand(word string) []string {
	start, end, ok := findBraceGroup(word)
	if !ok {
		return []string{word}
	}

	prefix := word[:start]
	body := word[start+1 : end]
	rest := word[end+1:]

	alts := splitAlternatives(body)
	if alts == nil {
		alts = rangeAlternatives(body)
	}
	if alts == nil {
		// Not an expansion; keep the braces and move past the group.
		var out []string
		for _, tail := range braceExpand(rest) {
			out = append(out, word[:end+1]+tail)
		}
		return out
	}

	var out []string
	for _, alt := range alts {
		for _, expanded := range braceExpand(alt + rest) {
			out = append(out, prefix+expanded)
		}
	}
	return out
}

// findBraceGroup locates the first unquoted top-level {...} group.
func findBraceGroup(s string) (int, int, bool) {
	i := 0
	for i < len(s) {
		switch s[i] {
		case '\\':
			i += 2
			continue
		case '\'':
			j := strings.IndexByte(s[i+1:], '\'')
			if j < 0 {
				return 0, 0, false
			}
			i += j + 2
			continue
		case '"':
			for i++; i < len(s) && s[i] != '"'; i++ {
				if s[i] == '\\' {
					i++
				}
			}
			i++
			continue
		case '$':
			// ${name} and $(...) are not brace groups.
			if i+1 < len(s) && (s[i+1] == '{' || s[i+1] == '(') {
				open, closeCh := s[i+1], byte('}')
				if open == '(' {
					closeCh = ')'
				}
				_, n, ok := balanced(s[i+1:], open, closeCh)
				if !ok {
					return 0, 0, false
				}
				i += 1 + n
				continue
			}
		case '{':
			if end, ok := matchBrace(s, i); ok {
				return i, end, true
			}
		}
		i++
	}
	return 0, 0, false
}

// matchBrace finds the closing brace for the group opening at s[open].
func matchBrace(s string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// splitAlternatives splits a brace body on top-level commas. A body
// with no comma is not an alternative list.
func splitAlternatives(body string) []string {
	var alts []string
	depth := 0
	last := 0
	found := false
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				alts = append(alts, body[last:i])
				last = i + 1
				found = true
			}
		}
	}
	if !found {
		return nil
	}
	return append(alts, body[last:])
}

// rangeAlternatives expands numeric {1..5} and single-character {a..e}
// ranges, ascending or descending.
func rangeAlternatives(body string) []string {
	dots := strings.Index(body, "..")
	if dots < 0 {
		return nil
	}
	lo, hi := body[:dots], body[dots+2:]

	if a, errA := strconv.Atoi(lo); errA == nil {
		b, errB := strconv.Atoi(hi)
		if errB != nil {
			return nil
		}
		var out []string
		if a <= b {
			for n := a; n <= b; n++ {
				out = append(out, strconv.Itoa(n))
			}
		} else {
			for n := a; n >= b; n-- {
				out = append(out, strconv.Itoa(n))
			}
		}
		return out
	}

	if len(lo) == 1 && len(hi) == 1 && isAlpha(lo[0]) && isAlpha(hi[0]) {
		a, b := lo[0], hi[0]
		var out []string
		if a <= b {
			for c := a; c <= b; c++ {
				out = append(out, string(rune(c)))
			}
		} else {
			for c := a; c >= b; c-- {
				out = append(out, string(rune(c)))
			}
		}
		return out
	}

	return nil
}

func isAlpha(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
