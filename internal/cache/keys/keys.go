// Package keys builds deterministic redis keys for cached facility
// queries. Keys stay human readable for debugging; an xxhash suffix of
// the unsanitized input guarantees two different queries never collide
// after sanitization.
package keys

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Query builds the key for one per-org facility fetch:
// fac:<org>:<bbox>:t=<types>:f=<hash>. Types are sorted so filter
// order never splits the cache.
func Query(orgID, bbox string, types []string) string {
	sorted := make([]string, len(types))
	copy(sorted, types)
	sort.Strings(sorted)
	typeText := strings.Join(sorted, ",")

	raw := orgID + "|" + bbox + "|" + typeText
	sum := xxhash.Sum64String(raw)

	orgSafe := sanitizeForKey(strings.TrimSpace(orgID))
	typeSafe := sanitizeForKey(typeText)

	const maxTypeTextLen = 120
	if len(typeSafe) > maxTypeTextLen {
		typeSafe = typeSafe[:maxTypeTextLen]
	}

	return fmt.Sprintf("fac:%s:%s:t=%s:f=%016x", orgSafe, bbox, typeSafe, sum)
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || r == '=' || r == ',' || r == '.':
			out = r
		default:
			// any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
