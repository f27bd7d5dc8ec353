// Package sqlident holds every identifier and literal quoting rule used when building Snowflake statements.
package sqlident

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spaolacci/murmur3"
)

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Quote returns name as a double-quoted identifier, preserving case and escaping embedded quotes.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Qualified quotes each part and joins them with dots.
func Qualified(parts ...string) string {
	quoted := make([]string, 0, len(parts))
	for _, part := range parts {
		quoted = append(quoted, Quote(part))
	}
	return strings.Join(quoted, ".")
}

// QuoteList quotes each column name and joins them with commas.
func QuoteList(names []string) string {
	quoted := make([]string, 0, len(names))
	for _, name := range names {
		quoted = append(quoted, Quote(name))
	}
	return strings.Join(quoted, ", ")
}

// Literal returns s as a single-quoted string literal.
func Literal(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `''`)
	return `'` + s + `'`
}

// Unquote parses an identifier token as it appears in a statement.
// Quoted tokens are returned verbatim with doubled quotes collapsed, unquoted tokens are upper-cased
// since that is how the catalog stores them.
func Unquote(token string) string {
	if len(token) >= 2 && strings.HasPrefix(token, `"`) && strings.HasSuffix(token, `"`) {
		return strings.ReplaceAll(token[1:len(token)-1], `""`, `"`)
	}
	return strings.ToUpper(token)
}

// PathSafe reduces name to characters that can appear unquoted in a stage path or a local directory name.
func PathSafe(name string) string {
	return unsafePathChars.ReplaceAllString(name, "_")
}

// PathKey is PathSafe(name) followed by a hash of the raw name, so names that sanitize alike stay apart.
func PathKey(name string) string {
	return fmt.Sprintf("%s_%08x", PathSafe(name), murmur3.Sum32([]byte(name)))
}
