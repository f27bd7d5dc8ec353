// Package ddl rewrites source table DDL so it can be executed against the target namespace.
package ddl

import (
	"regexp"
	"strings"

	"github.com/rudderlabs/sf-migrate/migrator/internal/sqlident"
	"github.com/rudderlabs/sf-migrate/migrator/model"
)

const (
	identifier    = `(?:"(?:[^"]|"")+"|[A-Za-z_][A-Za-z0-9_$]*)`
	quotedIdent   = `"(?:[^"]|"")+"`
	stringLiteral = `'(?:[^'\\]|\\.|'')*'`
	qualified     = identifier + `\.` + identifier + `\.` + identifier
)

var (
	// literals and quoted identifiers are matched first so nothing inside them is rewritten
	namespaceScan = regexp.MustCompile(stringLiteral + `|` + qualified + `|` + quotedIdent)
	qualifiedName = regexp.MustCompile(`^(` + identifier + `)\.(` + identifier + `)\.(` + identifier + `)$`)
	createVerb    = regexp.MustCompile(`(?is)^\s*create\s+(?:or\s+replace\s+)?`)
	commentScan   = regexp.MustCompile(`(?i)` + stringLiteral + `|` + quotedIdent + `|(?:\)|\s)\s*comment\s*=?\s*` + stringLiteral)
)

// Rewriter moves DDL from one database.schema to another.
type Rewriter struct {
	sourceDatabase, sourceSchema string
	targetDatabase, targetSchema string
}

func New(sourceDatabase, sourceSchema, targetDatabase, targetSchema string) *Rewriter {
	return &Rewriter{
		sourceDatabase: sourceDatabase,
		sourceSchema:   sourceSchema,
		targetDatabase: targetDatabase,
		targetSchema:   targetSchema,
	}
}

// Rewrite applies, in order:
//  1. source namespace references become target namespace references, object names untouched
//  2. the statement becomes CREATE OR REPLACE
//  3. COMMENT attributes are removed
func (r *Rewriter) Rewrite(stmt model.DDLStatement) model.DDLStatement {
	s := namespaceScan.ReplaceAllStringFunc(string(stmt), r.replaceNamespace)
	s = createVerb.ReplaceAllString(s, "CREATE OR REPLACE ")
	s = commentScan.ReplaceAllStringFunc(s, stripComment)
	return model.DDLStatement(s)
}

func (r *Rewriter) replaceNamespace(match string) string {
	parts := qualifiedName.FindStringSubmatch(match)
	if parts == nil {
		return match
	}
	if !strings.EqualFold(sqlident.Unquote(parts[1]), r.sourceDatabase) ||
		!strings.EqualFold(sqlident.Unquote(parts[2]), r.sourceSchema) {
		return match
	}
	return sqlident.Qualified(r.targetDatabase, r.targetSchema) + "." + parts[3]
}

// stripComment drops a COMMENT attribute, keeping the closing parenthesis GET_DDL glues to a table comment.
func stripComment(match string) string {
	switch match[0] {
	case '\'', '"':
		return match
	case ')':
		return ")"
	default:
		return ""
	}
}
