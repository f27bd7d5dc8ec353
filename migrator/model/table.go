package model

import (
	"strings"

	"github.com/rudderlabs/sf-migrate/migrator/internal/sqlident"
)

// TableRef identifies a table. Names are kept as the catalog stores them and compared case-insensitively.
type TableRef struct {
	Database string
	Schema   string
	Name     string
}

// Fq returns the fully qualified, quoted name of the table.
func (t TableRef) Fq() string {
	return sqlident.Qualified(t.Database, t.Schema, t.Name)
}

// Namespace returns the quoted database.schema pair.
func (t TableRef) Namespace() string {
	return sqlident.Qualified(t.Database, t.Schema)
}

func (t TableRef) String() string {
	return t.Database + "." + t.Schema + "." + t.Name
}

// InNamespace returns the same table name in another namespace.
func (t TableRef) InNamespace(database, schema string) TableRef {
	return TableRef{Database: database, Schema: schema, Name: t.Name}
}

// TableDescriptor is a point-in-time snapshot of a table.
type TableDescriptor struct {
	TableRef

	Columns  []string
	RowCount int64
}

// SameColumns reports whether both column lists hold the same names in the same order, ignoring case.
func SameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

// DDLStatement is a table creation statement.
type DDLStatement string
