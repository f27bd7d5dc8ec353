package snowflake

import (
	"fmt"
	"strings"
)

// fileFormat is the CSV dialect shared by unload and load so both sides agree on
// delimiters, enclosure and how NULL differs from an empty string.
type fileFormat struct {
	fieldDelimiter         string
	recordDelimiter        string
	enclosedBy             string
	nullMarker             string
	escapeUnenclosedFields string
}

var csvFormat = fileFormat{
	fieldDelimiter:         `','`,
	recordDelimiter:        `'\n'`,
	enclosedBy:             `'"'`,
	nullMarker:             `'\\N'`,
	escapeUnenclosedFields: `NONE`,
}

func (f fileFormat) options(extra ...string) string {
	options := []string{
		"TYPE = CSV",
		"FIELD_DELIMITER = " + f.fieldDelimiter,
		"RECORD_DELIMITER = " + f.recordDelimiter,
		"FIELD_OPTIONALLY_ENCLOSED_BY = " + f.enclosedBy,
		"NULL_IF = (" + f.nullMarker + ")",
		"EMPTY_FIELD_AS_NULL = FALSE",
		"ESCAPE_UNENCLOSED_FIELD = " + f.escapeUnenclosedFields,
	}
	options = append(options, extra...)
	return fmt.Sprintf("FILE_FORMAT = (%s)", strings.Join(options, " "))
}

// unload is used when exporting a table: gzip output with a header row.
func (f fileFormat) unload() string {
	return f.options("COMPRESSION = GZIP")
}

// load is used when importing: the header row drives column matching.
func (f fileFormat) load() string {
	return f.options("PARSE_HEADER = TRUE", "COMPRESSION = AUTO")
}
