package migrator

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alexeyco/simpletable"
	"github.com/samber/lo"

	"github.com/rudderlabs/rudder-go-kit/logger"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/rudderlabs/sf-migrate/migrator/logfield"
	"github.com/rudderlabs/sf-migrate/migrator/model"
)

// AuditCatalog is the read-only subset of a catalog needed to profile tables.
type AuditCatalog interface {
	ListTables(ctx context.Context, database, schema string) ([]string, error)
	Columns(ctx context.Context, ref model.TableRef) ([]string, error)
	RowCount(ctx context.Context, ref model.TableRef) (int64, error)
	SampleRows(ctx context.Context, ref model.TableRef, columns []string, limit int) ([][]string, error)
	NullCounts(ctx context.Context, ref model.TableRef, columns []string) ([]int64, error)
}

// TableAudit is a data-quality profile of one table.
type TableAudit struct {
	Table      string
	Columns    []string
	Rows       int64
	Sample     [][]string
	NullCounts []int64
	Error      string
}

// ColumnsWithNulls returns the columns holding at least one NULL.
func (a TableAudit) ColumnsWithNulls() []string {
	var columns []string
	for i, count := range a.NullCounts {
		if count > 0 && i < len(a.Columns) {
			columns = append(columns, a.Columns[i])
		}
	}
	return columns
}

type Auditor struct {
	catalog    AuditCatalog
	database   string
	schema     string
	sampleRows int
	log        logger.Logger
}

func NewAuditor(catalog AuditCatalog, database, schema string, sampleRows int, log logger.Logger) *Auditor {
	return &Auditor{
		catalog:    catalog,
		database:   database,
		schema:     schema,
		sampleRows: sampleRows,
		log:        log.Child("audit"),
	}
}

// Audit profiles each table. A table that cannot be read is reported with its error and does not stop the audit.
func (a *Auditor) Audit(ctx context.Context, tables []string) ([]TableAudit, error) {
	names, err := a.catalog.ListTables(ctx, a.database, a.schema)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	folded := lo.Associate(names, func(name string) (string, string) {
		return strings.ToUpper(name), name
	})

	audits := make([]TableAudit, 0, len(tables))
	for _, requested := range normalizeTables(tables) {
		if ctx.Err() != nil {
			return audits, ctx.Err()
		}
		name, ok := folded[strings.ToUpper(requested)]
		if !ok {
			audits = append(audits, TableAudit{Table: requested, Error: "table not found"})
			continue
		}

		audit, err := a.audit(ctx, model.TableRef{Database: a.database, Schema: a.schema, Name: name})
		if err != nil {
			a.log.Warnn("Auditing table", logger.NewStringField(logfield.TableName, name), obskit.Error(err))
			audit.Error = err.Error()
		}
		audits = append(audits, audit)
	}
	return audits, nil
}

func (a *Auditor) audit(ctx context.Context, ref model.TableRef) (TableAudit, error) {
	audit := TableAudit{Table: ref.Name}

	var err error
	if audit.Columns, err = a.catalog.Columns(ctx, ref); err != nil {
		return audit, err
	}
	if audit.Rows, err = a.catalog.RowCount(ctx, ref); err != nil {
		return audit, err
	}
	if a.sampleRows > 0 {
		if audit.Sample, err = a.catalog.SampleRows(ctx, ref, audit.Columns, a.sampleRows); err != nil {
			return audit, err
		}
	}
	if audit.NullCounts, err = a.catalog.NullCounts(ctx, ref, audit.Columns); err != nil {
		return audit, err
	}
	return audit, nil
}

// RenderAudits writes one block per table and a closing summary of tables containing NULLs.
func RenderAudits(w io.Writer, audits []TableAudit) {
	for _, audit := range audits {
		_, _ = fmt.Fprintf(w, "\n%s\n", audit.Table)
		if audit.Error != "" {
			_, _ = fmt.Fprintf(w, "error: %s\n", audit.Error)
			continue
		}
		_, _ = fmt.Fprintf(w, "rows: %d\n", audit.Rows)

		if len(audit.Sample) > 0 {
			sample := simpletable.New()
			sample.Header = &simpletable.Header{Cells: headerCells(audit.Columns)}
			for _, row := range audit.Sample {
				sample.Body.Cells = append(sample.Body.Cells, lo.Map(row, func(value string, _ int) *simpletable.Cell {
					return &simpletable.Cell{Align: simpletable.AlignLeft, Text: value}
				}))
			}
			sample.SetStyle(simpletable.StyleCompactLite)
			_, _ = fmt.Fprintln(w, sample.String())
		}

		nulls := simpletable.New()
		nulls.Header = &simpletable.Header{Cells: headerCells([]string{"Column", "Nulls"})}
		for i, column := range audit.Columns {
			count := int64(0)
			if i < len(audit.NullCounts) {
				count = audit.NullCounts[i]
			}
			nulls.Body.Cells = append(nulls.Body.Cells, []*simpletable.Cell{
				{Align: simpletable.AlignLeft, Text: column},
				{Align: simpletable.AlignRight, Text: strconv.FormatInt(count, 10)},
			})
		}
		nulls.SetStyle(simpletable.StyleCompactLite)
		_, _ = fmt.Fprintln(w, nulls.String())
	}

	withNulls := lo.Filter(audits, func(audit TableAudit, _ int) bool {
		return len(audit.ColumnsWithNulls()) > 0
	})
	_, _ = fmt.Fprintln(w)
	if len(withNulls) == 0 {
		_, _ = fmt.Fprintln(w, "No NULL values found")
		return
	}
	_, _ = fmt.Fprintln(w, "Tables with NULL values:")
	for _, audit := range withNulls {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", audit.Table, strings.Join(audit.ColumnsWithNulls(), ", "))
	}
}

func headerCells(names []string) []*simpletable.Cell {
	return lo.Map(names, func(name string, _ int) *simpletable.Cell {
		return &simpletable.Cell{Align: simpletable.AlignCenter, Text: name}
	})
}
