package migrator

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/rudderlabs/sf-migrate/migrator/internal/sqlident"
	"github.com/rudderlabs/sf-migrate/migrator/model"
)

const nullMarker = `\N`

var createTable = regexp.MustCompile(`(?is)^CREATE OR REPLACE TABLE\s+(\S+)\s*\((.*)\)\s*;?\s*$`)

// fakeTable holds rows as pointers so NULL differs from the empty string.
type fakeTable struct {
	columns []string
	rows    [][]*string
}

func (t *fakeTable) value(row []*string, column string) *string {
	for i, c := range t.columns {
		if strings.EqualFold(c, column) {
			return row[i]
		}
	}
	return nil
}

// fakeAccount is an in-memory warehouse with a user stage. It implements Catalog, Stage and Namespacer
// for a single account and records the operations it served.
type fakeAccount struct {
	database string
	schema   string

	tables     map[string]*fakeTable
	owners     map[string]model.OwnerRole
	grants     map[string][]model.Grant
	stage      map[string][]byte
	namespaces []string
	calls      []string

	// failures maps "<operation>:<table>" to the error the operation returns.
	failures map[string]error
	// panics lists "<operation>:<table>" pairs that panic.
	panics map[string]bool
	// silentExport lists tables whose export succeeds without producing files.
	silentExport map[string]bool
	// dropRows lists tables that lose one row while loading.
	dropRows map[string]bool
	// reverseColumns creates tables with their columns in reverse order.
	reverseColumns bool
	// onExport runs before every export.
	onExport func(table string)
}

func newFakeAccount(database, schema string) *fakeAccount {
	return &fakeAccount{
		database:     database,
		schema:       schema,
		tables:       make(map[string]*fakeTable),
		owners:       make(map[string]model.OwnerRole),
		grants:       make(map[string][]model.Grant),
		stage:        make(map[string][]byte),
		failures:     make(map[string]error),
		panics:       make(map[string]bool),
		silentExport: make(map[string]bool),
		dropRows:     make(map[string]bool),
	}
}

func (f *fakeAccount) endpoint(account string) Endpoint {
	return Endpoint{
		Account:   account,
		Database:  f.database,
		Schema:    f.schema,
		Catalog:   f,
		Stage:     f,
		Namespace: f,
	}
}

// addTable creates name with rows generated by value(row, column).
func (f *fakeAccount) addTable(name string, columns []string, rows int, value func(row, column int) *string) {
	table := &fakeTable{columns: columns}
	for r := 0; r < rows; r++ {
		row := make([]*string, len(columns))
		for c := range columns {
			row[c] = value(r, c)
		}
		table.rows = append(table.rows, row)
	}
	f.tables[name] = table
}

func (f *fakeAccount) called(op string) bool {
	return lo.ContainsBy(f.calls, func(call string) bool {
		return strings.HasPrefix(call, op+":")
	})
}

// calledWith reports whether op ran with an argument containing fragment.
func (f *fakeAccount) calledWith(op, fragment string) bool {
	return lo.ContainsBy(f.calls, func(call string) bool {
		return strings.HasPrefix(call, op+":") && strings.Contains(call, fragment)
	})
}

func (f *fakeAccount) do(op, table string) error {
	key := op + ":" + table
	f.calls = append(f.calls, key)
	if f.panics[key] {
		panic(fmt.Sprintf("fake %s panicked", key))
	}
	return f.failures[key]
}

func (f *fakeAccount) table(ref model.TableRef) (*fakeTable, error) {
	if !strings.EqualFold(ref.Database, f.database) || !strings.EqualFold(ref.Schema, f.schema) {
		return nil, fmt.Errorf("namespace %s.%s does not exist", ref.Database, ref.Schema)
	}
	table, ok := f.tables[ref.Name]
	if !ok {
		return nil, fmt.Errorf("table %s does not exist", ref)
	}
	return table, nil
}

func (f *fakeAccount) EnsureNamespace(_ context.Context, database, schema string, create bool) error {
	if err := f.do("namespace", database+"."+schema); err != nil {
		return err
	}
	if create {
		f.namespaces = append(f.namespaces, database+"."+schema)
	}
	return nil
}

func (f *fakeAccount) ListTables(_ context.Context, database, schema string) ([]string, error) {
	if err := f.do("list", database+"."+schema); err != nil {
		return nil, err
	}
	return lo.Keys(f.tables), nil
}

func (f *fakeAccount) Columns(_ context.Context, ref model.TableRef) ([]string, error) {
	if err := f.do("columns", ref.Name); err != nil {
		return nil, err
	}
	table, err := f.table(ref)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), table.columns...), nil
}

func (f *fakeAccount) RowCount(_ context.Context, ref model.TableRef) (int64, error) {
	if err := f.do("count", ref.Name); err != nil {
		return 0, err
	}
	table, err := f.table(ref)
	if err != nil {
		return 0, err
	}
	return int64(len(table.rows)), nil
}

func (f *fakeAccount) Describe(ctx context.Context, ref model.TableRef) (model.TableDescriptor, error) {
	columns, err := f.Columns(ctx, ref)
	if err != nil || len(columns) == 0 {
		return model.TableDescriptor{TableRef: ref}, err
	}
	count, err := f.RowCount(ctx, ref)
	if err != nil {
		return model.TableDescriptor{}, err
	}
	return model.TableDescriptor{TableRef: ref, Columns: columns, RowCount: count}, nil
}

func (f *fakeAccount) DDL(_ context.Context, ref model.TableRef) (model.DDLStatement, error) {
	if err := f.do("ddl", ref.Name); err != nil {
		return "", err
	}
	table, err := f.table(ref)
	if err != nil {
		return "", err
	}
	definitions := lo.Map(table.columns, func(column string, _ int) string {
		return fmt.Sprintf("\t%s VARCHAR(16777216) COMMENT 'column %s'", column, column)
	})
	return model.DDLStatement(fmt.Sprintf("create or replace TABLE %s.%s.%s (\n%s\n)COMMENT='migrated by test'\n;",
		f.database, f.schema, ref.Name, strings.Join(definitions, ",\n"),
	)), nil
}

func (f *fakeAccount) ExecuteDDL(_ context.Context, stmt model.DDLStatement) error {
	match := createTable.FindStringSubmatch(string(stmt))
	if match == nil {
		return fmt.Errorf("unsupported statement: %s", stmt)
	}
	parts := lo.Map(strings.Split(match[1], "."), func(part string, _ int) string {
		return sqlident.Unquote(part)
	})
	if len(parts) != 3 {
		return fmt.Errorf("unqualified table name: %s", match[1])
	}
	if err := f.do("create", parts[2]); err != nil {
		return err
	}
	if parts[0] != f.database || parts[1] != f.schema {
		return fmt.Errorf("namespace %s.%s does not exist", parts[0], parts[1])
	}

	var columns []string
	for _, definition := range strings.Split(match[2], ",\n") {
		fields := strings.Fields(definition)
		if len(fields) == 0 {
			continue
		}
		if strings.Contains(strings.ToUpper(definition), "COMMENT") {
			return fmt.Errorf("comment survived rewrite: %s", definition)
		}
		columns = append(columns, sqlident.Unquote(fields[0]))
	}
	if f.reverseColumns {
		columns = lo.Reverse(columns)
	}
	f.tables[parts[2]] = &fakeTable{columns: columns}
	return nil
}

func (f *fakeAccount) Owner(_ context.Context, ref model.TableRef) (model.OwnerRole, error) {
	if err := f.do("owner", ref.Name); err != nil {
		return "", err
	}
	owner, ok := f.owners[ref.Name]
	if !ok {
		return model.DefaultOwnerRole, nil
	}
	return owner, nil
}

func (f *fakeAccount) Grants(_ context.Context, ref model.TableRef) ([]model.Grant, error) {
	if err := f.do("grants", ref.Name); err != nil {
		return nil, err
	}
	return f.grants[ref.Name], nil
}

func (f *fakeAccount) SampleRows(_ context.Context, ref model.TableRef, columns []string, limit int) ([][]string, error) {
	if err := f.do("sample", ref.Name); err != nil {
		return nil, err
	}
	table, err := f.table(ref)
	if err != nil {
		return nil, err
	}
	var sample [][]string
	for _, row := range lo.Slice(table.rows, 0, limit) {
		sample = append(sample, lo.Map(columns, func(column string, _ int) string {
			if v := table.value(row, column); v != nil {
				return *v
			}
			return "NULL"
		}))
	}
	return sample, nil
}

func (f *fakeAccount) NullCounts(_ context.Context, ref model.TableRef, columns []string) ([]int64, error) {
	if err := f.do("nulls", ref.Name); err != nil {
		return nil, err
	}
	table, err := f.table(ref)
	if err != nil {
		return nil, err
	}
	counts := make([]int64, len(columns))
	for _, row := range table.rows {
		for i, column := range columns {
			if table.value(row, column) == nil {
				counts[i]++
			}
		}
	}
	return counts, nil
}

func (f *fakeAccount) Export(_ context.Context, ref model.TableRef, columns []string, prefix string) (model.StagedArtifact, error) {
	if f.onExport != nil {
		f.onExport(ref.Name)
	}
	artifact := model.StagedArtifact{Prefix: prefix}
	if err := f.do("export", ref.Name); err != nil {
		return artifact, err
	}
	table, err := f.table(ref)
	if err != nil {
		return artifact, err
	}
	if f.silentExport[ref.Name] {
		return artifact, nil
	}
	if _, ok := f.stage[prefix+"/data.csv.gz"]; ok {
		return artifact, fmt.Errorf("prefix %s reused", prefix)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return artifact, err
	}
	for _, row := range table.rows {
		record := lo.Map(columns, func(column string, _ int) string {
			if v := table.value(row, column); v != nil {
				return *v
			}
			return nullMarker
		})
		if err := w.Write(record); err != nil {
			return artifact, err
		}
	}
	w.Flush()

	f.stage[prefix+"/data.csv.gz"] = buf.Bytes()
	artifact.Files = []string{prefix + "/data.csv.gz"}
	return artifact, nil
}

func (f *fakeAccount) Download(_ context.Context, artifact model.StagedArtifact, localDir string) ([]string, error) {
	if err := f.do("download", artifact.Prefix); err != nil {
		return nil, err
	}
	var files []string
	for _, file := range artifact.Files {
		data, ok := f.stage[file]
		if !ok {
			continue
		}
		local := filepath.Join(localDir, path.Base(file))
		if err := os.WriteFile(local, data, 0o600); err != nil {
			return nil, err
		}
		files = append(files, local)
	}
	return files, nil
}

func (f *fakeAccount) Upload(_ context.Context, localFiles []string, prefix string) (model.StagedArtifact, error) {
	artifact := model.StagedArtifact{Prefix: prefix}
	if err := f.do("upload", prefix); err != nil {
		return artifact, err
	}
	for _, local := range localFiles {
		data, err := os.ReadFile(local)
		if err != nil {
			return artifact, err
		}
		name := prefix + "/" + filepath.Base(local)
		f.stage[name] = data
		artifact.Files = append(artifact.Files, name)
	}
	return artifact, nil
}

// Load matches header names to table columns case-insensitively, like MATCH_BY_COLUMN_NAME.
func (f *fakeAccount) Load(_ context.Context, ref model.TableRef, artifact model.StagedArtifact) error {
	if err := f.do("load", ref.Name); err != nil {
		return err
	}
	table, err := f.table(ref)
	if err != nil {
		return err
	}

	var loaded [][]*string
	for _, file := range artifact.Files {
		r := csv.NewReader(bytes.NewReader(f.stage[file]))
		header, err := r.Read()
		if err != nil {
			return fmt.Errorf("reading header of %s: %w", file, err)
		}
		positions := make([]int, len(table.columns))
		for i, column := range table.columns {
			_, positions[i], _ = lo.FindIndexOf(header, func(name string) bool {
				return strings.EqualFold(name, column)
			})
		}
		for {
			record, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			row := make([]*string, len(table.columns))
			for i, position := range positions {
				if position < 0 || record[position] == nullMarker {
					continue
				}
				value := record[position]
				row[i] = &value
			}
			loaded = append(loaded, row)
		}
	}
	if f.dropRows[ref.Name] && len(loaded) > 0 {
		loaded = loaded[1:]
	}
	table.rows = append(table.rows, loaded...)

	for _, file := range artifact.Files {
		delete(f.stage, file)
	}
	return nil
}

func (f *fakeAccount) Remove(_ context.Context, artifact model.StagedArtifact) error {
	if err := f.do("remove", artifact.Prefix); err != nil {
		return err
	}
	for name := range f.stage {
		if strings.HasPrefix(name, artifact.Prefix+"/") {
			delete(f.stage, name)
		}
	}
	return nil
}

func ptr(s string) *string {
	return &s
}
