package snowflake

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/rudderlabs/sf-migrate/migrator/internal/sqlident"
	"github.com/rudderlabs/sf-migrate/migrator/logfield"
	"github.com/rudderlabs/sf-migrate/migrator/model"
)

// Catalog reads table metadata from the live catalog. Nothing is cached.
type Catalog struct {
	db            querier
	log           logger.Logger
	fallbackOwner model.OwnerRole
}

func NewCatalog(db querier, log logger.Logger, fallbackOwner string) *Catalog {
	if fallbackOwner == "" {
		fallbackOwner = model.DefaultOwnerRole
	}
	return &Catalog{
		db:            db,
		log:           log.Child("catalog"),
		fallbackOwner: model.OwnerRole(fallbackOwner),
	}
}

// ListTables returns the base tables of database.schema.
func (c *Catalog) ListTables(ctx context.Context, database, schema string) ([]string, error) {
	sqlStatement := fmt.Sprintf(`
		SELECT
		  TABLE_NAME
		FROM
		  %s.INFORMATION_SCHEMA.TABLES
		WHERE
		  TABLE_SCHEMA = ?
		  AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY
		  TABLE_NAME;
	`,
		sqlident.Quote(database),
	)

	rows, err := c.db.QueryContext(ctx, sqlStatement, schema)
	if err != nil {
		return nil, fmt.Errorf("listing tables in %s.%s: %w", database, schema, err)
	}
	defer func() { _ = rows.Close() }()

	tables, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("listing tables in %s.%s: %w", database, schema, err)
	}
	return tables, nil
}

// Columns returns the column names of ref in ordinal order.
func (c *Catalog) Columns(ctx context.Context, ref model.TableRef) ([]string, error) {
	sqlStatement := fmt.Sprintf(`
		SELECT
		  COLUMN_NAME
		FROM
		  %s.INFORMATION_SCHEMA.COLUMNS
		WHERE
		  TABLE_SCHEMA = ?
		  AND TABLE_NAME = ?
		ORDER BY
		  ORDINAL_POSITION;
	`,
		sqlident.Quote(ref.Database),
	)

	rows, err := c.db.QueryContext(ctx, sqlStatement, ref.Schema, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("fetching columns of %s: %w", ref, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("fetching columns of %s: %w", ref, err)
	}
	return columns, nil
}

func (c *Catalog) RowCount(ctx context.Context, ref model.TableRef) (int64, error) {
	var count int64
	if err := c.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s;`, ref.Fq())).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", ref, err)
	}
	return count, nil
}

// Describe snapshots the columns and row count of ref. A table without columns is not counted.
func (c *Catalog) Describe(ctx context.Context, ref model.TableRef) (model.TableDescriptor, error) {
	columns, err := c.Columns(ctx, ref)
	if err != nil {
		return model.TableDescriptor{}, err
	}
	if len(columns) == 0 {
		return model.TableDescriptor{TableRef: ref}, nil
	}
	count, err := c.RowCount(ctx, ref)
	if err != nil {
		return model.TableDescriptor{}, err
	}
	return model.TableDescriptor{TableRef: ref, Columns: columns, RowCount: count}, nil
}

// DDL returns the creation statement of ref with fully qualified names.
func (c *Catalog) DDL(ctx context.Context, ref model.TableRef) (model.DDLStatement, error) {
	var ddl string
	if err := c.db.QueryRowContext(ctx, `SELECT GET_DDL('TABLE', ?, TRUE);`, ref.Fq()).Scan(&ddl); err != nil {
		return "", fmt.Errorf("fetching ddl of %s: %w", ref, err)
	}
	return model.DDLStatement(ddl), nil
}

// ExecuteDDL runs a creation statement.
func (c *Catalog) ExecuteDDL(ctx context.Context, stmt model.DDLStatement) error {
	if _, err := c.db.ExecContext(ctx, string(stmt)); err != nil {
		return fmt.Errorf("executing ddl: %w", err)
	}
	return nil
}

// Owner returns the role owning ref, or the fallback owner when the catalog does not report one.
func (c *Catalog) Owner(ctx context.Context, ref model.TableRef) (model.OwnerRole, error) {
	sqlStatement := fmt.Sprintf(`SHOW TABLES LIKE %s IN SCHEMA %s;`,
		sqlident.Literal(ref.Name),
		ref.Namespace(),
	)

	rows, err := c.db.QueryContext(ctx, sqlStatement)
	if err != nil {
		return "", fmt.Errorf("showing table %s: %w", ref, err)
	}
	defer func() { _ = rows.Close() }()

	tables, err := scanNamed(rows)
	if err != nil {
		return "", fmt.Errorf("showing table %s: %w", ref, err)
	}

	// LIKE is case-insensitive and treats _ as a wildcard, prefer the exact name
	var owner string
	for _, table := range tables {
		if table["name"] == ref.Name {
			owner = table["owner"]
			break
		}
		if owner == "" && strings.EqualFold(table["name"], ref.Name) {
			owner = table["owner"]
		}
	}

	if owner == "" {
		c.log.Warnn("Owner not found, using fallback",
			logger.NewStringField(logfield.TableName, ref.String()),
			logger.NewStringField(logfield.Owner, string(c.fallbackOwner)),
		)
		return c.fallbackOwner, nil
	}
	return model.OwnerRole(owner), nil
}

// Grants returns the privileges granted to roles on ref, excluding ownership.
func (c *Catalog) Grants(ctx context.Context, ref model.TableRef) ([]model.Grant, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`SHOW GRANTS ON TABLE %s;`, ref.Fq()))
	if err != nil {
		return nil, fmt.Errorf("showing grants on %s: %w", ref, err)
	}
	defer func() { _ = rows.Close() }()

	records, err := scanNamed(rows)
	if err != nil {
		return nil, fmt.Errorf("showing grants on %s: %w", ref, err)
	}

	var grants []model.Grant
	for _, record := range records {
		privilege := strings.ToUpper(record["privilege"])
		if privilege == model.PrivilegeOwnership {
			continue
		}
		if !strings.EqualFold(record["granted_to"], model.GranteeTypeRole) {
			c.log.Warnn("Skipping grant to non-role grantee",
				logger.NewStringField(logfield.TableName, ref.String()),
				logger.NewStringField(logfield.Privilege, privilege),
				logger.NewStringField(logfield.GranteeType, record["granted_to"]),
				logger.NewStringField(logfield.Grantee, record["grantee_name"]),
			)
			continue
		}
		grants = append(grants, model.Grant{
			Role:      record["grantee_name"],
			Privilege: privilege,
		})
	}
	return grants, nil
}

// SampleRows returns up to limit rows of ref rendered as text, with NULL for absent values.
func (c *Catalog) SampleRows(ctx context.Context, ref model.TableRef, columns []string, limit int) ([][]string, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	sqlStatement := fmt.Sprintf(`SELECT %s FROM %s LIMIT %d;`, sqlident.QuoteList(columns), ref.Fq(), limit)
	rows, err := c.db.QueryContext(ctx, sqlStatement)
	if err != nil {
		return nil, fmt.Errorf("sampling %s: %w", ref, err)
	}
	defer func() { _ = rows.Close() }()

	var sample [][]string
	for rows.Next() {
		values := make([]interface{}, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("sampling %s: %w", ref, err)
		}

		row := make([]string, len(columns))
		for i, value := range values {
			row[i] = renderValue(value)
		}
		sample = append(sample, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sampling %s: %w", ref, err)
	}
	return sample, nil
}

// NullCounts returns, for each column, how many rows hold NULL.
func (c *Catalog) NullCounts(ctx context.Context, ref model.TableRef, columns []string) ([]int64, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	projections := make([]string, 0, len(columns))
	for _, column := range columns {
		projections = append(projections, fmt.Sprintf(`COUNT_IF(%s IS NULL)`, sqlident.Quote(column)))
	}

	counts := make([]int64, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range counts {
		dest[i] = &counts[i]
	}

	sqlStatement := fmt.Sprintf(`SELECT %s FROM %s;`, strings.Join(projections, ", "), ref.Fq())
	if err := c.db.QueryRowContext(ctx, sqlStatement).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return counts, nil
		}
		return nil, fmt.Errorf("counting nulls in %s: %w", ref, err)
	}
	return counts, nil
}

func renderValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	default:
		return cast.ToString(v)
	}
}
