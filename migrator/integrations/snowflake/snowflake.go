// Package snowflake implements the session, catalog, staging and grant operations of a migration
// against Snowflake accounts.
package snowflake

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rudderlabs/sf-migrate/migrator/integrations/middleware/sqlquerywrapper"
)

const (
	SideSource = "source"
	SideTarget = "target"
)

const informationSchema = "INFORMATION_SCHEMA"

var (
	ErrIdentityMismatch = errors.New("session identity does not match configuration")
	ErrNamespace        = errors.New("preparing namespace")
)

// Credentials describes how to reach one account and which identity to expect there.
type Credentials struct {
	Account              string
	User                 string
	Role                 string
	Warehouse            string
	Password             string
	PrivateKeyPath       string
	PrivateKeyPassphrase string
	Authenticator        string
	Application          string
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Session is an open, identity-checked connection to one account.
type Session struct {
	*sqlquerywrapper.DB

	Side    string
	Account string
	User    string
	Role    string
}

// Identity returns the user and role the session is currently bound to.
func (s *Session) Identity(ctx context.Context) (user, role string, err error) {
	return currentIdentity(ctx, s.DB)
}

func currentIdentity(ctx context.Context, db querier) (user, role string, err error) {
	if err = db.QueryRowContext(ctx, `SELECT CURRENT_USER(), CURRENT_ROLE();`).Scan(&user, &role); err != nil {
		return "", "", fmt.Errorf("querying current identity: %w", err)
	}
	return user, role, nil
}

// scanNamed reads every row of a SHOW-style result into maps keyed by lower-cased column name.
func scanNamed(rows *sql.Rows) ([]map[string]string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var result []map[string]string
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(map[string]string, len(columns))
		for i, column := range columns {
			row[strings.ToLower(column)] = values[i].String
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var result []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		result = append(result, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}
