package ddl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/sf-migrate/migrator/ddl"
	"github.com/rudderlabs/sf-migrate/migrator/model"
)

func TestRewriter(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "quoted namespace",
			input:    `create or replace TABLE "SRC_DB"."SRC_SCHEMA"."ORDERS" (ID NUMBER(38,0), NAME VARCHAR(16777216));`,
			expected: `CREATE OR REPLACE TABLE "TGT_DB"."TGT_SCHEMA"."ORDERS" (ID NUMBER(38,0), NAME VARCHAR(16777216));`,
		},
		{
			name:     "unquoted namespace is matched case-insensitively",
			input:    `create or replace TABLE src_db.Src_Schema.ORDERS (ID NUMBER(38,0));`,
			expected: `CREATE OR REPLACE TABLE "TGT_DB"."TGT_SCHEMA".ORDERS (ID NUMBER(38,0));`,
		},
		{
			name:     "plain create becomes create or replace",
			input:    `CREATE TABLE "SRC_DB"."SRC_SCHEMA"."T" (A INT);`,
			expected: `CREATE OR REPLACE TABLE "TGT_DB"."TGT_SCHEMA"."T" (A INT);`,
		},
		{
			name:     "table modifiers are kept",
			input:    `create transient table SRC_DB.SRC_SCHEMA.T (A INT);`,
			expected: `CREATE OR REPLACE transient table "TGT_DB"."TGT_SCHEMA".T (A INT);`,
		},
		{
			name:     "other namespaces are untouched",
			input:    `create or replace TABLE SRC_DB.SRC_SCHEMA.T (A INT, CONSTRAINT FK_1 FOREIGN KEY (A) REFERENCES OTHER_DB.SRC_SCHEMA.P(A));`,
			expected: `CREATE OR REPLACE TABLE "TGT_DB"."TGT_SCHEMA".T (A INT, CONSTRAINT FK_1 FOREIGN KEY (A) REFERENCES OTHER_DB.SRC_SCHEMA.P(A));`,
		},
		{
			name:     "foreign key into the source namespace follows the table",
			input:    `create or replace TABLE SRC_DB.SRC_SCHEMA.T (A INT, FOREIGN KEY (A) REFERENCES SRC_DB.SRC_SCHEMA.P(A));`,
			expected: `CREATE OR REPLACE TABLE "TGT_DB"."TGT_SCHEMA".T (A INT, FOREIGN KEY (A) REFERENCES "TGT_DB"."TGT_SCHEMA".P(A));`,
		},
		{
			name:     "table comment stripped",
			input:    `create or replace TABLE SRC_DB.SRC_SCHEMA.T (A INT) COMMENT='it''s the \'best\' table';`,
			expected: `CREATE OR REPLACE TABLE "TGT_DB"."TGT_SCHEMA".T (A INT);`,
		},
		{
			name:     "table comment glued to the closing parenthesis",
			input:    "create or replace TABLE SRC_DB.SRC_SCHEMA.T (\n\tA NUMBER(38,0) COMMENT 'c'\n)COMMENT='table comment'\n;",
			expected: "CREATE OR REPLACE TABLE \"TGT_DB\".\"TGT_SCHEMA\".T (\n\tA NUMBER(38,0)\n)\n;",
		},
		{
			name:     "namespace inside a string literal is untouched",
			input:    `create or replace TABLE SRC_DB.SRC_SCHEMA.T (A VARCHAR(64) DEFAULT 'SRC_DB.SRC_SCHEMA.X');`,
			expected: `CREATE OR REPLACE TABLE "TGT_DB"."TGT_SCHEMA".T (A VARCHAR(64) DEFAULT 'SRC_DB.SRC_SCHEMA.X');`,
		},
		{
			name:     "comment text inside a default is untouched",
			input:    `create or replace TABLE SRC_DB.SRC_SCHEMA.T (B VARCHAR(20) DEFAULT 'a COMMENT ''x''' COMMENT 'real');`,
			expected: `CREATE OR REPLACE TABLE "TGT_DB"."TGT_SCHEMA".T (B VARCHAR(20) DEFAULT 'a COMMENT ''x''');`,
		},
		{
			name:     "column comments stripped",
			input:    "create or replace TABLE SRC_DB.SRC_SCHEMA.T (\n\tA NUMBER(38,0) NOT NULL COMMENT 'primary, key',\n\tB VARCHAR(10) COMMENT 'x'\n);",
			expected: "CREATE OR REPLACE TABLE \"TGT_DB\".\"TGT_SCHEMA\".T (\n\tA NUMBER(38,0) NOT NULL,\n\tB VARCHAR(10)\n);",
		},
		{
			name:     "column named comment is kept",
			input:    `create or replace TABLE SRC_DB.SRC_SCHEMA.T ("COMMENT" VARCHAR(10), COMMENTS VARCHAR(5));`,
			expected: `CREATE OR REPLACE TABLE "TGT_DB"."TGT_SCHEMA".T ("COMMENT" VARCHAR(10), COMMENTS VARCHAR(5));`,
		},
		{
			name:     "quoted object names with dots survive",
			input:    `create or replace TABLE "SRC_DB"."SRC_SCHEMA"."a.b" (A INT);`,
			expected: `CREATE OR REPLACE TABLE "TGT_DB"."TGT_SCHEMA"."a.b" (A INT);`,
		},
		{
			name:     "types and defaults untouched",
			input:    `create or replace TABLE SRC_DB.SRC_SCHEMA.T (TS TIMESTAMP_NTZ(9) DEFAULT CURRENT_TIMESTAMP(), N NUMBER(10,2) DEFAULT 1.5);`,
			expected: `CREATE OR REPLACE TABLE "TGT_DB"."TGT_SCHEMA".T (TS TIMESTAMP_NTZ(9) DEFAULT CURRENT_TIMESTAMP(), N NUMBER(10,2) DEFAULT 1.5);`,
		},
	}

	r := ddl.New("SRC_DB", "SRC_SCHEMA", "TGT_DB", "TGT_SCHEMA")
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, model.DDLStatement(tc.expected), r.Rewrite(model.DDLStatement(tc.input)))
		})
	}
}

func TestRewriterIdempotent(t *testing.T) {
	r := ddl.New("SRC_DB", "SRC_SCHEMA", "TGT_DB", "TGT_SCHEMA")

	once := r.Rewrite(`create or replace TABLE SRC_DB.SRC_SCHEMA.T (A INT COMMENT 'a') COMMENT='t';`)
	twice := r.Rewrite(once)
	require.Equal(t, once, twice)
}

func TestRewriterSameNamespace(t *testing.T) {
	r := ddl.New("DB", "S", "db", "s")
	require.Equal(t,
		model.DDLStatement(`CREATE OR REPLACE TABLE "db"."s".T (A INT);`),
		r.Rewrite(`create or replace TABLE DB.S.T (A INT);`),
	)
}
