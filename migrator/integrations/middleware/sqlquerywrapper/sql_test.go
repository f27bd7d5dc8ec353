package sqlquerywrapper

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/logger/mock_logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	"github.com/rudderlabs/rudder-go-kit/stats/memstats"
)

func TestQueryWrapper(t *testing.T) {
	testCases := []struct {
		name          string
		executionTime time.Duration
		wantLog       bool
	}{
		{
			name:          "slow query",
			executionTime: 500 * time.Second,
			wantLog:       true,
		},
		{
			name:          "fast query",
			executionTime: 1 * time.Second,
			wantLog:       false,
		},
	}

	var (
		ctx            = context.Background()
		queryThreshold = 300 * time.Second
		tags           = stats.Tags{"account": "src", "role": "SYSADMIN"}
	)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })

			statsStore, err := memstats.New()
			require.NoError(t, err)

			mockCtrl := gomock.NewController(t)
			mockLogger := mock_logger.NewMockLogger(mockCtrl)

			qw := New(
				db,
				WithSlowQueryThreshold(queryThreshold),
				WithLogger(mockLogger),
				WithStats(statsStore, tags),
				WithLogFields(logger.NewStringField("side", "source")),
			)
			qw.since = func(time.Time) time.Duration {
				return tc.executionTime
			}

			if tc.wantLog {
				mockLogger.EXPECT().Infon("executing query", gomock.Any()).Times(3)
			} else {
				mockLogger.EXPECT().Infon(gomock.Any(), gomock.Any()).Times(0)
			}

			query := "SELECT 1"
			mock.ExpectExec(regexp.QuoteMeta(query)).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
			mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

			_, err = qw.ExecContext(ctx, query)
			require.NoError(t, err)

			rows, err := qw.QueryContext(ctx, query)
			require.NoError(t, err)
			require.NoError(t, rows.Close())

			var one int
			require.NoError(t, qw.QueryRowContext(ctx, query).Scan(&one))
			require.Equal(t, 1, one)

			require.NoError(t, mock.ExpectationsWereMet())
			require.Len(t, statsStore.Get("sf_migrate_query_duration", tags).Durations(), 3)
			require.Equal(t, tc.executionTime, statsStore.Get("sf_migrate_query_duration", tags).LastDuration())
		})
	}

	t.Run("secrets are redacted", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		mockCtrl := gomock.NewController(t)
		mockLogger := mock_logger.NewMockLogger(mockCtrl)

		qw := New(
			db,
			WithSlowQueryThreshold(queryThreshold),
			WithLogger(mockLogger),
			WithSecretsRegex(map[string]string{
				"PASSWORD = '[^']*'": "PASSWORD = '***'",
			}),
		)
		qw.since = func(time.Time) time.Duration {
			return time.Hour
		}

		query := "ALTER USER MIGRATOR SET PASSWORD = 'hunter2'"
		mockLogger.EXPECT().Infon("executing query",
			logger.NewStringField("query", "ALTER USER MIGRATOR SET PASSWORD = '***'"),
			logger.NewDurationField("queryExecutionTime", time.Hour),
		).Times(1)
		mock.ExpectExec(regexp.QuoteMeta(query)).WillReturnResult(sqlmock.NewResult(0, 0))

		_, err = qw.ExecContext(ctx, query)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
