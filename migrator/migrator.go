// Package migrator moves tables between two Snowflake accounts through file staging,
// one table at a time.
package migrator

//go:generate mockgen -destination=../mocks/migrator/mock_grants.go -package=mock_migrator github.com/rudderlabs/sf-migrate/migrator GrantReplicator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/rudderlabs/sf-migrate/migrator/ddl"
	"github.com/rudderlabs/sf-migrate/migrator/integrations/snowflake"
	"github.com/rudderlabs/sf-migrate/migrator/internal/scratch"
	"github.com/rudderlabs/sf-migrate/migrator/logfield"
	"github.com/rudderlabs/sf-migrate/migrator/model"
)

var (
	ErrInterrupted = errors.New("migration interrupted")
	ErrNamespace   = snowflake.ErrNamespace
)

// MissingTablesError lists requested tables that do not exist in the source catalog.
type MissingTablesError struct {
	Tables []string
}

func (e *MissingTablesError) Error() string {
	return fmt.Sprintf("tables not found in source catalog: %s", strings.Join(e.Tables, ", "))
}

// Catalog reads and changes table metadata on one account.
type Catalog interface {
	ListTables(ctx context.Context, database, schema string) ([]string, error)
	Columns(ctx context.Context, ref model.TableRef) ([]string, error)
	RowCount(ctx context.Context, ref model.TableRef) (int64, error)
	Describe(ctx context.Context, ref model.TableRef) (model.TableDescriptor, error)
	DDL(ctx context.Context, ref model.TableRef) (model.DDLStatement, error)
	ExecuteDDL(ctx context.Context, stmt model.DDLStatement) error
	Owner(ctx context.Context, ref model.TableRef) (model.OwnerRole, error)
	Grants(ctx context.Context, ref model.TableRef) ([]model.Grant, error)
}

// Stage moves table data through the file staging of one account.
type Stage interface {
	Export(ctx context.Context, ref model.TableRef, columns []string, prefix string) (model.StagedArtifact, error)
	Download(ctx context.Context, artifact model.StagedArtifact, localDir string) ([]string, error)
	Upload(ctx context.Context, localFiles []string, prefix string) (model.StagedArtifact, error)
	Load(ctx context.Context, ref model.TableRef, artifact model.StagedArtifact) error
	Remove(ctx context.Context, artifact model.StagedArtifact) error
}

type Namespacer interface {
	EnsureNamespace(ctx context.Context, database, schema string, create bool) error
}

type GrantReplicator interface {
	Replicate(ctx context.Context, ref model.TableRef, owner model.OwnerRole, grants []model.Grant) model.GrantSummary
}

// Archiver keeps a copy of downloaded export files outside of both accounts.
type Archiver interface {
	Archive(ctx context.Context, table string, files []string) error
}

// Endpoint bundles everything the migrator needs from one account.
type Endpoint struct {
	Account  string
	Database string
	Schema   string

	Catalog   Catalog
	Stage     Stage
	Namespace Namespacer
}

func (e Endpoint) table(name string) model.TableRef {
	return model.TableRef{Database: e.Database, Schema: e.Schema, Name: name}
}

type Opt func(*Migrator)

func WithArchiver(archiver Archiver) Opt {
	return func(m *Migrator) {
		m.archiver = archiver
	}
}

// WithTmpRoot sets where an implicit scratch area is allocated.
func WithTmpRoot(dir string) Opt {
	return func(m *Migrator) {
		m.tmpRoot = dir
	}
}

func WithRunID(runID string) Opt {
	return func(m *Migrator) {
		m.runID = runID
	}
}

func WithNow(now func() time.Time) Opt {
	return func(m *Migrator) {
		m.now = now
	}
}

type Migrator struct {
	config       Config
	log          logger.Logger
	statsFactory stats.Stats

	source   Endpoint
	target   Endpoint
	grants   GrantReplicator
	archiver Archiver
	rewriter *ddl.Rewriter

	runID   string
	tmpRoot string
	now     func() time.Time
	scratch *scratch.Base
}

func New(cfg Config, log logger.Logger, statsFactory stats.Stats, source, target Endpoint, grants GrantReplicator, opts ...Opt) *Migrator {
	m := &Migrator{
		config:       cfg,
		statsFactory: statsFactory,
		source:       source,
		target:       target,
		grants:       grants,
		rewriter:     ddl.New(source.Database, source.Schema, target.Database, target.Schema),
		runID:        uuid.New().String(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = log.Child("migrator").Withn(logger.NewStringField(logfield.RunID, m.runID))
	return m
}

func (m *Migrator) RunID() string {
	return m.runID
}

// Run migrates every configured table in order. Fatal errors abort the run before any table is processed.
// On interruption the report of the tables processed so far is returned together with ErrInterrupted.
func (m *Migrator) Run(ctx context.Context) (*Report, error) {
	start := m.now()

	tables, err := m.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.target.Namespace.EnsureNamespace(ctx, m.target.Database, m.target.Schema, true); err != nil {
		return nil, namespaceError(m.target.Database, m.target.Schema, err)
	}

	m.scratch, err = scratch.New(m.config.LocalBaseDir, m.tmpRoot)
	if err != nil {
		return nil, fmt.Errorf("preparing scratch area: %w", err)
	}
	defer func() {
		if err := m.scratch.Cleanup(); err != nil {
			m.log.Warnn("Removing scratch area", logger.NewStringField(logfield.LocalDir, m.scratch.Path()), obskit.Error(err))
		}
	}()

	m.log.Infon("Starting migration",
		logger.NewIntField("tables", int64(len(tables))),
		logger.NewStringField(logfield.Namespace, m.target.Database+"."+m.target.Schema),
		logger.NewStringField(logfield.LocalDir, m.scratch.Path()),
		logger.NewBoolField("keepLocalDir", !m.scratch.Implicit()),
	)

	report := newReport(m.runID, m.source, m.target, start)
	for _, table := range tables {
		if ctx.Err() != nil {
			break
		}
		outcome := m.migrateTable(ctx, table)
		report.add(outcome)

		m.statsFactory.NewTaggedStat("sf_migrate_tables", stats.CountType, stats.Tags{"status": string(outcome.Status)}).Increment()
	}
	report.finish(m.now())

	m.statsFactory.NewTaggedStat("sf_migrate_rows_moved", stats.CountType, stats.Tags{}).Count(int(report.Summary.RowsMoved))
	m.statsFactory.NewTaggedStat("sf_migrate_run_duration", stats.TimerType, stats.Tags{}).SendTiming(report.Duration)

	if m.config.ReportPath != "" {
		if err := report.WriteJSON(m.config.ReportPath); err != nil {
			m.log.Warnn("Writing report", obskit.Error(err))
		}
	}

	if ctx.Err() != nil {
		m.log.Warnn("Migration interrupted",
			logger.NewIntField("processed", int64(len(report.Outcomes))),
			logger.NewIntField("requested", int64(len(tables))),
		)
		return report, ErrInterrupted
	}

	m.log.Infon("Migration finished",
		logger.NewIntField("successful", int64(report.Summary.Successful)),
		logger.NewIntField("mismatches", int64(report.Summary.Mismatches)),
		logger.NewIntField("errors", int64(report.Summary.Errors)),
		logger.NewIntField("rowsMoved", report.Summary.RowsMoved),
		logger.NewDurationField(logfield.Duration, report.Duration),
	)
	return report, nil
}

// Resolve maps every configured table name to the name stored in the source catalog.
// An exact match wins over a case-insensitive one. Unresolved names are reported together.
func (m *Migrator) Resolve(ctx context.Context) ([]model.TableRef, error) {
	if err := m.source.Namespace.EnsureNamespace(ctx, m.source.Database, m.source.Schema, false); err != nil {
		return nil, namespaceError(m.source.Database, m.source.Schema, err)
	}

	names, err := m.source.Catalog.ListTables(ctx, m.source.Database, m.source.Schema)
	if err != nil {
		return nil, fmt.Errorf("listing source tables: %w", err)
	}
	exact := lo.Associate(names, func(name string) (string, struct{}) {
		return name, struct{}{}
	})
	folded := make(map[string]string, len(names))
	for _, name := range names {
		if _, ok := folded[strings.ToUpper(name)]; !ok {
			folded[strings.ToUpper(name)] = name
		}
	}

	var (
		tables  []model.TableRef
		missing []string
	)
	for _, requested := range normalizeTables(m.config.Tables) {
		if _, ok := exact[requested]; ok {
			tables = append(tables, m.source.table(requested))
			continue
		}
		if name, ok := folded[strings.ToUpper(requested)]; ok {
			tables = append(tables, m.source.table(name))
			continue
		}
		missing = append(missing, requested)
	}
	if len(missing) > 0 {
		return nil, &MissingTablesError{Tables: missing}
	}
	return tables, nil
}

func namespaceError(database, schema string, err error) error {
	if errors.Is(err, ErrNamespace) {
		return err
	}
	return fmt.Errorf("%w %s.%s: %w", ErrNamespace, database, schema, err)
}
