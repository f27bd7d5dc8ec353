package migrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/rudderlabs/sf-migrate/migrator/internal/sqlident"
	"github.com/rudderlabs/sf-migrate/migrator/logfield"
	"github.com/rudderlabs/sf-migrate/migrator/model"
)

const (
	exportPrefix = "migrate_export"
	importPrefix = "migrate_import"
)

var (
	errNothingExported   = errors.New("export produced no files")
	errNothingDownloaded = errors.New("download retrieved no files")
	errNothingUploaded   = errors.New("upload left no files in the target stage")
)

// tableMigration carries one table through the pipeline. It is used once.
type tableMigration struct {
	*Migrator

	source    model.TableRef
	target    model.TableRef
	timestamp string
	log       logger.Logger

	state      model.State
	stateStart time.Time
	snapshot   model.TableDescriptor
	replayed   *model.GrantSummary
}

// migrateTable never fails: every error or panic becomes an ERROR outcome.
func (m *Migrator) migrateTable(ctx context.Context, source model.TableRef) (outcome model.Outcome) {
	start := m.now()
	t := &tableMigration{
		Migrator:  m,
		source:    source,
		target:    source.InNamespace(m.target.Database, m.target.Schema),
		timestamp: timestamp(start),
		log:       m.log.Withn(logger.NewStringField(logfield.TableName, source.Name)),
	}

	defer func() {
		if r := recover(); r != nil {
			t.log.Errorn("Panic while migrating table",
				logger.NewStringField(logfield.State, string(t.state)),
				logger.NewStringField("panic", fmt.Sprint(r)),
				logger.NewStringField("stack", string(debug.Stack())),
			)
			outcome = t.failed(fmt.Errorf("panic: %v", r))
		}
		outcome.Duration = m.now().Sub(start)
		t.log.Infon("Table migrated",
			logger.NewStringField(logfield.Status, string(outcome.Status)),
			logger.NewIntField(logfield.SourceRows, outcome.SourceRows),
			logger.NewIntField(logfield.DestinationRows, outcome.DestinationRows),
			logger.NewDurationField(logfield.Duration, outcome.Duration),
		)
	}()

	outcome, err := t.run(ctx)
	if err != nil {
		t.log.Errorn("Migrating table",
			logger.NewStringField(logfield.State, string(t.state)),
			obskit.Error(err),
		)
		return t.failed(err)
	}
	t.enter(model.StateDone)
	return outcome
}

func (t *tableMigration) run(ctx context.Context) (model.Outcome, error) {
	t.enter(model.StateAnalyzing)
	snapshot, err := t.Migrator.source.Catalog.Describe(ctx, t.source)
	if err != nil {
		return model.Outcome{}, fmt.Errorf("analyzing source table: %w", err)
	}
	t.snapshot = snapshot
	columns := snapshot.Columns
	if len(columns) == 0 {
		t.log.Warnn("Source table has no columns, skipping")
		return t.outcome(model.StatusNoColumns, 0), nil
	}

	t.enter(model.StateCreatingTarget)
	if err := t.createTarget(ctx, columns); err != nil {
		return model.Outcome{}, err
	}

	if t.snapshot.RowCount == 0 {
		t.replayGrants(ctx)
		return t.outcome(model.StatusOKEmpty, 0), nil
	}

	t.enter(model.StateExporting)
	exported, err := t.Migrator.source.Stage.Export(ctx, t.source, columns, t.prefix(exportPrefix))
	if err != nil {
		return model.Outcome{}, err
	}
	if exported.Empty() {
		return model.Outcome{}, fmt.Errorf("exporting %d rows to %s: %w", t.snapshot.RowCount, exported.Path(), errNothingExported)
	}

	t.enter(model.StateDownloading)
	files, err := t.download(ctx, exported)
	if err != nil {
		return model.Outcome{}, err
	}

	t.enter(model.StateUploading)
	imported, err := t.Migrator.target.Stage.Upload(ctx, files, t.prefix(importPrefix))
	if err != nil {
		return model.Outcome{}, err
	}
	if imported.Empty() {
		return model.Outcome{}, fmt.Errorf("uploading to %s: %w", imported.Path(), errNothingUploaded)
	}

	t.enter(model.StateLoading)
	if err := t.Migrator.target.Stage.Load(ctx, t.target, imported); err != nil {
		return model.Outcome{}, err
	}
	t.replayGrants(ctx)

	t.enter(model.StateReconciling)
	destinationRows, err := t.Migrator.target.Catalog.RowCount(ctx, t.target)
	if err != nil {
		return model.Outcome{}, fmt.Errorf("counting target rows: %w", err)
	}
	if destinationRows != t.snapshot.RowCount {
		t.log.Warnn("Row count mismatch",
			logger.NewIntField(logfield.SourceRows, t.snapshot.RowCount),
			logger.NewIntField(logfield.DestinationRows, destinationRows),
		)
		return t.outcome(model.StatusRowCountMismatch, destinationRows), nil
	}
	return t.outcome(model.StatusOK, destinationRows), nil
}

// createTarget replaces the target table with the rewritten source DDL. Column drift is only reported,
// loading matches columns by name.
func (t *tableMigration) createTarget(ctx context.Context, columns []string) error {
	stmt, err := t.Migrator.source.Catalog.DDL(ctx, t.source)
	if err != nil {
		return fmt.Errorf("reading source DDL: %w", err)
	}
	if err := t.Migrator.target.Catalog.ExecuteDDL(ctx, t.rewriter.Rewrite(stmt)); err != nil {
		return fmt.Errorf("creating target table: %w", err)
	}

	targetColumns, err := t.Migrator.target.Catalog.Columns(ctx, t.target)
	if err != nil {
		return fmt.Errorf("reading target columns: %w", err)
	}
	if !model.SameColumns(columns, targetColumns) {
		t.log.Warnn("Target columns differ from source columns",
			logger.NewStringField("sourceColumns", fmt.Sprint(columns)),
			logger.NewStringField("targetColumns", fmt.Sprint(targetColumns)),
		)
	}
	return nil
}

func (t *tableMigration) download(ctx context.Context, exported model.StagedArtifact) ([]string, error) {
	dir, err := t.scratch.TableDir(t.source.Name, t.timestamp)
	if err != nil {
		return nil, err
	}
	files, err := t.Migrator.source.Stage.Download(ctx, exported, dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("retrieving %s: %w", exported.Path(), errNothingDownloaded)
	}
	t.log.Debugn("Export downloaded",
		logger.NewStringField(logfield.LocalDir, dir),
		logger.NewIntField(logfield.Files, int64(len(files))),
	)

	if t.config.RemoveExported {
		if err := t.Migrator.source.Stage.Remove(ctx, exported); err != nil {
			t.log.Warnn("Removing exported files", logger.NewStringField(logfield.StagePrefix, exported.Prefix), obskit.Error(err))
		}
	}
	if t.archiver != nil {
		if err := t.archiver.Archive(ctx, t.source.Name, files); err != nil {
			t.log.Warnn("Archiving exported files", obskit.Error(err))
		}
	}
	return files, nil
}

// replayGrants copies the source owner and role grants onto the target table. Nothing here fails the table.
func (t *tableMigration) replayGrants(ctx context.Context) {
	if !t.config.GrantsEnabled || t.grants == nil {
		return
	}

	owner, err := t.Migrator.source.Catalog.Owner(ctx, t.source)
	if err != nil {
		owner = model.OwnerRole(t.config.FallbackOwner)
		t.log.Warnn("Reading source owner, using fallback",
			logger.NewStringField(logfield.Owner, string(owner)),
			obskit.Error(err),
		)
	}
	grants, err := t.Migrator.source.Catalog.Grants(ctx, t.source)
	if err != nil {
		t.log.Warnn("Reading source grants", obskit.Error(err))
	}

	summary := t.grants.Replicate(ctx, t.target, owner, grants)
	t.replayed = &summary
}

func (t *tableMigration) enter(state model.State) {
	now := t.now()
	if t.state != "" {
		t.statsFactory.NewTaggedStat("sf_migrate_state_duration", stats.TimerType, stats.Tags{
			"table": t.source.Name,
			"state": string(t.state),
		}).SendTiming(now.Sub(t.stateStart))
	}
	t.log.Debugn("Entering state", logger.NewStringField(logfield.State, string(state)))
	t.state = state
	t.stateStart = now
}

func (t *tableMigration) outcome(status model.Status, destinationRows int64) model.Outcome {
	return model.Outcome{
		Table:           t.source.Name,
		SourceRows:      t.snapshot.RowCount,
		DestinationRows: destinationRows,
		Status:          status,
		Grants:          t.replayed,
	}
}

func (t *tableMigration) failed(err error) model.Outcome {
	outcome := t.outcome(model.StatusError, 0)
	outcome.FailedState = t.state
	outcome.Error = err.Error()
	t.state = model.StateFailed
	return outcome
}

// prefix is unique per table and run. The hash keeps names apart that sanitize to the same text.
func (t *tableMigration) prefix(kind string) string {
	runID := t.runID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return fmt.Sprintf("%s_%s_%s_%s", kind, t.timestamp, sqlident.PathKey(t.source.Name), runID)
}

// timestamp renders now with nanosecond precision using only characters safe in paths and stage prefixes.
func timestamp(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s%09dZ", now.Format("20060102T150405"), now.Nanosecond())
}
