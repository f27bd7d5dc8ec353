package snowflake

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/rudderlabs/sf-migrate/migrator/internal/scratch"
	"github.com/rudderlabs/sf-migrate/migrator/internal/sqlident"
	"github.com/rudderlabs/sf-migrate/migrator/logfield"
	"github.com/rudderlabs/sf-migrate/migrator/model"
)

const exportFileName = "data.csv.gz"

// Stage moves table data through the user stage (@~) of one account.
type Stage struct {
	db  querier
	log logger.Logger

	config struct {
		maxFileSize int64
	}
}

func NewStage(conf *config.Config, db querier, log logger.Logger) *Stage {
	s := &Stage{
		db:  db,
		log: log.Child("stage"),
	}
	s.config.maxFileSize = conf.GetInt64("Migrate.stage.maxFileSize", 5*1024*1024*1024)
	return s
}

// Export unloads every row of ref into a single file under prefix, projecting columns explicitly.
func (s *Stage) Export(ctx context.Context, ref model.TableRef, columns []string, prefix string) (model.StagedArtifact, error) {
	artifact := model.StagedArtifact{Prefix: prefix}

	sqlStatement := fmt.Sprintf(`
		COPY INTO %[1]s%[2]s
		FROM (SELECT %[3]s FROM %[4]s)
		%[5]s
		HEADER = TRUE
		OVERWRITE = TRUE
		SINGLE = TRUE
		MAX_FILE_SIZE = %[6]d;
	`,
		artifact.Path(),
		exportFileName,
		sqlident.QuoteList(columns),
		ref.Fq(),
		csvFormat.unload(),
		s.config.maxFileSize,
	)
	if _, err := s.db.ExecContext(ctx, sqlStatement); err != nil {
		return artifact, fmt.Errorf("exporting %s: %w", ref, err)
	}

	files, err := s.List(ctx, prefix)
	if err != nil {
		return artifact, fmt.Errorf("listing exported files of %s: %w", ref, err)
	}
	artifact.Files = files
	return artifact, nil
}

// List returns the stage files under prefix. Candidate locations are tried in order and the
// first non-empty listing wins; an error is returned only if every candidate failed.
func (s *Stage) List(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimSuffix(prefix, "/")
	candidates := []string{"@~/" + prefix + "/", "@~/" + prefix}

	var (
		lastErr  error
		failures int
	)
	for _, location := range candidates {
		files, err := s.list(ctx, location)
		if err != nil {
			s.log.Debugn("Listing stage location failed",
				logger.NewStringField(logfield.StagePrefix, location),
				obskit.Error(err),
			)
			lastErr = err
			failures++
			continue
		}

		files = lo.Filter(files, func(name string, _ int) bool {
			return strings.HasPrefix(name, prefix+"/") || name == prefix
		})
		if len(files) > 0 {
			return files, nil
		}
	}
	if failures == len(candidates) {
		return nil, lastErr
	}
	return nil, nil
}

func (s *Stage) list(ctx context.Context, location string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`LIST %s;`, location))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries, err := scanNamed(rows)
	if err != nil {
		return nil, err
	}
	return lo.Map(entries, func(entry map[string]string, _ int) string {
		return stageRelative(entry["name"])
	}), nil
}

// Download retrieves the artifact's files into localDir and returns the local paths found there.
// A single wildcard GET is tried first, then one GET per file.
func (s *Stage) Download(ctx context.Context, artifact model.StagedArtifact, localDir string) ([]string, error) {
	log := s.log.Withn(
		logger.NewStringField(logfield.StagePrefix, artifact.Prefix),
		logger.NewStringField(logfield.LocalDir, localDir),
	)

	target := sqlident.Literal("file://" + filepath.ToSlash(localDir) + "/")

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`GET %s %s;`, artifact.Path(), target))
	if err == nil {
		files, listErr := scratch.Files(localDir)
		if listErr != nil {
			return nil, listErr
		}
		if len(files) > 0 {
			return files, nil
		}
		log.Warnn("Wildcard retrieval produced no local files, retrieving files individually")
	} else {
		log.Warnn("Wildcard retrieval failed, retrieving files individually", obskit.Error(err))
	}

	lastErr := err
	for _, file := range artifact.Files {
		source := sqlident.Literal("@~/" + file)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`GET %s %s;`, source, target)); err != nil {
			log.Warnn("Retrieving file", logger.NewStringField(logfield.FileName, file), obskit.Error(err))
			lastErr = err
		}
	}

	files, err := scratch.Files(localDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("retrieving %s: no files downloaded: %w", artifact.Path(), lastErr)
		}
		return nil, fmt.Errorf("retrieving %s: no files downloaded", artifact.Path())
	}
	return files, nil
}

// Upload puts every local file under prefix without recompressing, then lists what landed.
func (s *Stage) Upload(ctx context.Context, localFiles []string, prefix string) (model.StagedArtifact, error) {
	artifact := model.StagedArtifact{Prefix: prefix}

	for _, localFile := range localFiles {
		source := sqlident.Literal("file://" + filepath.ToSlash(localFile))
		sqlStatement := fmt.Sprintf(`PUT %s %s OVERWRITE = TRUE AUTO_COMPRESS = FALSE;`, source, artifact.Path())
		if _, err := s.db.ExecContext(ctx, sqlStatement); err != nil {
			return artifact, fmt.Errorf("uploading %s: %w", filepath.Base(localFile), err)
		}
	}

	files, err := s.List(ctx, prefix)
	if err != nil {
		return artifact, fmt.Errorf("listing uploaded files: %w", err)
	}
	artifact.Files = files
	return artifact, nil
}

// Load copies the artifact into ref, matching columns by name. Any bad row aborts the statement
// and the staged files are purged on success.
func (s *Stage) Load(ctx context.Context, ref model.TableRef, artifact model.StagedArtifact) error {
	sqlStatement := fmt.Sprintf(`
		COPY INTO %[1]s
		FROM %[2]s
		%[3]s
		MATCH_BY_COLUMN_NAME = CASE_INSENSITIVE
		ON_ERROR = 'ABORT_STATEMENT'
		PURGE = TRUE;
	`,
		ref.Fq(),
		artifact.Path(),
		csvFormat.load(),
	)
	if _, err := s.db.ExecContext(ctx, sqlStatement); err != nil {
		return fmt.Errorf("loading %s: %w", ref, err)
	}
	return nil
}

// Remove deletes every file under the artifact's prefix.
func (s *Stage) Remove(ctx context.Context, artifact model.StagedArtifact) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`REMOVE %s;`, artifact.Path())); err != nil {
		return fmt.Errorf("removing %s: %w", artifact.Path(), err)
	}
	return nil
}

func stageRelative(name string) string {
	name = strings.TrimPrefix(name, "@")
	return strings.TrimPrefix(name, "~/")
}
