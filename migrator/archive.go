package migrator

import (
	"context"
	"fmt"
	"os"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/filemanager"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/rudderlabs/sf-migrate/migrator/logfield"
	"github.com/rudderlabs/sf-migrate/utils/filemanagerutil"
)

type uploader interface {
	Upload(ctx context.Context, file *os.File, prefixes ...string) (filemanager.UploadedFile, error)
}

// ObjectArchiver uploads downloaded export files to object storage under <runID>/<table>/ below the configured prefix.
type ObjectArchiver struct {
	uploader uploader
	runID    string
	log      logger.Logger
}

// NewObjectArchiver creates a file manager for the configured provider and bucket.
func NewObjectArchiver(conf *config.Config, cfg ArchiveConfig, runID string, log logger.Logger) (*ObjectArchiver, error) {
	fm, err := filemanager.New(&filemanager.Settings{
		Provider: cfg.Provider,
		Config:   filemanagerutil.ProviderConfigFromEnv(cfg.Provider, cfg.Bucket, cfg.Prefix, conf),
		Conf:     conf,
	})
	if err != nil {
		return nil, fmt.Errorf("creating file manager: %w", err)
	}
	return newObjectArchiver(fm, runID, log), nil
}

func newObjectArchiver(uploader uploader, runID string, log logger.Logger) *ObjectArchiver {
	return &ObjectArchiver{
		uploader: uploader,
		runID:    runID,
		log:      log.Child("archive"),
	}
}

func (a *ObjectArchiver) Archive(ctx context.Context, table string, files []string) error {
	for _, file := range files {
		location, err := a.upload(ctx, table, file)
		if err != nil {
			return err
		}
		a.log.Debugn("Archived export file",
			logger.NewStringField(logfield.TableName, table),
			logger.NewStringField(logfield.FileName, file),
			logger.NewStringField("location", location),
		)
	}
	return nil
}

func (a *ObjectArchiver) upload(ctx context.Context, table, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	output, err := a.uploader.Upload(ctx, f, a.runID, table)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", path, err)
	}
	return output.Location, nil
}
