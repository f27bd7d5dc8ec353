package migrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-go-kit/filemanager"
	"github.com/rudderlabs/rudder-go-kit/logger"
)

type fakeUploader struct {
	uploads [][]string
	err     error
}

func (u *fakeUploader) Upload(_ context.Context, file *os.File, prefixes ...string) (filemanager.UploadedFile, error) {
	if u.err != nil {
		return filemanager.UploadedFile{}, u.err
	}
	key := append(append([]string(nil), prefixes...), filepath.Base(file.Name()))
	u.uploads = append(u.uploads, key)
	return filemanager.UploadedFile{Location: "s3://bucket/" + filepath.Join(key...)}, nil
}

func TestObjectArchiver(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "data.csv.gz")
	require.NoError(t, os.WriteFile(file, []byte("ID\n1\n"), 0o600))

	t.Run("uploads under run and table", func(t *testing.T) {
		u := &fakeUploader{}
		a := newObjectArchiver(u, "run-1", logger.NOP)

		require.NoError(t, a.Archive(context.Background(), "ORDERS", []string{file}))
		require.Equal(t, [][]string{{"run-1", "ORDERS", "data.csv.gz"}}, u.uploads)
	})

	t.Run("upload failure", func(t *testing.T) {
		a := newObjectArchiver(&fakeUploader{err: errors.New("access denied")}, "run-1", logger.NOP)
		require.ErrorContains(t, a.Archive(context.Background(), "ORDERS", []string{file}), "access denied")
	})

	t.Run("archival failure does not fail the table", func(t *testing.T) {
		env := newTestEnv(t, "ORDERS")
		env.source.addTable("ORDERS", ordersColumns, 3, ordersValue)

		report := env.run(t, WithArchiver(newObjectArchiver(&fakeUploader{err: errors.New("bucket missing")}, "run-1", logger.NOP)))
		require.True(t, report.Success())
	})
}
