package misc

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rudderlabs/rudder-go-kit/config"
)

// CreateTMPDIR returns the root directory under which scratch directories are allocated.
func CreateTMPDIR(conf *config.Config) (string, error) {
	tmpdirPath := strings.TrimSuffix(conf.GetString("Migrate.tmpDir", ""), "/")
	// second chance: fallback to the OS temp dir if this folder exists
	if tmpdirPath == "" {
		fallbackPath := os.TempDir()
		if _, err := os.Stat(fallbackPath); err == nil {
			tmpdirPath = fallbackPath
		}
	}
	if tmpdirPath == "" {
		return os.UserHomeDir()
	}
	return tmpdirPath, nil
}

// RemoveContents removes all the contents of the directory
func RemoveContents(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	names, err := d.Readdirnames(-1)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err = os.RemoveAll(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceMultiRegex replaces every match of each regex key with its substitute.
func ReplaceMultiRegex(str string, expList map[string]string) (string, error) {
	replacedStr := str
	for regex, substitute := range expList {
		exp, err := regexp.Compile(regex)
		if err != nil {
			return "", err
		}
		replacedStr = exp.ReplaceAllString(replacedStr, substitute)
	}
	return replacedStr, nil
}
