package migrator

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/rudderlabs/rudder-go-kit/config"

	"github.com/rudderlabs/sf-migrate/migrator/integrations/snowflake"
	"github.com/rudderlabs/sf-migrate/migrator/model"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// AccountConfig is one side of a migration: how to reach the account and which namespace to use there.
type AccountConfig struct {
	snowflake.Credentials

	Database string
	Schema   string
}

type ArchiveConfig struct {
	Enabled  bool
	Provider string
	Bucket   string
	Prefix   string
}

type AuditConfig struct {
	SampleRows int
	Tables     []string
}

// Config is the static description of a migration run.
type Config struct {
	Source AccountConfig
	Target AccountConfig

	Tables       []string
	LocalBaseDir string
	ReportPath   string

	RemoveExported bool
	GrantsEnabled  bool
	FallbackOwner  string

	Archive ArchiveConfig
	Audit   AuditConfig
}

// LoadConfig reads the Migrate.* keys from conf and validates them.
func LoadConfig(conf *config.Config) (Config, error) {
	cfg := Config{
		Source:         loadAccount(conf, snowflake.SideSource),
		Target:         loadAccount(conf, snowflake.SideTarget),
		Tables:         normalizeTables(conf.GetStringSlice("Migrate.tables", nil)),
		LocalBaseDir:   conf.GetString("Migrate.localBaseDir", ""),
		ReportPath:     conf.GetString("Migrate.reportPath", ""),
		RemoveExported: conf.GetBool("Migrate.stage.removeExported", true),
		GrantsEnabled:  conf.GetBool("Migrate.grants.enabled", true),
		FallbackOwner:  conf.GetString("Migrate.grants.fallbackOwner", model.DefaultOwnerRole),
		Archive: ArchiveConfig{
			Enabled:  conf.GetBool("Migrate.archive.enabled", false),
			Provider: conf.GetString("Migrate.archive.provider", "S3"),
			Bucket:   conf.GetString("Migrate.archive.bucketName", ""),
			Prefix:   conf.GetString("Migrate.archive.prefix", "sf-migrate"),
		},
		Audit: AuditConfig{
			SampleRows: conf.GetInt("Migrate.audit.sampleRows", 5),
			Tables:     normalizeTables(conf.GetStringSlice("Migrate.audit.tables", nil)),
		},
	}
	if len(cfg.Audit.Tables) == 0 {
		cfg.Audit.Tables = cfg.Tables
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadAccount(conf *config.Config, side string) AccountConfig {
	key := func(name string) string {
		return "Migrate." + side + "." + name
	}
	return AccountConfig{
		Credentials: snowflake.Credentials{
			Account:              conf.GetString(key("account"), ""),
			User:                 conf.GetString(key("user"), ""),
			Role:                 conf.GetString(key("role"), ""),
			Warehouse:            conf.GetString(key("warehouse"), ""),
			Password:             conf.GetString(key("password"), ""),
			PrivateKeyPath:       conf.GetString(key("privateKeyPath"), ""),
			PrivateKeyPassphrase: conf.GetString(key("privateKeyPassphrase"), ""),
			Authenticator:        conf.GetString(key("authenticator"), ""),
			Application:          conf.GetString(key("application"), ""),
		},
		Database: conf.GetString(key("database"), ""),
		Schema:   conf.GetString(key("schema"), ""),
	}
}

// normalizeTables trims names and drops blanks and case-insensitive duplicates, keeping the first spelling.
func normalizeTables(tables []string) []string {
	tables = lo.Compact(lo.Map(tables, func(table string, _ int) string {
		return strings.TrimSpace(table)
	}))
	return lo.UniqBy(tables, strings.ToUpper)
}

func (c Config) Validate() error {
	var problems []string
	for side, account := range map[string]AccountConfig{
		snowflake.SideSource: c.Source,
		snowflake.SideTarget: c.Target,
	} {
		problems = append(problems, account.problems(side)...)
	}
	if len(c.Tables) == 0 {
		problems = append(problems, "Migrate.tables: at least one table is required")
	}
	if c.Audit.SampleRows < 0 {
		problems = append(problems, "Migrate.audit.sampleRows: must not be negative")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		problems = append(problems, "Migrate.archive.bucketName: required when archival is enabled")
	}
	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
}

func (a AccountConfig) problems(side string) []string {
	required := map[string]string{
		"account":   a.Account,
		"user":      a.User,
		"role":      a.Role,
		"warehouse": a.Warehouse,
		"database":  a.Database,
		"schema":    a.Schema,
	}
	var problems []string
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, fmt.Sprintf("Migrate.%s.%s: required", side, name))
		}
	}
	if a.Password == "" && a.PrivateKeyPath == "" && a.Authenticator == "" {
		problems = append(problems, fmt.Sprintf("Migrate.%s: one of password, privateKeyPath or authenticator is required", side))
	}
	if strings.EqualFold(a.Schema, "INFORMATION_SCHEMA") {
		problems = append(problems, fmt.Sprintf("Migrate.%s.schema: INFORMATION_SCHEMA cannot be migrated", side))
	}
	return problems
}
