package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	svcMetric "github.com/rudderlabs/rudder-go-kit/stats/metric"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/rudderlabs/sf-migrate/migrator"
	"github.com/rudderlabs/sf-migrate/migrator/integrations/snowflake"
	"github.com/rudderlabs/sf-migrate/migrator/integrations/snowflake/errclass"
	"github.com/rudderlabs/sf-migrate/utils/misc"
)

const (
	exitOK          = 0
	exitFatal       = 1
	exitIncomplete  = 2
	exitInterrupted = 130
)

// errIncomplete means the run finished but some tables ended in ERROR or ROWCOUNT_MISMATCH.
var errIncomplete = errors.New("migration finished with failed tables")

// ReleaseInfo holds the release information
type ReleaseInfo struct {
	Version   string
	Major     string
	Minor     string
	Patch     string
	Commit    string
	BuildDate string
	BuiltBy   string
	GitURL    string
}

// Runner wires configuration, sessions and the migrator behind the command line.
type Runner struct {
	releaseInfo  ReleaseInfo
	conf         *config.Config
	log          logger.Logger
	statsFactory stats.Stats
	stdout       io.Writer
}

// New creates and initializes a new Runner
func New(releaseInfo ReleaseInfo) *Runner {
	return &Runner{
		releaseInfo:  releaseInfo,
		conf:         config.Default,
		log:          logger.NewLogger().Child("runner"),
		statsFactory: stats.NOP,
		stdout:       os.Stdout,
	}
}

// Run runs the command line in args and returns the exit code
func (r *Runner) Run(ctx context.Context, args []string) int {
	path, err := r.conf.ConfigFileUsed()
	if err != nil {
		r.log.Debugn("No config file used", obskit.Error(err))
	} else {
		r.log.Infon("Using config file", logger.NewStringField("path", path))
	}

	statsOptions := []stats.Option{
		stats.WithServiceName("sf-migrate"),
		stats.WithServiceVersion(r.releaseInfo.Version),
	}
	for histogramName, buckets := range customBuckets {
		statsOptions = append(statsOptions, stats.WithHistogramBuckets(histogramName, buckets))
	}
	r.statsFactory = stats.NewStats(r.conf, logger.Default, svcMetric.Instance, statsOptions...)
	if err := r.statsFactory.Start(ctx, stats.DefaultGoRoutineFactory); err != nil {
		r.log.Errorn("Starting stats", obskit.Error(err))
		return exitFatal
	}
	defer r.statsFactory.Stop()
	defer logger.Sync()

	err = r.app().RunContext(ctx, args)
	code := exitCode(ctx, err)
	switch code {
	case exitOK:
	case exitInterrupted:
		r.log.Warnn("Interrupted")
	case exitIncomplete:
		r.log.Warnn("Migration incomplete", obskit.Error(err))
	default:
		r.log.Errorn("Migration aborted", obskit.Error(err))
	}
	return code
}

func (r *Runner) app() *cli.App {
	return &cli.App{
		Name:    "sf-migrate",
		Usage:   "migrate tables between Snowflake accounts through file staging",
		Version: r.releaseInfo.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "load environment variables from `FILE` before reading configuration",
			},
		},
		Before: func(c *cli.Context) error {
			if envFile := c.String("env-file"); envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("loading %s: %w", envFile, err)
				}
			}
			return nil
		},
		Action: r.migrate,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "migrate every configured table",
				Action: r.migrate,
			},
			{
				Name:   "check",
				Usage:  "connect to both accounts and resolve the configured tables without migrating",
				Action: r.check,
			},
			{
				Name:   "audit",
				Usage:  "print samples and NULL counts of the configured tables",
				Action: r.audit,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "side",
						Value: snowflake.SideSource,
						Usage: "account to audit: source or target",
					},
				},
			},
			{
				Name:   "version",
				Usage:  "print release information",
				Action: r.version,
			},
		},
		Writer:         r.stdout,
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func (r *Runner) migrate(c *cli.Context) error {
	ctx := c.Context

	cfg, err := migrator.LoadConfig(r.conf)
	if err != nil {
		return err
	}

	source, target, err := r.connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions(source, target)

	tmpRoot, err := misc.CreateTMPDIR(r.conf)
	if err != nil {
		return fmt.Errorf("resolving temporary directory: %w", err)
	}

	runID := uuid.New().String()
	opts := []migrator.Opt{
		migrator.WithRunID(runID),
		migrator.WithTmpRoot(tmpRoot),
	}
	if cfg.Archive.Enabled {
		archiver, err := migrator.NewObjectArchiver(r.conf, cfg.Archive, runID, r.log)
		if err != nil {
			return fmt.Errorf("setting up archival: %w", err)
		}
		opts = append(opts, migrator.WithArchiver(archiver))
	}

	report, err := r.newMigrator(cfg, source, target, opts...).Run(ctx)
	if report != nil {
		report.Render(r.stdout)
	}
	if err != nil {
		return err
	}
	if !report.Success() {
		return errIncomplete
	}
	return nil
}

func (r *Runner) check(c *cli.Context) error {
	ctx := c.Context

	cfg, err := migrator.LoadConfig(r.conf)
	if err != nil {
		return err
	}

	source, target, err := r.connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions(source, target)

	tables, err := r.newMigrator(cfg, source, target).Resolve(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		_, _ = fmt.Fprintln(r.stdout, table.String())
	}
	return nil
}

func (r *Runner) audit(c *cli.Context) error {
	ctx := c.Context

	cfg, err := migrator.LoadConfig(r.conf)
	if err != nil {
		return err
	}

	var account migrator.AccountConfig
	side := strings.ToLower(c.String("side"))
	switch side {
	case snowflake.SideSource:
		account = cfg.Source
	case snowflake.SideTarget:
		account = cfg.Target
	default:
		return fmt.Errorf("%w: unknown side %q", migrator.ErrInvalidConfig, side)
	}

	gate := snowflake.NewGate(r.conf, r.log, r.statsFactory, errclass.New(r.conf))
	session, err := gate.Open(ctx, side, account.Credentials)
	if err != nil {
		return err
	}
	defer closeSessions(session)

	if err := session.EnsureNamespace(ctx, account.Database, account.Schema, false); err != nil {
		return err
	}

	auditor := migrator.NewAuditor(
		snowflake.NewCatalog(session, r.log, cfg.FallbackOwner),
		account.Database,
		account.Schema,
		cfg.Audit.SampleRows,
		r.log,
	)
	audits, err := auditor.Audit(ctx, cfg.Audit.Tables)
	migrator.RenderAudits(r.stdout, audits)
	return err
}

func (r *Runner) version(*cli.Context) error {
	_, _ = fmt.Fprintf(r.stdout, "Version: %s\nRelease: %s.%s.%s\nCommit: %s\nBuildDate: %s\nBuiltBy: %s\nGitURL: %s\n",
		r.releaseInfo.Version,
		r.releaseInfo.Major,
		r.releaseInfo.Minor,
		r.releaseInfo.Patch,
		r.releaseInfo.Commit,
		r.releaseInfo.BuildDate,
		r.releaseInfo.BuiltBy,
		r.releaseInfo.GitURL,
	)
	return nil
}

// connect opens both sessions concurrently. If either fails, the other is closed.
func (r *Runner) connect(ctx context.Context, cfg migrator.Config) (source, target *snowflake.Session, err error) {
	gate := snowflake.NewGate(r.conf, r.log, r.statsFactory, errclass.New(r.conf))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		source, err = gate.Open(gCtx, snowflake.SideSource, cfg.Source.Credentials)
		return err
	})
	g.Go(func() error {
		var err error
		target, err = gate.Open(gCtx, snowflake.SideTarget, cfg.Target.Credentials)
		return err
	})
	if err := g.Wait(); err != nil {
		closeSessions(source, target)
		return nil, nil, err
	}
	return source, target, nil
}

func (r *Runner) newMigrator(cfg migrator.Config, source, target *snowflake.Session, opts ...migrator.Opt) *migrator.Migrator {
	endpoint := func(session *snowflake.Session, account migrator.AccountConfig) migrator.Endpoint {
		return migrator.Endpoint{
			Account:   account.Account,
			Database:  account.Database,
			Schema:    account.Schema,
			Catalog:   snowflake.NewCatalog(session, r.log, cfg.FallbackOwner),
			Stage:     snowflake.NewStage(r.conf, session, r.log),
			Namespace: session,
		}
	}
	grants := snowflake.NewGrantReplicator(target, r.log, r.statsFactory, errclass.New(r.conf))

	return migrator.New(
		cfg,
		r.log,
		r.statsFactory,
		endpoint(source, cfg.Source),
		endpoint(target, cfg.Target),
		grants,
		opts...,
	)
}

func closeSessions(sessions ...*snowflake.Session) {
	for _, session := range sessions {
		if session != nil {
			_ = session.Close()
		}
	}
}

// exitCode maps the outcome of a command to the process exit status.
func exitCode(ctx context.Context, err error) int {
	switch {
	case errors.Is(err, migrator.ErrInterrupted), err != nil && ctx.Err() != nil:
		return exitInterrupted
	case err == nil:
		return exitOK
	case errors.Is(err, errIncomplete):
		return exitIncomplete
	default:
		return exitFatal
	}
}
