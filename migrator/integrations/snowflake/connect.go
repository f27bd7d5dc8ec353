package snowflake

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/snowflakedb/gosnowflake"
	"github.com/youmark/pkcs8"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/rudderlabs/sf-migrate/migrator/integrations/middleware/sqlquerywrapper"
	"github.com/rudderlabs/sf-migrate/migrator/integrations/snowflake/errclass"
	"github.com/rudderlabs/sf-migrate/migrator/internal/sqlident"
	"github.com/rudderlabs/sf-migrate/migrator/logfield"
)

const (
	defaultApplication = "sf-migrate"
	adminRole          = "ACCOUNTADMIN"
)

// Gate opens sessions, enforces the expected identity and makes sure a warehouse is attached.
type Gate struct {
	log          logger.Logger
	statsFactory stats.Stats
	classifier   *errclass.Classifier

	openDB func(cfg *gosnowflake.Config) (*sql.DB, error)

	config struct {
		maxRetries         int
		loginTimeout       time.Duration
		slowQueryThreshold time.Duration
		warehouseSize      string
		autoSuspend        int
	}
}

func NewGate(conf *config.Config, log logger.Logger, statsFactory stats.Stats, classifier *errclass.Classifier) *Gate {
	g := &Gate{
		log:          log.Child("snowflake"),
		statsFactory: statsFactory,
		classifier:   classifier,
		openDB: func(cfg *gosnowflake.Config) (*sql.DB, error) {
			return sql.OpenDB(gosnowflake.NewConnector(gosnowflake.SnowflakeDriver{}, *cfg)), nil
		},
	}
	g.config.maxRetries = conf.GetInt("Migrate.connect.maxRetries", 3)
	g.config.loginTimeout = conf.GetDuration("Migrate.connect.loginTimeout", 60, time.Second)
	g.config.slowQueryThreshold = conf.GetDuration("Migrate.slowQueryThreshold", 5, time.Minute)
	g.config.warehouseSize = conf.GetString("Migrate.warehouse.size", "XSMALL")
	g.config.autoSuspend = conf.GetInt("Migrate.warehouse.autoSuspend", 60)
	return g
}

// Open connects to the account described by creds. An identity mismatch is reported as ErrIdentityMismatch.
func (g *Gate) Open(ctx context.Context, side string, creds Credentials) (*Session, error) {
	log := g.log.Withn(
		logger.NewStringField(logfield.Side, side),
		logger.NewStringField(logfield.Account, creds.Account),
		logger.NewStringField(logfield.User, creds.User),
		logger.NewStringField(logfield.Role, creds.Role),
	)

	cfg, err := g.driverConfig(creds)
	if err != nil {
		return nil, fmt.Errorf("building %s connection config: %w", side, err)
	}

	db, err := g.openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", side, err)
	}

	if err := g.ping(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s account %s: %w", side, creds.Account, err)
	}

	session := &Session{
		DB: sqlquerywrapper.New(
			db,
			sqlquerywrapper.WithLogger(log),
			sqlquerywrapper.WithStats(g.statsFactory, stats.Tags{"side": side}),
			sqlquerywrapper.WithSlowQueryThreshold(g.config.slowQueryThreshold),
			sqlquerywrapper.WithLogFields(logger.NewStringField(logfield.Side, side)),
			sqlquerywrapper.WithSecretsRegex(map[string]string{
				`(?i)PASSWORD\s*=\s*'[^']*'`: "PASSWORD = '***'",
			}),
		),
		Side:    side,
		Account: creds.Account,
		User:    creds.User,
		Role:    creds.Role,
	}

	if err := g.prepare(ctx, session, creds, log); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Infon("Connected", logger.NewStringField(logfield.Warehouse, creds.Warehouse))
	return session, nil
}

func (g *Gate) driverConfig(creds Credentials) (*gosnowflake.Config, error) {
	application := creds.Application
	if application == "" {
		application = defaultApplication
	}

	cfg := &gosnowflake.Config{
		Account:      creds.Account,
		User:         creds.User,
		Role:         creds.Role,
		Application:  application,
		LoginTimeout: g.config.loginTimeout,
	}

	switch {
	case creds.PrivateKeyPath != "":
		key, err := loadPrivateKey(creds.PrivateKeyPath, creds.PrivateKeyPassphrase)
		if err != nil {
			return nil, err
		}
		cfg.Authenticator = gosnowflake.AuthTypeJwt
		cfg.PrivateKey = key
	case strings.EqualFold(creds.Authenticator, "externalbrowser"):
		cfg.Authenticator = gosnowflake.AuthTypeExternalBrowser
	default:
		cfg.Authenticator = gosnowflake.AuthTypeSnowflake
		cfg.Password = creds.Password
	}
	return cfg, nil
}

func (g *Gate) ping(ctx context.Context, db *sql.DB, log logger.Logger) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := db.PingContext(ctx)
		var sfErr *gosnowflake.SnowflakeError
		if errors.As(err, &sfErr) {
			// the account answered, retrying will not change the outcome
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(g.config.maxRetries)), ctx)
	return backoff.RetryNotify(operation, bo, func(err error, next time.Duration) {
		log.Warnn("Connection attempt failed",
			logger.NewIntField(logfield.Attempt, int64(attempt)),
			logger.NewDurationField("retryIn", next),
			obskit.Error(err),
		)
	})
}

func (g *Gate) prepare(ctx context.Context, session *Session, creds Credentials, log logger.Logger) error {
	if _, err := session.ExecContext(ctx, `ALTER SESSION SET ABORT_DETACHED_QUERY=TRUE;`); err != nil {
		return fmt.Errorf("altering session: %w", err)
	}

	user, role, err := currentIdentity(ctx, session)
	if err != nil {
		return err
	}
	if !strings.EqualFold(user, creds.User) || !strings.EqualFold(role, creds.Role) {
		return fmt.Errorf("%w: %s account %s expected user %q role %q, got user %q role %q",
			ErrIdentityMismatch, session.Side, creds.Account, creds.User, creds.Role, user, role,
		)
	}
	log.Infon("Identity verified")

	if creds.Warehouse == "" {
		return nil
	}
	if err := g.ensureWarehouse(ctx, session, creds.Warehouse, log); err != nil {
		return fmt.Errorf("ensuring warehouse %s: %w", creds.Warehouse, err)
	}
	return nil
}

func (g *Gate) ensureWarehouse(ctx context.Context, session *Session, name string, log logger.Logger) error {
	rows, err := session.QueryContext(ctx, fmt.Sprintf(`SHOW WAREHOUSES LIKE %s;`, sqlident.Literal(name)))
	if err != nil {
		return fmt.Errorf("listing warehouses: %w", err)
	}
	warehouses, err := scanNamed(rows)
	_ = rows.Close()
	if err != nil {
		return fmt.Errorf("listing warehouses: %w", err)
	}

	exists := false
	for _, wh := range warehouses {
		if strings.EqualFold(wh["name"], name) {
			exists = true
			break
		}
	}

	if !exists {
		log.Infon("Creating warehouse", logger.NewStringField(logfield.Warehouse, name))

		sqlStatement := fmt.Sprintf(`
			CREATE WAREHOUSE IF NOT EXISTS %[1]s WITH
				WAREHOUSE_SIZE = %[2]s
				AUTO_SUSPEND = %[3]d
				AUTO_RESUME = TRUE
				INITIALLY_SUSPENDED = TRUE;
		`,
			sqlident.Quote(name),
			sqlident.Literal(g.config.warehouseSize),
			g.config.autoSuspend,
		)
		if _, err := session.ExecContext(ctx, sqlStatement); err != nil {
			return fmt.Errorf("creating warehouse: %w", err)
		}

		grantStatement := fmt.Sprintf(`GRANT USAGE ON WAREHOUSE %s TO ROLE %s;`, sqlident.Quote(name), adminRole)
		if _, err := session.ExecContext(ctx, grantStatement); err != nil && !g.classifier.Is(err, errclass.KindAlreadyExists) {
			log.Warnn("Granting warehouse usage", obskit.Error(err))
		}
	}

	if _, err := session.ExecContext(ctx, fmt.Sprintf(`USE WAREHOUSE %s;`, sqlident.Quote(name))); err != nil {
		return fmt.Errorf("using warehouse: %w", err)
	}
	return nil
}

// EnsureNamespace makes database.schema the session's current namespace, creating both when create is set.
func (s *Session) EnsureNamespace(ctx context.Context, database, schema string, create bool) error {
	if strings.EqualFold(schema, informationSchema) {
		return fmt.Errorf("%w: %s is read-only", ErrNamespace, informationSchema)
	}

	var statements []string
	if create {
		statements = append(statements,
			fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s;`, sqlident.Quote(database)),
			fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, sqlident.Qualified(database, schema)),
		)
	}
	statements = append(statements,
		fmt.Sprintf(`USE DATABASE %s;`, sqlident.Quote(database)),
		fmt.Sprintf(`USE SCHEMA %s;`, sqlident.Qualified(database, schema)),
	)

	for _, statement := range statements {
		if _, err := s.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("%w %s.%s on %s: %w", ErrNamespace, database, schema, s.Side, err)
		}
	}
	return nil
}

func loadPrivateKey(path, passphrase string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("decoding private key %s: no PEM block found", path)
	}

	switch {
	case block.Type == "ENCRYPTED PRIVATE KEY":
		key, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("parsing encrypted private key: %w", err)
		}
		return key, nil
	case block.Type == "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		return key, nil
	default:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("parsing private key: expected RSA key, got %T", parsed)
		}
		return key, nil
	}
}
