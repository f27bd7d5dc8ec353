package snowflake

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/rudderlabs/sf-migrate/migrator/integrations/snowflake/errclass"
	"github.com/rudderlabs/sf-migrate/migrator/internal/sqlident"
	"github.com/rudderlabs/sf-migrate/migrator/logfield"
	"github.com/rudderlabs/sf-migrate/migrator/model"
)

// privileges are keywords and cannot be quoted, so only plain keyword sequences are replayed
var validPrivilege = regexp.MustCompile(`^[A-Z][A-Z ]*[A-Z]$`)

// GrantReplicator recreates ownership and role grants on target tables.
// It is best-effort: failures are logged and counted, never returned.
type GrantReplicator struct {
	db           querier
	log          logger.Logger
	statsFactory stats.Stats
	classifier   *errclass.Classifier

	roles map[string]struct{}
}

func NewGrantReplicator(db querier, log logger.Logger, statsFactory stats.Stats, classifier *errclass.Classifier) *GrantReplicator {
	return &GrantReplicator{
		db:           db,
		log:          log.Child("grants"),
		statsFactory: statsFactory,
		classifier:   classifier,
		roles:        make(map[string]struct{}),
	}
}

// Replicate transfers ownership of ref to owner, revoking current grants, and then applies grants.
// Ownership goes first so the revocation cannot strip the grants replayed here.
func (g *GrantReplicator) Replicate(ctx context.Context, ref model.TableRef, owner model.OwnerRole, grants []model.Grant) model.GrantSummary {
	log := g.log.Withn(logger.NewStringField(logfield.TableName, ref.String()))

	var summary model.GrantSummary
	if owner != "" {
		summary.OwnerTransferred = g.transferOwnership(ctx, ref, string(owner), log)
	}

	for _, grant := range grants {
		switch g.grant(ctx, ref, grant, log) {
		case grantApplied:
			summary.Applied++
		case grantSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	log.Infon("Grants replicated",
		logger.NewStringField(logfield.Owner, string(owner)),
		logger.NewBoolField("ownerTransferred", summary.OwnerTransferred),
		logger.NewIntField("applied", int64(summary.Applied)),
		logger.NewIntField("skipped", int64(summary.Skipped)),
		logger.NewIntField("failed", int64(summary.Failed)),
	)
	return summary
}

type grantResult int

const (
	grantApplied grantResult = iota
	grantSkipped
	grantFailed
)

func (g *GrantReplicator) transferOwnership(ctx context.Context, ref model.TableRef, owner string, log logger.Logger) bool {
	if err := g.ensureRole(ctx, owner); err != nil {
		g.failure(errclass.KindUnknown)
		log.Warnn("Ensuring owner role", logger.NewStringField(logfield.Owner, owner), obskit.Error(err))
		return false
	}

	sqlStatement := fmt.Sprintf(`GRANT OWNERSHIP ON TABLE %s TO ROLE %s REVOKE CURRENT GRANTS;`,
		ref.Fq(),
		sqlident.Quote(owner),
	)
	_, err := g.db.ExecContext(ctx, sqlStatement)
	if err == nil {
		return true
	}
	kind := g.classifier.Classify(err)
	if kind == errclass.KindAlreadyOwned {
		log.Debugn("Role already owns table", logger.NewStringField(logfield.Owner, owner))
		return true
	}
	g.failure(kind)
	log.Warnn("Transferring ownership", logger.NewStringField(logfield.Owner, owner), obskit.Error(err))
	return false
}

func (g *GrantReplicator) grant(ctx context.Context, ref model.TableRef, grant model.Grant, log logger.Logger) grantResult {
	log = log.Withn(
		logger.NewStringField(logfield.Grantee, grant.Role),
		logger.NewStringField(logfield.Privilege, grant.Privilege),
	)

	privilege := strings.ToUpper(strings.TrimSpace(grant.Privilege))
	if !validPrivilege.MatchString(privilege) {
		log.Warnn("Skipping grant with unsupported privilege")
		return grantSkipped
	}

	if err := g.ensureRole(ctx, grant.Role); err != nil {
		g.failure(errclass.KindUnknown)
		log.Warnn("Ensuring grantee role", obskit.Error(err))
		return grantFailed
	}

	sqlStatement := fmt.Sprintf(`GRANT %s ON TABLE %s TO ROLE %s;`, privilege, ref.Fq(), sqlident.Quote(grant.Role))
	_, err := g.db.ExecContext(ctx, sqlStatement)
	if err == nil {
		return grantApplied
	}

	kind := g.classifier.Classify(err)
	if kind == errclass.KindAlreadyExists || kind == errclass.KindDependentGrant {
		log.Debugn("Grant already in place", logger.NewStringField("kind", string(kind)))
		return grantSkipped
	}
	g.failure(kind)
	log.Warnn("Applying grant", obskit.Error(err))
	return grantFailed
}

// ensureRole creates role once per run. Roles are account-wide.
func (g *GrantReplicator) ensureRole(ctx context.Context, role string) error {
	if _, ok := g.roles[role]; ok {
		return nil
	}

	_, err := g.db.ExecContext(ctx, fmt.Sprintf(`CREATE ROLE IF NOT EXISTS %s;`, sqlident.Quote(role)))
	if err != nil && !g.classifier.Is(err, errclass.KindAlreadyExists) {
		return fmt.Errorf("creating role %s: %w", role, err)
	}
	g.roles[role] = struct{}{}
	return nil
}

func (g *GrantReplicator) failure(kind errclass.Kind) {
	g.statsFactory.NewTaggedStat("sf_migrate_grant_failures", stats.CountType, stats.Tags{"kind": string(kind)}).Increment()
}
