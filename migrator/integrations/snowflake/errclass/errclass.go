// Package errclass classifies Snowflake errors by their numeric code and SQL state.
package errclass

import (
	"errors"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/snowflakedb/gosnowflake"

	"github.com/rudderlabs/rudder-go-kit/config"
)

type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindAlreadyExists     Kind = "already_exists"
	KindDependentGrant    Kind = "dependent_grant"
	KindAlreadyOwned      Kind = "already_owned"
	KindNotFound          Kind = "not_found"
	KindInsufficientPrivs Kind = "insufficient_privileges"
)

const (
	sqlStateDuplicateObject = "42710"
	sqlStateNoData          = "02000"
	sqlStateInsufficient    = "42501"
)

var (
	defaultAlreadyExistsCodes  = []string{"2002"}
	defaultDependentGrantCodes = []string{"3111", "3113"}
	defaultAlreadyOwnedCodes   = []string{"3018"}
	defaultNotFoundCodes       = []string{"2003", "2043"}
	defaultInsufficientCodes   = []string{"3001"}
)

// Classifier maps Snowflake error numbers to kinds. Numbers take precedence over SQL states.
type Classifier struct {
	byNumber map[int]Kind
}

// New builds a classifier whose code lists can be overridden under Migrate.errors.*.
func New(conf *config.Config) *Classifier {
	c := &Classifier{byNumber: make(map[int]Kind)}
	c.register(KindAlreadyExists, conf.GetStringSlice("Migrate.errors.alreadyExistsCodes", defaultAlreadyExistsCodes))
	c.register(KindDependentGrant, conf.GetStringSlice("Migrate.errors.dependentGrantCodes", defaultDependentGrantCodes))
	c.register(KindAlreadyOwned, conf.GetStringSlice("Migrate.errors.alreadyOwnedCodes", defaultAlreadyOwnedCodes))
	c.register(KindNotFound, conf.GetStringSlice("Migrate.errors.notFoundCodes", defaultNotFoundCodes))
	c.register(KindInsufficientPrivs, conf.GetStringSlice("Migrate.errors.insufficientPrivilegesCodes", defaultInsufficientCodes))
	return c
}

func (c *Classifier) register(kind Kind, codes []string) {
	for _, code := range codes {
		n, err := strconv.Atoi(strings.TrimLeft(strings.TrimSpace(code), "0"))
		if err != nil {
			continue
		}
		c.byNumber[n] = kind
	}
}

// Classify returns the kind of err, or KindUnknown if err does not carry a Snowflake error.
func (c *Classifier) Classify(err error) Kind {
	var sfErr *gosnowflake.SnowflakeError
	if !errors.As(err, &sfErr) {
		return KindUnknown
	}
	if kind, ok := c.byNumber[sfErr.Number]; ok {
		return kind
	}
	switch sfErr.SQLState {
	case sqlStateDuplicateObject:
		return KindAlreadyExists
	case sqlStateNoData:
		return KindNotFound
	case sqlStateInsufficient:
		return KindInsufficientPrivs
	}
	return KindUnknown
}

// Is reports whether err classifies as any of kinds.
func (c *Classifier) Is(err error, kinds ...Kind) bool {
	return lo.Contains(kinds, c.Classify(err))
}
