package model

// DefaultOwnerRole owns a migrated table when the source owner cannot be resolved.
const DefaultOwnerRole = "ACCOUNTADMIN"

const (
	GranteeTypeRole = "ROLE"

	PrivilegeOwnership = "OWNERSHIP"
)

// Grant is a privilege held by a role on a single table.
type Grant struct {
	Role      string
	Privilege string
}

// OwnerRole is the role owning a table.
type OwnerRole string

// GrantSummary counts what happened while replaying grants on one table.
type GrantSummary struct {
	OwnerTransferred bool `json:"owner_transferred"`
	Applied          int  `json:"applied"`
	Skipped          int  `json:"skipped"`
	Failed           int  `json:"failed"`
}
