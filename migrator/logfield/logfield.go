package logfield

const (
	RunID              = "runID"
	Status             = "status"
	State              = "state"
	Side               = "side"
	Account            = "account"
	User               = "user"
	Role               = "role"
	Warehouse          = "warehouse"
	Namespace          = "namespace"
	TableName          = "tableName"
	SourceRows         = "sourceRows"
	DestinationRows    = "destinationRows"
	Privilege          = "privilege"
	Grantee            = "grantee"
	GranteeType        = "granteeType"
	Owner              = "owner"
	StagePrefix        = "stagePrefix"
	LocalDir           = "localDir"
	FileName           = "fileName"
	Files              = "files"
	Query              = "query"
	QueryExecutionTime = "queryExecutionTime"
	Duration           = "duration"
	Attempt            = "attempt"
)
