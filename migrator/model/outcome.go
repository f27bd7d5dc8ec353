package model

import "time"

type State string

const (
	StateAnalyzing      State = "ANALYZING"
	StateCreatingTarget State = "CREATING_TARGET"
	StateExporting      State = "EXPORTING"
	StateDownloading    State = "DOWNLOADING"
	StateUploading      State = "UPLOADING"
	StateLoading        State = "LOADING"
	StateReconciling    State = "RECONCILING"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

type Status string

const (
	StatusOK               Status = "OK"
	StatusOKEmpty          Status = "OK_EMPTY"
	StatusNoColumns        Status = "NO_COLUMNS"
	StatusRowCountMismatch Status = "ROWCOUNT_MISMATCH"
	StatusError            Status = "ERROR"
)

// Successful reports whether the status counts as a successful migration.
func (s Status) Successful() bool {
	return s == StatusOK || s == StatusOKEmpty
}

// Outcome is the result of migrating one table. It is never mutated once produced.
type Outcome struct {
	Table           string        `json:"table"`
	SourceRows      int64         `json:"source_rows"`
	DestinationRows int64         `json:"destination_rows"`
	Status          Status        `json:"status"`
	FailedState     State         `json:"failed_state,omitempty"`
	Error           string        `json:"error,omitempty"`
	Duration        time.Duration `json:"duration_ns"`
	Grants          *GrantSummary `json:"grants,omitempty"`
}
