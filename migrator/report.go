package migrator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"

	"github.com/rudderlabs/sf-migrate/migrator/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Namespace struct {
	Account  string `json:"account"`
	Database string `json:"database"`
	Schema   string `json:"schema"`
}

// Summary aggregates the outcomes of a run. Successful counts OK and OK_EMPTY.
type Summary struct {
	Total      int   `json:"total"`
	Successful int   `json:"successful"`
	Empty      int   `json:"empty"`
	NoColumns  int   `json:"no_columns"`
	Mismatches int   `json:"mismatches"`
	Errors     int   `json:"errors"`
	RowsMoved  int64 `json:"rows_moved"`
}

// Report lists every table that reached the migration loop, exactly once, in processing order.
type Report struct {
	RunID      string          `json:"run_id"`
	Source     Namespace       `json:"source"`
	Target     Namespace       `json:"target"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Duration   time.Duration   `json:"duration_ns"`
	Summary    Summary         `json:"summary"`
	Outcomes   []model.Outcome `json:"tables"`
}

func newReport(runID string, source, target Endpoint, startedAt time.Time) *Report {
	return &Report{
		RunID:     runID,
		Source:    Namespace{Account: source.Account, Database: source.Database, Schema: source.Schema},
		Target:    Namespace{Account: target.Account, Database: target.Database, Schema: target.Schema},
		StartedAt: startedAt,
		Outcomes:  []model.Outcome{},
	}
}

func (r *Report) add(outcome model.Outcome) {
	r.Outcomes = append(r.Outcomes, outcome)
	r.Summary.Total++
	if outcome.Status.Successful() {
		r.Summary.Successful++
	}

	switch outcome.Status {
	case model.StatusOK:
		r.Summary.RowsMoved += outcome.DestinationRows
	case model.StatusOKEmpty:
		r.Summary.Empty++
	case model.StatusNoColumns:
		r.Summary.NoColumns++
	case model.StatusRowCountMismatch:
		r.Summary.Mismatches++
		r.Summary.RowsMoved += outcome.DestinationRows
	default:
		r.Summary.Errors++
	}
}

func (r *Report) finish(finishedAt time.Time) {
	r.FinishedAt = finishedAt
	r.Duration = finishedAt.Sub(r.StartedAt)
}

// Success reports whether no table ended in ERROR or ROWCOUNT_MISMATCH.
func (r *Report) Success() bool {
	return r.Summary.Errors == 0 && r.Summary.Mismatches == 0
}

// Render writes the per-table results followed by the aggregate counts.
func (r *Report) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Table", "Source rows", "Destination rows", "Status", "Failed state", "Error"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, outcome := range r.Outcomes {
		table.Append([]string{
			outcome.Table,
			strconv.FormatInt(outcome.SourceRows, 10),
			strconv.FormatInt(outcome.DestinationRows, 10),
			string(outcome.Status),
			string(outcome.FailedState),
			outcome.Error,
		})
	}
	table.Render()

	summary := tablewriter.NewWriter(w)
	summary.SetHeader([]string{"Total", "Successful", "Empty", "No columns", "Mismatches", "Errors", "Rows moved", "Duration"})
	summary.SetAutoFormatHeaders(false)
	summary.Append([]string{
		strconv.Itoa(r.Summary.Total),
		strconv.Itoa(r.Summary.Successful),
		strconv.Itoa(r.Summary.Empty),
		strconv.Itoa(r.Summary.NoColumns),
		strconv.Itoa(r.Summary.Mismatches),
		strconv.Itoa(r.Summary.Errors),
		strconv.FormatInt(r.Summary.RowsMoved, 10),
		r.Duration.Round(time.Millisecond).String(),
	})
	summary.Render()
}

// WriteJSON writes the report to path, creating parent directories.
func (r *Report) WriteJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
