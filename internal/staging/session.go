// Package staging drives a masking run through its states against an isolated working
// copy of a dataset.
package staging

import (
	"time"

	"github.com/vitebski/mysql-data-anonymizer/internal/dataset"
	"github.com/vitebski/mysql-data-anonymizer/internal/preparation"
	"github.com/vitebski/mysql-data-anonymizer/internal/risk"
	"github.com/vitebski/mysql-data-anonymizer/internal/transform"
	"github.com/vitebski/mysql-data-anonymizer/internal/utility"
)

// State is a state of the masking run
type State string

const (
	StateIdle           State = "IDLE"
	StateStaging        State = "STAGING"
	StatePreparing      State = "PREPARING"
	StateSelecting      State = "SELECTING"
	StateTransforming   State = "TRANSFORMING"
	StateRiskAssessment State = "RISK_ASSESSMENT"
	StateRestoring      State = "RESTORING"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// OrdinalColumn is the scratch column holding row ordinals while a selection is active
const OrdinalColumn = "__row_ordinal"

// BackupTableName is the side table holding the unselected rows of a table
func BackupTableName(table string) string {
	return table + "__backup"
}

// RunConfig is everything a run needs besides the dataset
type RunConfig struct {
	Preparation []preparation.Entry
	Plan        *transform.Plan
	// Selection maps a table to the percent of its rows that take part in masking
	Selection map[string]float64
	QISets    []risk.QISet
	Metrics   []risk.MetricRequest
	Assess    []utility.ColumnRef
}

// Session is the state of one run. It is owned by the coordinator goroutine that runs it.
type Session struct {
	ID          string
	Origin      dataset.Store
	WorkingCopy dataset.Store
	Workspace   *dataset.Workspace
	State       State
	Started     time.Time
}

// Report summarizes a finished run
type Report struct {
	SessionID   string
	Origin      string
	WorkingCopy string
	State       State
	Preparation []preparation.Change
	// Selected holds the number of selected rows of each restricted table
	Selected   map[string]int
	Transforms []transform.Result
	Risk       *risk.Assessment
	Utility    *utility.Report
	// Warnings lists metrics that could not be computed
	Warnings []error
	Duration time.Duration
}
