package entities

import "time"

// Ingestion run outcomes.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// IngestRun is one audit row per ingestion run, recorded whether the run
// succeeded or failed. RunKey is the run identifier that also appears in the
// run's log lines, and PageKey is stored directly rather than through the
// page's surrogate key: a failed run may concern a page that was never
// persisted.
type IngestRun struct {
	ID               int64     `json:"id" db:"id"`
	RunKey           string    `json:"run_key" db:"run_key"`
	PageKey          string    `json:"page_key" db:"page_key"`
	Status           string    `json:"status" db:"status"`
	Error            string    `json:"error,omitempty" db:"error_message"`
	PostsProcessed   int       `json:"posts_processed" db:"posts_processed"`
	MembersProcessed int       `json:"members_processed" db:"members_processed"`
	StartedAt        time.Time `json:"started_at" db:"started_at"`
	FinishedAt       time.Time `json:"finished_at" db:"finished_at"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
