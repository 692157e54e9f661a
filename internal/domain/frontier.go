// Package domain defines the row types shared by the crawler's storage
// layers. All cross-component coupling goes through these rows; components
// never hold in-memory references to each other's state.
package domain

import "time"

// Frontier status constants. Stored as uppercase strings so multiple
// crawler processes can cooperate on the same tables.
const (
	StatusScheduled  = "SCHEDULED"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	// StatusFailed is reserved for operator intervention. MarkFailed always
	// returns rows to SCHEDULED with backoff; no code path writes FAILED.
	StatusFailed = "FAILED"
)

// FrontierTask is the unit of work handed to a worker under a lease.
type FrontierTask struct {
	ID       int64  `db:"id"`
	URL      string `db:"url"`
	SourceID int    `db:"source_id"`
	Depth    int    `db:"depth"`
	Priority int    `db:"priority"`
}

// FrontierEntry is the full urls_frontier row.
type FrontierEntry struct {
	ID              int64      `db:"id"`
	URL             string     `db:"url"`
	SourceID        int        `db:"source_id"`
	Depth           int        `db:"depth"`
	Priority        int        `db:"priority"`
	Status          string     `db:"status"`
	ScheduledFor    *time.Time `db:"scheduled_for"`
	LastScheduledAt *time.Time `db:"last_scheduled_at"`
	FailCount       int        `db:"fail_count"`
	LastHTTPStatus  *int       `db:"last_http_status"`
	LastErrorCode   *string    `db:"last_error_code"`
	ErrorCategory   *string    `db:"error_category"`
	UpdatedAt       time.Time  `db:"updated_at"`
}
