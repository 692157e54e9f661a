package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jmoiron/sqlx"

	"github.com/jooya/crawler/internal/domain"
)

// ErrNoTaskAvailable is returned by Dequeue when no eligible frontier row
// exists. Callers should check with errors.Is().
var ErrNoTaskAvailable = errors.New("no task available in frontier")

// leaseSweepSeconds bounds how far into the future a row may be parked.
// Rows leased by a crashed worker re-appear after roughly this long.
const leaseSweepSeconds = 1800

// FrontierRepository is the persistent priority queue over urls_frontier.
// Dequeue hands out leases under FOR UPDATE SKIP LOCKED so many workers in
// many processes can pull work without a central coordinator.
type FrontierRepository struct {
	db *sqlx.DB

	// maxDepth/maxPages below zero disable the respective cap.
	maxDepth int
	maxPages int

	// crawledCount tracks DONE transitions for the page cap. Read without a
	// lock; it may overshoot the cap by up to workers-1 pages.
	crawledCount atomic.Int64
}

// NewFrontierRepository creates a frontier repository with the given caps.
func NewFrontierRepository(db *sqlx.DB, maxDepth, maxPages int) *FrontierRepository {
	return &FrontierRepository{db: db, maxDepth: maxDepth, maxPages: maxPages}
}

// RecoverCrawledCount seeds the page-cap counter from the DONE rows already
// in the table, so a restarted process keeps honoring MAX_PAGES.
func (r *FrontierRepository) RecoverCrawledCount(ctx context.Context) error {
	if r.maxPages < 0 {
		return nil
	}

	var count int64
	err := r.db.GetContext(ctx,
		&count,
		`SELECT count(*) FROM urls_frontier WHERE status = $1`,
		domain.StatusDone,
	)
	if err != nil {
		return fmt.Errorf("failed to count done frontier rows: %w", err)
	}

	r.crawledCount.Store(count)
	return nil
}

// PageCapReached reports whether the configured page cap has been hit.
func (r *FrontierRepository) PageCapReached() bool {
	return r.maxPages >= 0 && r.crawledCount.Load() >= int64(r.maxPages)
}

// DepthAllowed reports whether a URL at the given depth may be enqueued.
func (r *FrontierRepository) DepthAllowed(depth int) bool {
	return r.maxDepth < 0 || depth <= r.maxDepth
}

// enqueueUpsert implements the frontier merge semantics: keep the lowest
// depth and the highest priority, and leave DONE rows untouched unless the
// caller forces a recrawl.
const enqueueUpsert = `
	INSERT INTO urls_frontier (url, source_id, depth, priority, status, scheduled_for, last_scheduled_at)
	VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	ON CONFLICT (url, source_id)
	DO UPDATE SET
		depth = LEAST(COALESCE(urls_frontier.depth, EXCLUDED.depth), EXCLUDED.depth),
		priority = GREATEST(COALESCE(urls_frontier.priority, EXCLUDED.priority), EXCLUDED.priority),
		status = CASE WHEN urls_frontier.status = $6 AND NOT $7 THEN urls_frontier.status ELSE EXCLUDED.status END,
		scheduled_for = CASE WHEN urls_frontier.status = $6 AND NOT $7 THEN urls_frontier.scheduled_for ELSE EXCLUDED.scheduled_for END,
		last_scheduled_at = CASE WHEN urls_frontier.status = $6 AND NOT $7 THEN urls_frontier.last_scheduled_at ELSE EXCLUDED.last_scheduled_at END,
		updated_at = NOW()
`

// Enqueue upserts a URL into the frontier as SCHEDULED. No-op when the
// depth cap or page cap forbids new work.
func (r *FrontierRepository) Enqueue(
	ctx context.Context,
	url string,
	sourceID, depth, priority int,
	forceRecrawl bool,
) error {
	if !r.DepthAllowed(depth) {
		return nil
	}
	if r.PageCapReached() {
		return nil
	}

	_, err := r.db.ExecContext(
		ctx, enqueueUpsert,
		url, sourceID, depth, priority,
		domain.StatusScheduled, domain.StatusDone, forceRecrawl,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue frontier URL: %w", err)
	}

	return nil
}

// EnqueueBatch upserts many URLs with shared source/depth/priority in one
// transaction. Empty strings are dropped.
func (r *FrontierRepository) EnqueueBatch(
	ctx context.Context,
	urls []string,
	sourceID, depth, priority int,
) error {
	if !r.DepthAllowed(depth) || r.PageCapReached() {
		return nil
	}

	payload := urls[:0:0]
	for _, u := range urls {
		if u != "" {
			payload = append(payload, u)
		}
	}
	if len(payload) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin enqueue transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	stmt, prepErr := tx.PreparexContext(ctx, enqueueUpsert)
	if prepErr != nil {
		return fmt.Errorf("failed to prepare enqueue statement: %w", prepErr)
	}
	defer stmt.Close()

	for _, u := range payload {
		if _, execErr := stmt.ExecContext(
			ctx, u, sourceID, depth, priority,
			domain.StatusScheduled, domain.StatusDone, false,
		); execErr != nil {
			return fmt.Errorf("failed to enqueue frontier URL %q: %w", u, execErr)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("failed to commit enqueue transaction: %w", commitErr)
	}

	return nil
}

// Dequeue leases the highest-priority eligible row, moving it SCHEDULED ->
// IN_PROGRESS. Returns ErrNoTaskAvailable when the queue has nothing
// eligible, and short-circuits without a query once the page cap is hit.
func (r *FrontierRepository) Dequeue(ctx context.Context) (*domain.FrontierTask, error) {
	if r.PageCapReached() {
		return nil, ErrNoTaskAvailable
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin dequeue transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if sweepErr := sweepLeases(ctx, tx); sweepErr != nil {
		return nil, sweepErr
	}

	task, claimErr := claimNext(ctx, tx)
	if claimErr != nil {
		return nil, claimErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, fmt.Errorf("failed to commit dequeue transaction: %w", commitErr)
	}

	return task, nil
}

// sweepLeases is the liveness scavenger: leases abandoned by crashed workers
// return to SCHEDULED after the sweep window, and no SCHEDULED row may hide
// further in the future than the window allows.
func sweepLeases(ctx context.Context, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE urls_frontier
		SET status = $1, scheduled_for = NOW(), updated_at = NOW()
		WHERE status = $2 AND updated_at < NOW() - make_interval(secs => $3)
	`, domain.StatusScheduled, domain.StatusInProgress, leaseSweepSeconds)
	if err != nil {
		return fmt.Errorf("failed to sweep expired leases: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE urls_frontier
		SET scheduled_for = NOW() + make_interval(secs => $2)
		WHERE status = $1 AND scheduled_for > NOW() + make_interval(secs => $2)
	`, domain.StatusScheduled, leaseSweepSeconds)
	if err != nil {
		return fmt.Errorf("failed to clamp scheduled_for: %w", err)
	}

	return nil
}

// claimNext selects and leases one eligible row inside the transaction.
func claimNext(ctx context.Context, tx *sqlx.Tx) (*domain.FrontierTask, error) {
	var task domain.FrontierTask
	err := tx.GetContext(ctx, &task, `
		WITH next_task AS (
			SELECT id
			FROM urls_frontier
			WHERE status = $1 AND (scheduled_for IS NULL OR scheduled_for <= NOW())
			ORDER BY priority DESC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE urls_frontier AS f
		SET status = $2, updated_at = NOW()
		FROM next_task
		WHERE f.id = next_task.id
		RETURNING f.id, f.url, f.source_id, f.depth, f.priority
	`, domain.StatusScheduled, domain.StatusInProgress)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoTaskAvailable
		}
		return nil, fmt.Errorf("failed to claim frontier task: %w", err)
	}

	return &task, nil
}

// MarkDone terminates a lease: status DONE, fail_count reset. The page-cap
// counter only moves when the row was not already DONE.
func (r *FrontierRepository) MarkDone(ctx context.Context, taskID int64, statusCode *int) error {
	var previousStatus string
	err := r.db.GetContext(ctx, &previousStatus, `
		WITH previous AS (
			SELECT id, status AS previous_status
			FROM urls_frontier
			WHERE id = $3
			FOR UPDATE
		)
		UPDATE urls_frontier AS f
		SET status = $1,
			fail_count = 0,
			last_http_status = $2,
			updated_at = NOW()
		FROM previous
		WHERE f.id = previous.id
		RETURNING previous.previous_status
	`, domain.StatusDone, nullInt(statusCode), taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("frontier task not found: %d", taskID)
		}
		return fmt.Errorf("failed to mark frontier task done: %w", err)
	}

	if r.maxPages >= 0 && previousStatus != domain.StatusDone {
		r.crawledCount.Add(1)
	}

	return nil
}

// MarkFailed returns the row to SCHEDULED with exponential backoff capped at
// the sweep window: scheduled_for = now + LEAST(1800, 30 * 2^(fail_count+1))
// seconds. FAILED is never written here; it is reserved for operators.
func (r *FrontierRepository) MarkFailed(
	ctx context.Context,
	taskID int64,
	statusCode *int,
	errorCode, errorCategory string,
) error {
	result, err := r.db.ExecContext(ctx, `
		WITH current AS (
			SELECT id, COALESCE(fail_count, 0) AS fail_count
			FROM urls_frontier
			WHERE id = $5
			FOR UPDATE
		), computed AS (
			SELECT id,
				fail_count,
				LEAST(1800, 30 * POWER(2, fail_count + 1)) AS delay_secs
			FROM current
		)
		UPDATE urls_frontier AS f
		SET status = $1,
			fail_count = computed.fail_count + 1,
			last_http_status = $2,
			last_error_code = $3,
			error_category = $4,
			scheduled_for = NOW() + make_interval(secs => computed.delay_secs),
			last_scheduled_at = NOW(),
			updated_at = NOW()
		FROM computed
		WHERE f.id = computed.id
	`, domain.StatusScheduled, nullInt(statusCode), nullString(errorCode), nullString(errorCategory), taskID)

	return execRequireRows(result, err, fmt.Errorf("frontier task not found: %d", taskID))
}

// CountScheduled returns the number of rows eligible for dequeue right now.
// Feeds the queue-pending gauge only.
func (r *FrontierRepository) CountScheduled(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT count(*) FROM urls_frontier
		WHERE status = $1 AND (scheduled_for IS NULL OR scheduled_for <= NOW())
	`, domain.StatusScheduled)
	if err != nil {
		return 0, fmt.Errorf("failed to count scheduled frontier rows: %w", err)
	}

	return count, nil
}

// FrontierStats contains aggregate row counts by status.
type FrontierStats struct {
	Scheduled  int
	InProgress int
	Done       int
	Failed     int
}

// Stats returns frontier counts grouped by status (for the status command).
func (r *FrontierRepository) Stats(ctx context.Context) (*FrontierStats, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, count(*) FROM urls_frontier GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query frontier stats: %w", err)
	}
	defer rows.Close()

	stats := &FrontierStats{}
	for rows.Next() {
		var status string
		var count int
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, fmt.Errorf("failed to scan frontier stats row: %w", scanErr)
		}
		switch status {
		case domain.StatusScheduled:
			stats.Scheduled = count
		case domain.StatusInProgress:
			stats.InProgress = count
		case domain.StatusDone:
			stats.Done = count
		case domain.StatusFailed:
			stats.Failed = count
		}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate frontier stats: %w", rowsErr)
	}

	return stats, nil
}
