// Package politeness enforces per-domain crawl pacing: minimum delay
// between requests, an explicit next-allowed-at gate, and a daily page
// quota. All coordination happens through a row lock on domain_crawl_policy;
// the database serializes concurrent workers, so there is no in-process lock.
package politeness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jooya/crawler/internal/domain"
	"github.com/jooya/crawler/internal/frontier"
	"github.com/jooya/crawler/internal/logger"
)

// maxWaitRounds caps how many times WaitTurn re-enters the reservation
// after sleeping before it proceeds unconditionally.
const maxWaitRounds = 3

const policyColumns = `id, domain, min_delay_ms, last_crawled_at, next_allowed_at, daily_limit, crawled_today`

// Controller gates workers in front of every HTTP fetch.
type Controller struct {
	db  *sqlx.DB
	log logger.Logger
	now func() time.Time
}

// NewController creates a politeness controller.
func NewController(db *sqlx.DB, log logger.Logger) *Controller {
	return &Controller{
		db:  db,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WaitTurn blocks until the URL's domain permits a fetch. On return the
// caller holds the turn: last_crawled_at is fresh and crawled_today counts
// this attempt. Quota-exhausted domains sleep until the next UTC day.
func (c *Controller) WaitTurn(ctx context.Context, rawURL string) error {
	host := frontier.Domain(rawURL)
	if host == "" {
		return fmt.Errorf("politeness: no host in url %q", rawURL)
	}

	delayRounds := 0
	for {
		// After enough delay rounds the turn is taken unconditionally; the
		// quota gate is never forced and always re-enters after sleeping.
		force := delayRounds >= maxWaitRounds

		dec, err := c.reserve(ctx, host, force)
		if err != nil {
			return err
		}

		if dec.Wait <= 0 {
			return nil
		}

		c.log.Debug("waiting for domain turn",
			logger.String("domain", host),
			logger.Duration("wait", dec.Wait),
		)

		if sleepErr := sleepContext(ctx, dec.Wait); sleepErr != nil {
			return sleepErr
		}

		if !dec.QuotaExceeded {
			delayRounds++
		}
	}
}

// decision is the outcome of one reservation round.
type decision struct {
	// Wait is how long the caller must sleep before re-entering. Zero means
	// the turn was taken and the fetch may proceed.
	Wait time.Duration
	// QuotaExceeded marks a wait caused by the daily limit.
	QuotaExceeded bool
}

// reserve runs one round of the §politeness algorithm inside a row-lock
// transaction. When force is set, a plain delay wait (not quota) is taken
// immediately instead of being reported back.
func (c *Controller) reserve(ctx context.Context, host string, force bool) (decision, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return decision{}, fmt.Errorf("politeness: begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	policy, lockErr := lockPolicyRow(ctx, tx, host)
	if lockErr != nil {
		return decision{}, lockErr
	}

	now := c.now()
	dec := decide(policy, now)

	if applyErr := applyDecision(ctx, tx, policy, dec, now, force); applyErr != nil {
		return decision{}, applyErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return decision{}, fmt.Errorf("politeness: commit: %w", commitErr)
	}

	if force && !dec.QuotaExceeded {
		dec.Wait = 0
	}

	return dec, nil
}

// lockPolicyRow selects the domain row FOR UPDATE, inserting defaults on
// first sight of the domain.
func lockPolicyRow(ctx context.Context, tx *sqlx.Tx, host string) (*domain.DomainPolicy, error) {
	selectQuery := `SELECT ` + policyColumns + ` FROM domain_crawl_policy WHERE domain = $1 FOR UPDATE`

	var policy domain.DomainPolicy
	err := tx.GetContext(ctx, &policy, selectQuery, host)
	if err == nil {
		return &policy, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("politeness: select policy: %w", err)
	}

	_, insertErr := tx.ExecContext(ctx, `
		INSERT INTO domain_crawl_policy (domain, min_delay_ms, daily_limit, crawled_today)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (domain) DO NOTHING
	`, host, domain.DefaultMinDelayMs, domain.DefaultDailyLimit)
	if insertErr != nil {
		return nil, fmt.Errorf("politeness: insert policy: %w", insertErr)
	}

	if selectErr := tx.GetContext(ctx, &policy, selectQuery, host); selectErr != nil {
		return nil, fmt.Errorf("politeness: reselect policy: %w", selectErr)
	}

	return &policy, nil
}

// decide computes the wait for the locked policy row at the given instant.
// Timestamps read from the database are treated as UTC.
func decide(p *domain.DomainPolicy, now time.Time) decision {
	crawledToday := p.CrawledToday
	if p.LastCrawledAt != nil && onEarlierUTCDay(*p.LastCrawledAt, now) {
		crawledToday = 0
	}

	var minDelayWait time.Duration
	if p.LastCrawledAt != nil {
		elapsed := now.Sub(p.LastCrawledAt.UTC())
		minDelayWait = time.Duration(p.MinDelayMs)*time.Millisecond - elapsed
		if minDelayWait < 0 {
			minDelayWait = 0
		}
	}

	var nextAllowedWait time.Duration
	if p.NextAllowedAt != nil {
		nextAllowedWait = p.NextAllowedAt.UTC().Sub(now)
		if nextAllowedWait < 0 {
			nextAllowedWait = 0
		}
	}

	wait := minDelayWait
	if nextAllowedWait > wait {
		wait = nextAllowedWait
	}

	if crawledToday >= p.DailyLimit {
		dayWait := startOfNextUTCDay(now).Sub(now)
		if dayWait > wait {
			wait = dayWait
		}
		return decision{Wait: wait, QuotaExceeded: true}
	}

	return decision{Wait: wait}
}

// applyDecision writes the reservation back. Taking the turn sets
// last_crawled_at and counts the attempt; deferring sets next_allowed_at so
// other workers observe the reservation. Quota waits are never counted.
func applyDecision(
	ctx context.Context,
	tx *sqlx.Tx,
	p *domain.DomainPolicy,
	dec decision,
	now time.Time,
	force bool,
) error {
	crawledToday := p.CrawledToday
	if p.LastCrawledAt != nil && onEarlierUTCDay(*p.LastCrawledAt, now) {
		crawledToday = 0
	}

	switch {
	case dec.QuotaExceeded:
		nextDay := startOfNextUTCDay(now)
		_, err := tx.ExecContext(ctx, `
			UPDATE domain_crawl_policy
			SET crawled_today = $2, next_allowed_at = $3
			WHERE id = $1
		`, p.ID, crawledToday, nextDay)
		if err != nil {
			return fmt.Errorf("politeness: record quota wait: %w", err)
		}

	case dec.Wait > 0 && !force:
		_, err := tx.ExecContext(ctx, `
			UPDATE domain_crawl_policy
			SET crawled_today = $2, next_allowed_at = $3
			WHERE id = $1
		`, p.ID, crawledToday, now.Add(dec.Wait))
		if err != nil {
			return fmt.Errorf("politeness: record wait: %w", err)
		}

	default:
		_, err := tx.ExecContext(ctx, `
			UPDATE domain_crawl_policy
			SET last_crawled_at = $2, crawled_today = $3, next_allowed_at = NULL
			WHERE id = $1
		`, p.ID, now, crawledToday+1)
		if err != nil {
			return fmt.Errorf("politeness: take turn: %w", err)
		}
	}

	return nil
}

// onEarlierUTCDay reports whether a falls on a UTC calendar day before b.
func onEarlierUTCDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}

// startOfNextUTCDay returns midnight UTC of the day after t.
func startOfNextUTCDay(t time.Time) time.Time {
	t = t.UTC()
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// sleepContext sleeps for d or returns the context error on cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
