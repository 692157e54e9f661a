package domain

import "time"

// Default politeness values applied when a domain row is first created.
const (
	DefaultMinDelayMs = 1000
	DefaultDailyLimit = 10000
)

// DomainPolicy is the per-host politeness row. Concurrent workers hitting
// the same host serialize on a row lock over this record.
type DomainPolicy struct {
	ID            int64      `db:"id"`
	Domain        string     `db:"domain"`
	MinDelayMs    int        `db:"min_delay_ms"`
	LastCrawledAt *time.Time `db:"last_crawled_at"`
	NextAllowedAt *time.Time `db:"next_allowed_at"`
	DailyLimit    int        `db:"daily_limit"`
	CrawledToday  int        `db:"crawled_today"`
}
