package domain

import "time"

// CrawledPage is the canonical record for a fetched URL.
type CrawledPage struct {
	ID         int64     `db:"id"`
	URL        string    `db:"url"`
	StatusCode int       `db:"status_code"`
	Title      *string   `db:"title"`
	Content    *string   `db:"content"`
	FetchedAt  time.Time `db:"fetched_at"`
}

// PageMetadata is the 1:1 analytical companion of a CrawledPage.
type PageMetadata struct {
	ID          int64   `db:"id"`
	PageID      int64   `db:"page_id"`
	HTMLLength  *int    `db:"html_length"`
	TextLength  *int    `db:"text_length"`
	LinkCount   *int    `db:"link_count"`
	Language    *string `db:"language"`
	ContentHash *string `db:"content_hash"`
	Keywords    []byte  `db:"keywords"`
}

// OutboundLink is one edge of the link graph, many per CrawledPage.
type OutboundLink struct {
	ID           int64     `db:"id"`
	SourcePageID int64     `db:"source_page_id"`
	TargetURL    string    `db:"target_url"`
	IsInternal   bool      `db:"is_internal"`
	DiscoveredAt time.Time `db:"discovered_at"`
}

// CrawlErrorLog is an append-only error record. Messages are truncated to
// 512 characters before insertion.
type CrawlErrorLog struct {
	ID         int64     `db:"id"`
	URL        string    `db:"url"`
	StatusCode *int      `db:"status_code"`
	Message    *string   `db:"error_message"`
	WorkerID   *int      `db:"worker_id"`
	Timestamp  time.Time `db:"timestamp"`
}
