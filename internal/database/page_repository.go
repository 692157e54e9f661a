package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Persistence limits for page records.
const (
	maxContentPreviewChars = 5000
	maxErrorMessageChars   = 512
)

// PageRepository persists crawled pages, their metadata, and outbound links.
// The lease on the frontier row guarantees a single writer per URL, so the
// upserts here never race for the same page.
type PageRepository struct {
	db *sqlx.DB
}

// NewPageRepository creates a new page repository.
func NewPageRepository(db *sqlx.DB) *PageRepository {
	return &PageRepository{db: db}
}

// PageRecord carries everything persisted for one fetched URL.
type PageRecord struct {
	URL         string
	StatusCode  int
	Title       string
	Content     string // preview; truncated to maxContentPreviewChars
	HTMLLength  int
	TextLength  int
	ContentHash string
	Links       []LinkRecord
}

// LinkRecord is one outbound edge of the page.
type LinkRecord struct {
	TargetURL  string
	IsInternal bool
}

// SavePage upserts the page, its metadata, and replaces its outbound links
// in a single transaction. Raw HTML goes to the raw store separately.
func (r *PageRepository) SavePage(ctx context.Context, rec *PageRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin page transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	pageID, upsertErr := upsertPage(ctx, tx, rec)
	if upsertErr != nil {
		return upsertErr
	}

	if metaErr := upsertMetadata(ctx, tx, pageID, rec); metaErr != nil {
		return metaErr
	}

	if linksErr := replaceLinks(ctx, tx, pageID, rec.Links); linksErr != nil {
		return linksErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("failed to commit page transaction: %w", commitErr)
	}

	return nil
}

func upsertPage(ctx context.Context, tx *sqlx.Tx, rec *PageRecord) (int64, error) {
	preview := rec.Content
	if len(preview) > maxContentPreviewChars {
		preview = truncateRunes(preview, maxContentPreviewChars)
	}

	var pageID int64
	err := tx.GetContext(ctx, &pageID, `
		INSERT INTO crawled_pages (url, status_code, title, content, fetched_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (url) DO UPDATE SET
			status_code = EXCLUDED.status_code,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			fetched_at = NOW()
		RETURNING id
	`, rec.URL, rec.StatusCode, nullString(rec.Title), nullString(preview))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert crawled page: %w", err)
	}

	return pageID, nil
}

func upsertMetadata(ctx context.Context, tx *sqlx.Tx, pageID int64, rec *PageRecord) error {
	linkCount := len(rec.Links)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO page_metadata (page_id, html_length, text_length, link_count, content_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (page_id) DO UPDATE SET
			html_length = EXCLUDED.html_length,
			text_length = EXCLUDED.text_length,
			link_count = EXCLUDED.link_count,
			content_hash = EXCLUDED.content_hash
	`, pageID, rec.HTMLLength, rec.TextLength, linkCount, nullString(rec.ContentHash))
	if err != nil {
		return fmt.Errorf("failed to upsert page metadata: %w", err)
	}

	return nil
}

// replaceLinks swaps the page's outbound edges for the freshly extracted
// set. A recrawl must not accumulate stale edges.
func replaceLinks(ctx context.Context, tx *sqlx.Tx, pageID int64, links []LinkRecord) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM outbound_links WHERE source_page_id = $1`, pageID,
	); err != nil {
		return fmt.Errorf("failed to clear outbound links: %w", err)
	}

	for _, link := range links {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outbound_links (source_page_id, target_url, is_internal, discovered_at)
			VALUES ($1, $2, $3, NOW())
		`, pageID, link.TargetURL, link.IsInternal); err != nil {
			return fmt.Errorf("failed to insert outbound link: %w", err)
		}
	}

	return nil
}

// LogError appends a crawl error row. Messages are truncated to 512 chars.
func (r *PageRepository) LogError(
	ctx context.Context,
	url string,
	statusCode *int,
	message string,
	workerID int,
) error {
	if len(message) > maxErrorMessageChars {
		message = truncateRunes(message, maxErrorMessageChars)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO crawl_error_logs (url, status_code, error_message, worker_id, timestamp)
		VALUES ($1, $2, $3, $4, NOW())
	`, url, nullInt(statusCode), nullString(message), workerID)
	if err != nil {
		return fmt.Errorf("failed to insert crawl error log: %w", err)
	}

	return nil
}

// truncateRunes cuts s to at most n runes without splitting a multibyte
// character.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
