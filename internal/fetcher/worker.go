package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jooya/crawler/internal/database"
	"github.com/jooya/crawler/internal/domain"
	"github.com/jooya/crawler/internal/frontier"
	"github.com/jooya/crawler/internal/logger"
	"github.com/jooya/crawler/internal/metrics"
)

// Pipeline limits.
const (
	// maxParseBytes bounds how much of a body is handed to the extractors.
	maxParseBytes = 500_000

	// Link fan-out caps; heavy pages (body beyond maxParseBytes) get the
	// reduced cap.
	maxLinksPerPage  = 1000
	maxLinksHeavy    = 200
	maxErrorCodeLen  = 64
	defaultIdleDelay = 3 * time.Second
)

// Skip reasons beyond the fetch-level ones.
const (
	skipReasonRobots   = "robots_disallowed"
	skipReasonPath     = "path_filtered"
	skipReasonMaxDepth = "max_depth"
)

// ErrNoTaskAvailable mirrors database.ErrNoTaskAvailable so the pool does
// not import the repository's sentinel through a concrete type.
var ErrNoTaskAvailable = database.ErrNoTaskAvailable

// Frontier is the queue surface the pipeline needs.
type Frontier interface {
	Dequeue(ctx context.Context) (*domain.FrontierTask, error)
	MarkDone(ctx context.Context, taskID int64, statusCode *int) error
	MarkFailed(ctx context.Context, taskID int64, statusCode *int, errorCode, errorCategory string) error
	EnqueueBatch(ctx context.Context, urls []string, sourceID, depth, priority int) error
	DepthAllowed(depth int) bool
	PageCapReached() bool
}

// Politeness gates each fetch on per-domain policy.
type Politeness interface {
	WaitTurn(ctx context.Context, rawURL string) error
}

// RobotsChecker answers robots.txt compliance.
type RobotsChecker interface {
	IsAllowed(ctx context.Context, rawURL string) (bool, error)
}

// PageStore persists page records and error logs.
type PageStore interface {
	SavePage(ctx context.Context, rec *database.PageRecord) error
	LogError(ctx context.Context, url string, statusCode *int, message string, workerID int) error
}

// RawStore persists raw HTML bodies outside the relational transaction.
type RawStore interface {
	StoreRaw(ctx context.Context, url string, statusCode int, body []byte) error
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Workers   int
	IdleDelay time.Duration
	// PathPrefixes optionally restricts hosts to a path prefix, e.g.
	// {"en.wikipedia.org": "/wiki/"}. URLs failing the prefix are marked
	// done without a fetch.
	PathPrefixes map[string]string
}

// Pool runs N workers, each repeatedly leasing a frontier task and driving
// it through pre-checks, fetch, parse, persist, and link discovery.
type Pool struct {
	frontier   Frontier
	politeness Politeness
	robots     RobotsChecker
	pages      PageStore
	raw        RawStore
	client     *Client
	met        *metrics.Metrics
	log        logger.Logger

	workers      int
	idleDelay    time.Duration
	pathPrefixes map[string]string
}

// NewPool creates a worker pool with the given collaborators.
func NewPool(
	fr Frontier,
	pol Politeness,
	rob RobotsChecker,
	pages PageStore,
	raw RawStore,
	client *Client,
	met *metrics.Metrics,
	log logger.Logger,
	cfg PoolConfig,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = defaultIdleDelay
	}

	return &Pool{
		frontier:     fr,
		politeness:   pol,
		robots:       rob,
		pages:        pages,
		raw:          raw,
		client:       client,
		met:          met,
		log:          log,
		workers:      cfg.Workers,
		idleDelay:    cfg.IdleDelay,
		pathPrefixes: cfg.PathPrefixes,
	}
}

// Start launches the workers and blocks until all have returned. Workers
// exit on context cancellation or when the page cap is reached.
func (p *Pool) Start(ctx context.Context) {
	p.log.Info("starting worker pool", logger.Int("workers", p.workers))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	p.log.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	wlog := p.log.With(logger.Int("worker_id", workerID))
	wlog.Info("worker started")

	p.met.WorkerActive.WithLabelValues(workerLabel(workerID)).Set(1)
	defer p.met.WorkerActive.WithLabelValues(workerLabel(workerID)).Set(0)

	for {
		select {
		case <-ctx.Done():
			wlog.Info("worker stopping")
			return
		default:
		}

		if p.frontier.PageCapReached() {
			wlog.Info("page cap reached, worker exiting")
			return
		}

		task, err := p.frontier.Dequeue(ctx)
		if errors.Is(err, ErrNoTaskAvailable) {
			if p.sleepOrCancel(ctx) {
				return
			}
			continue
		}
		if err != nil {
			wlog.Error("dequeue failed", logger.Error(err))
			if p.sleepOrCancel(ctx) {
				return
			}
			continue
		}

		if processErr := p.processTask(ctx, workerID, task); processErr != nil {
			wlog.Error("task processing failed",
				logger.String("url", task.URL),
				logger.Error(processErr),
			)
			p.met.WorkerFailed.WithLabelValues(workerLabel(workerID)).Inc()
		}
	}
}

// sleepOrCancel idles between empty dequeues. Returns true when the context
// was cancelled during the sleep.
func (p *Pool) sleepOrCancel(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(p.idleDelay):
		return false
	}
}

// processTask drives one leased task through the pipeline. A nil return
// means the lease was terminated (done or scheduled-retry); errors mean the
// lease is left to the sweep.
func (p *Pool) processTask(ctx context.Context, workerID int, task *domain.FrontierTask) error {
	wl := workerLabel(workerID)

	if !p.pathAllowed(task.URL) {
		p.met.SkippedLinks.WithLabelValues(skipReasonPath).Inc()
		return p.frontier.MarkDone(ctx, task.ID, nil)
	}

	allowed, robotsErr := p.robots.IsAllowed(ctx, task.URL)
	if robotsErr != nil {
		// Robots failures never block the crawl (fail-open).
		p.log.Warn("robots check failed", logger.String("url", task.URL), logger.Error(robotsErr))
		allowed = true
	}
	if !allowed {
		p.met.SkippedLinks.WithLabelValues(skipReasonRobots).Inc()
		return p.frontier.MarkDone(ctx, task.ID, nil)
	}

	if waitErr := p.politeness.WaitTurn(ctx, task.URL); waitErr != nil {
		return fmt.Errorf("politeness wait: %w", waitErr)
	}

	outcome, fetchErr := p.timedFetch(ctx, wl, task.URL)
	if fetchErr != nil {
		return p.handleFetchError(ctx, workerID, task, fetchErr)
	}

	if outcome.Skipped {
		p.met.SkippedLinks.WithLabelValues(outcome.SkipReason).Inc()
		return p.frontier.MarkDone(ctx, task.ID, statusPtr(outcome.StatusCode))
	}

	if outcome.StatusCode == http.StatusNotFound || outcome.StatusCode == http.StatusGone {
		return p.frontier.MarkDone(ctx, task.ID, statusPtr(outcome.StatusCode))
	}

	if outcome.StatusCode >= http.StatusBadRequest || outcome.Body == "" {
		return p.handleHTTPFailure(ctx, workerID, task, outcome)
	}

	if persistErr := p.parseAndPersist(ctx, workerID, task, outcome); persistErr != nil {
		return persistErr
	}

	if doneErr := p.frontier.MarkDone(ctx, task.ID, statusPtr(outcome.StatusCode)); doneErr != nil {
		return doneErr
	}

	p.met.WorkerProcessed.WithLabelValues(wl).Inc()
	p.met.CrawledPages.WithLabelValues(wl).Inc()
	p.log.Info("page crawled", logger.String("url", task.URL), logger.Int("status", outcome.StatusCode))

	return nil
}

// timedFetch wraps the HTTP call with request metrics.
func (p *Pool) timedFetch(ctx context.Context, workerLabel, url string) (*FetchOutcome, error) {
	p.met.RequestCount.WithLabelValues(workerLabel).Inc()

	timer := time.Now()
	outcome, err := p.client.Fetch(ctx, url)
	p.met.RequestLatency.WithLabelValues(workerLabel).Observe(time.Since(timer).Seconds())

	if err != nil {
		p.met.FailedRequests.WithLabelValues(workerLabel).Inc()
	}

	return outcome, err
}

// handleFetchError classifies a transport failure, logs it, and schedules a
// retry with backoff.
func (p *Pool) handleFetchError(
	ctx context.Context,
	workerID int,
	task *domain.FrontierTask,
	fetchErr error,
) error {
	category := ClassifyFetchError(fetchErr)

	if logErr := p.pages.LogError(ctx, task.URL, nil, fetchErr.Error(), workerID); logErr != nil {
		p.log.Error("error log write failed", logger.Error(logErr))
	}

	if failErr := p.frontier.MarkFailed(
		ctx, task.ID, nil, errorCode(fetchErr), category,
	); failErr != nil {
		return fmt.Errorf("mark failed after fetch error: %w", failErr)
	}

	p.met.WorkerFailed.WithLabelValues(workerLabel(workerID)).Inc()
	p.log.Info("fetch failed",
		logger.String("url", task.URL),
		logger.String("category", category),
		logger.Error(fetchErr),
	)

	return nil
}

// handleHTTPFailure records a 4xx/5xx (or empty-body) response as a retry.
func (p *Pool) handleHTTPFailure(
	ctx context.Context,
	workerID int,
	task *domain.FrontierTask,
	outcome *FetchOutcome,
) error {
	msg := fmt.Sprintf("http status %d", outcome.StatusCode)
	if outcome.Body == "" && outcome.StatusCode < http.StatusBadRequest {
		msg = "empty response body"
	}

	status := statusPtr(outcome.StatusCode)

	if logErr := p.pages.LogError(ctx, task.URL, status, msg, workerID); logErr != nil {
		p.log.Error("error log write failed", logger.Error(logErr))
	}

	if failErr := p.frontier.MarkFailed(ctx, task.ID, status, "http_error", ""); failErr != nil {
		return fmt.Errorf("mark failed after http error: %w", failErr)
	}

	p.met.WorkerFailed.WithLabelValues(workerLabel(workerID)).Inc()
	p.log.Info("page fetch rejected", logger.String("url", task.URL), logger.String("reason", msg))

	return nil
}

// parseAndPersist extracts content, writes the relational records in one
// transaction, saves the raw body, and enqueues discovered links.
func (p *Pool) parseAndPersist(
	ctx context.Context,
	workerID int,
	task *domain.FrontierTask,
	outcome *FetchOutcome,
) error {
	body := outcome.Body
	heavy := len(body) > maxParseBytes

	parseBody := body
	if heavy {
		parseBody = body[:maxParseBytes]
	}

	title := ExtractTitle(parseBody)
	text := ExtractText(parseBody)
	rawLinks := ExtractLinks(task.URL, parseBody)

	baseDomain := frontier.Domain(task.URL)
	persisted, internal := filterLinks(task.URL, baseDomain, rawLinks, linkCap(heavy))

	rec := &database.PageRecord{
		URL:         task.URL,
		StatusCode:  outcome.StatusCode,
		Title:       title,
		Content:     text,
		HTMLLength:  len(body),
		TextLength:  len(text),
		ContentHash: contentHash(text, body),
		Links:       persisted,
	}

	if saveErr := p.pages.SavePage(ctx, rec); saveErr != nil {
		return p.handlePersistError(ctx, workerID, task, outcome, saveErr)
	}

	// Raw HTML goes to the raw store outside the relational transaction.
	if rawErr := p.raw.StoreRaw(ctx, task.URL, outcome.StatusCode, []byte(body)); rawErr != nil {
		return p.handlePersistError(ctx, workerID, task, outcome, rawErr)
	}

	p.enqueueDiscovered(ctx, task, internal)

	return nil
}

// handlePersistError schedules a retry for storage failures.
func (p *Pool) handlePersistError(
	ctx context.Context,
	workerID int,
	task *domain.FrontierTask,
	outcome *FetchOutcome,
	persistErr error,
) error {
	status := statusPtr(outcome.StatusCode)

	if logErr := p.pages.LogError(ctx, task.URL, status, persistErr.Error(), workerID); logErr != nil {
		p.log.Error("error log write failed", logger.Error(logErr))
	}

	if failErr := p.frontier.MarkFailed(
		ctx, task.ID, status, errorCode(persistErr), CategoryDBError,
	); failErr != nil {
		return fmt.Errorf("mark failed after persist error: %w", failErr)
	}

	p.met.WorkerFailed.WithLabelValues(workerLabel(workerID)).Inc()

	return nil
}

// enqueueDiscovered pushes internal links one level deeper, inheriting the
// task's source and priority. Depth-capped links only bump a counter.
func (p *Pool) enqueueDiscovered(ctx context.Context, task *domain.FrontierTask, internal []string) {
	if len(internal) == 0 {
		return
	}

	nextDepth := task.Depth + 1
	if !p.frontier.DepthAllowed(nextDepth) {
		p.met.SkippedLinks.WithLabelValues(skipReasonMaxDepth).Add(float64(len(internal)))
		return
	}

	if err := p.frontier.EnqueueBatch(ctx, internal, task.SourceID, nextDepth, task.Priority); err != nil {
		p.log.Error("link enqueue failed", logger.String("url", task.URL), logger.Error(err))
	}
}

// pathAllowed applies the optional per-host path prefix filter.
func (p *Pool) pathAllowed(rawURL string) bool {
	if len(p.pathPrefixes) == 0 {
		return true
	}

	prefix, ok := p.pathPrefixes[frontier.Domain(rawURL)]
	if !ok {
		return true
	}

	parsedPath := rawURL
	if idx := strings.Index(rawURL, "://"); idx >= 0 {
		parsedPath = rawURL[idx+3:]
		if slash := strings.Index(parsedPath, "/"); slash >= 0 {
			parsedPath = parsedPath[slash:]
		} else {
			parsedPath = "/"
		}
	}

	return strings.HasPrefix(parsedPath, prefix)
}

// filterLinks normalizes and dedupes extracted links. The persisted set
// keeps off-domain targets (for the link graph) up to cap; the internal set
// is the crawlable subset that passes the link filter.
func filterLinks(
	baseURL, baseDomain string,
	rawLinks []string,
	limit int,
) (persisted []database.LinkRecord, internal []string) {
	seen := make(map[string]struct{}, len(rawLinks))

	for _, link := range rawLinks {
		if len(persisted) >= limit {
			break
		}

		normalized := frontier.Normalize(baseURL, link)
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}

		isInternal := frontier.Domain(normalized) == baseDomain
		persisted = append(persisted, database.LinkRecord{
			TargetURL:  normalized,
			IsInternal: isInternal,
		})

		if frontier.IsValidLink(baseDomain, normalized) {
			internal = append(internal, normalized)
		}
	}

	return persisted, internal
}

func linkCap(heavy bool) int {
	if heavy {
		return maxLinksHeavy
	}
	return maxLinksPerPage
}

// contentHash hashes the visible text, falling back to the raw HTML when
// the page yielded no text.
func contentHash(text, html string) string {
	source := text
	if source == "" {
		source = html
	}
	if source == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

func workerLabel(workerID int) string { return fmt.Sprintf("%d", workerID) }

func statusPtr(status int) *int {
	if status == 0 {
		return nil
	}
	return &status
}

func errorCode(err error) string {
	code := err.Error()
	if len(code) > maxErrorCodeLen {
		code = code[:maxErrorCodeLen]
	}
	return code
}
