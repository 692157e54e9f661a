package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jooya/crawler/internal/database"
	"github.com/jooya/crawler/internal/domain"
	"github.com/jooya/crawler/internal/logger"
	"github.com/jooya/crawler/internal/metrics"
)

type mockFrontier struct {
	mu sync.Mutex

	doneIDs       []int64
	doneStatuses  []*int
	failedIDs     []int64
	failedCodes   []string
	failedCats    []string
	enqueued      []string
	enqueuedDepth int

	depthAllowed bool
	capReached   bool
}

func (m *mockFrontier) Dequeue(context.Context) (*domain.FrontierTask, error) {
	return nil, ErrNoTaskAvailable
}

func (m *mockFrontier) MarkDone(_ context.Context, taskID int64, statusCode *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doneIDs = append(m.doneIDs, taskID)
	m.doneStatuses = append(m.doneStatuses, statusCode)
	return nil
}

func (m *mockFrontier) MarkFailed(_ context.Context, taskID int64, _ *int, errorCode, errorCategory string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedIDs = append(m.failedIDs, taskID)
	m.failedCodes = append(m.failedCodes, errorCode)
	m.failedCats = append(m.failedCats, errorCategory)
	return nil
}

func (m *mockFrontier) EnqueueBatch(_ context.Context, urls []string, _, depth, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, urls...)
	m.enqueuedDepth = depth
	return nil
}

func (m *mockFrontier) DepthAllowed(int) bool { return m.depthAllowed }
func (m *mockFrontier) PageCapReached() bool  { return m.capReached }

type mockPoliteness struct{ err error }

func (m *mockPoliteness) WaitTurn(context.Context, string) error { return m.err }

type mockRobots struct {
	allowed bool
	err     error
}

func (m *mockRobots) IsAllowed(context.Context, string) (bool, error) { return m.allowed, m.err }

type mockPages struct {
	mu sync.Mutex

	saved     []*database.PageRecord
	logged    []string
	loggedIDs []int
}

func (m *mockPages) SavePage(_ context.Context, rec *database.PageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, rec)
	return nil
}

func (m *mockPages) LogError(_ context.Context, _ string, _ *int, message string, workerID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logged = append(m.logged, message)
	m.loggedIDs = append(m.loggedIDs, workerID)
	return nil
}

type mockRawStore struct {
	mu     sync.Mutex
	stored []string
}

func (m *mockRawStore) StoreRaw(_ context.Context, url string, _ int, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append(m.stored, url)
	return nil
}

type poolFixture struct {
	pool     *Pool
	frontier *mockFrontier
	pages    *mockPages
	raw      *mockRawStore
}

func newPoolFixture(t *testing.T, robotsAllowed bool) *poolFixture {
	t.Helper()

	fr := &mockFrontier{depthAllowed: true}
	pages := &mockPages{}
	raw := &mockRawStore{}

	pool := NewPool(
		fr,
		&mockPoliteness{},
		&mockRobots{allowed: robotsAllowed},
		pages,
		raw,
		NewClient("TestBot/1.0", "en-US", 5*time.Second, 1_000_000),
		metrics.New(prometheus.NewRegistry()),
		logger.Nop(),
		PoolConfig{Workers: 1},
	)

	return &poolFixture{pool: pool, frontier: fr, pages: pages, raw: raw}
}

func taskFor(url string) *domain.FrontierTask {
	return &domain.FrontierTask{ID: 7, URL: url, SourceID: 1, Depth: 2, Priority: 5}
}

func TestProcessTask_SuccessPersistsAndEnqueues(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><head><title>Home</title></head><body>
			<p>Welcome</p>
			<a href="%s/about">About</a>
			<a href="https://other.invalid/x">External</a>
			<a href="%s/logo.png">Logo</a>
		</body></html>`, srv.URL, srv.URL)
	}))
	defer srv.Close()

	f := newPoolFixture(t, true)
	task := taskFor(srv.URL + "/")

	require.NoError(t, f.pool.processTask(context.Background(), 0, task))

	require.Len(t, f.pages.saved, 1)
	rec := f.pages.saved[0]
	assert.Equal(t, task.URL, rec.URL)
	assert.Equal(t, http.StatusOK, rec.StatusCode)
	assert.Equal(t, "Home", rec.Title)
	assert.Contains(t, rec.Content, "Welcome")
	assert.NotEmpty(t, rec.ContentHash)

	// All three links are persisted; the off-host one is external.
	require.Len(t, rec.Links, 3)
	var externals int
	for _, link := range rec.Links {
		if !link.IsInternal {
			externals++
		}
	}
	assert.Equal(t, 1, externals)

	// Only the internal non-asset link is enqueued, one level deeper.
	require.Len(t, f.frontier.enqueued, 1)
	assert.Contains(t, f.frontier.enqueued[0], "/about")
	assert.Equal(t, task.Depth+1, f.frontier.enqueuedDepth)

	assert.Equal(t, []string{task.URL}, f.raw.stored)
	require.Len(t, f.frontier.doneIDs, 1)
	assert.Equal(t, task.ID, f.frontier.doneIDs[0])
	require.NotNil(t, f.frontier.doneStatuses[0])
	assert.Equal(t, http.StatusOK, *f.frontier.doneStatuses[0])
}

func TestProcessTask_RobotsDisallowedMarksDone(t *testing.T) {
	t.Parallel()

	f := newPoolFixture(t, false)
	task := taskFor("https://example.invalid/private")

	require.NoError(t, f.pool.processTask(context.Background(), 0, task))

	assert.Equal(t, []int64{task.ID}, f.frontier.doneIDs)
	assert.Nil(t, f.frontier.doneStatuses[0])
	assert.Empty(t, f.pages.saved)
	assert.Empty(t, f.raw.stored)
}

func TestProcessTask_TransportErrorSchedulesRetry(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close() // connection refused from here on

	f := newPoolFixture(t, true)
	task := taskFor(url)

	require.NoError(t, f.pool.processTask(context.Background(), 0, task))

	require.Len(t, f.frontier.failedIDs, 1)
	assert.Equal(t, task.ID, f.frontier.failedIDs[0])
	assert.Equal(t, CategoryConnectionError, f.frontier.failedCats[0])
	assert.Len(t, f.pages.logged, 1)
	assert.Empty(t, f.frontier.doneIDs)
	assert.Empty(t, f.pages.saved)
}

func TestProcessTask_NotFoundMarksDoneWithoutSave(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newPoolFixture(t, true)
	task := taskFor(srv.URL)

	require.NoError(t, f.pool.processTask(context.Background(), 0, task))

	require.Len(t, f.frontier.doneIDs, 1)
	require.NotNil(t, f.frontier.doneStatuses[0])
	assert.Equal(t, http.StatusNotFound, *f.frontier.doneStatuses[0])
	assert.Empty(t, f.pages.saved)
	assert.Empty(t, f.frontier.failedIDs)
}

func TestProcessTask_ServerErrorSchedulesRetry(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newPoolFixture(t, true)
	task := taskFor(srv.URL)

	require.NoError(t, f.pool.processTask(context.Background(), 0, task))

	require.Len(t, f.frontier.failedIDs, 1)
	assert.Equal(t, "http_error", f.frontier.failedCodes[0])
	assert.Len(t, f.pages.logged, 1)
	assert.Empty(t, f.frontier.doneIDs)
}

func TestProcessTask_NonHTMLSkipsAndMarksDone(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	f := newPoolFixture(t, true)
	task := taskFor(srv.URL)

	require.NoError(t, f.pool.processTask(context.Background(), 0, task))

	assert.Equal(t, []int64{task.ID}, f.frontier.doneIDs)
	assert.Empty(t, f.pages.saved)
}

func TestProcessTask_DepthCapSkipsEnqueue(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><a href="%s/next">Next</a></body></html>`, srv.URL)
	}))
	defer srv.Close()

	f := newPoolFixture(t, true)
	f.frontier.depthAllowed = false
	task := taskFor(srv.URL)

	require.NoError(t, f.pool.processTask(context.Background(), 0, task))

	assert.Empty(t, f.frontier.enqueued)
	assert.Len(t, f.pages.saved, 1)
	assert.Len(t, f.frontier.doneIDs, 1)
}

func TestProcessTask_PolitenessErrorLeavesLease(t *testing.T) {
	t.Parallel()

	f := newPoolFixture(t, true)
	f.pool.politeness = &mockPoliteness{err: errors.New("cancelled")}
	task := taskFor("https://example.invalid/")

	err := f.pool.processTask(context.Background(), 0, task)
	require.Error(t, err)

	assert.Empty(t, f.frontier.doneIDs)
	assert.Empty(t, f.frontier.failedIDs)
}

func TestFilterLinks(t *testing.T) {
	t.Parallel()

	base := "https://example.com/"
	raw := []string{
		"https://example.com/a",
		"https://example.com/a", // duplicate
		"https://example.com/a#frag",
		"https://other.com/b",
		"https://example.com/file.pdf",
	}

	persisted, internal := filterLinks(base, "example.com", raw, 100)

	require.Len(t, persisted, 3)
	assert.Equal(t, "https://example.com/a", persisted[0].TargetURL)
	assert.True(t, persisted[0].IsInternal)
	assert.Equal(t, "https://other.com/b", persisted[1].TargetURL)
	assert.False(t, persisted[1].IsInternal)

	// Internal crawlable set excludes the off-domain link and the asset.
	assert.Equal(t, []string{"https://example.com/a"}, internal)
}

func TestFilterLinks_Cap(t *testing.T) {
	t.Parallel()

	raw := make([]string, 10)
	for i := range raw {
		raw[i] = fmt.Sprintf("https://example.com/p%d", i)
	}

	persisted, internal := filterLinks("https://example.com/", "example.com", raw, 4)

	assert.Len(t, persisted, 4)
	assert.Len(t, internal, 4)
}

func TestPathAllowed(t *testing.T) {
	t.Parallel()

	pool := &Pool{pathPrefixes: map[string]string{"en.wikipedia.org": "/wiki/"}}

	assert.True(t, pool.pathAllowed("https://en.wikipedia.org/wiki/Go"))
	assert.False(t, pool.pathAllowed("https://en.wikipedia.org/talk/Go"))
	assert.True(t, pool.pathAllowed("https://example.com/anything"))
}
