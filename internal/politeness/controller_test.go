package politeness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jooya/crawler/internal/domain"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestDecide_MinDelay(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	t.Run("fresh domain has no wait", func(t *testing.T) {
		t.Parallel()

		dec := decide(&domain.DomainPolicy{
			MinDelayMs: 1000,
			DailyLimit: 10000,
		}, now)

		assert.Equal(t, time.Duration(0), dec.Wait)
		assert.False(t, dec.QuotaExceeded)
	})

	t.Run("recent crawl enforces remaining delay", func(t *testing.T) {
		t.Parallel()

		dec := decide(&domain.DomainPolicy{
			MinDelayMs:    2000,
			LastCrawledAt: timePtr(now.Add(-500 * time.Millisecond)),
			DailyLimit:    10000,
		}, now)

		assert.Equal(t, 1500*time.Millisecond, dec.Wait)
		assert.False(t, dec.QuotaExceeded)
	})

	t.Run("old crawl requires no delay", func(t *testing.T) {
		t.Parallel()

		dec := decide(&domain.DomainPolicy{
			MinDelayMs:    1000,
			LastCrawledAt: timePtr(now.Add(-10 * time.Second)),
			DailyLimit:    10000,
		}, now)

		assert.Equal(t, time.Duration(0), dec.Wait)
	})
}

func TestDecide_NextAllowedAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	t.Run("future reservation wins over min delay", func(t *testing.T) {
		t.Parallel()

		dec := decide(&domain.DomainPolicy{
			MinDelayMs:    1000,
			LastCrawledAt: timePtr(now.Add(-500 * time.Millisecond)),
			NextAllowedAt: timePtr(now.Add(5 * time.Second)),
			DailyLimit:    10000,
		}, now)

		assert.Equal(t, 5*time.Second, dec.Wait)
	})

	t.Run("past reservation is ignored", func(t *testing.T) {
		t.Parallel()

		dec := decide(&domain.DomainPolicy{
			MinDelayMs:    1000,
			LastCrawledAt: timePtr(now.Add(-2 * time.Second)),
			NextAllowedAt: timePtr(now.Add(-1 * time.Second)),
			DailyLimit:    10000,
		}, now)

		assert.Equal(t, time.Duration(0), dec.Wait)
	})
}

func TestDecide_DailyQuota(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 18, 0, 0, 0, time.UTC)

	t.Run("exhausted quota waits until next utc day", func(t *testing.T) {
		t.Parallel()

		dec := decide(&domain.DomainPolicy{
			MinDelayMs:    1000,
			LastCrawledAt: timePtr(now.Add(-time.Hour)),
			DailyLimit:    100,
			CrawledToday:  100,
		}, now)

		assert.True(t, dec.QuotaExceeded)
		assert.Equal(t, 6*time.Hour, dec.Wait)
	})

	t.Run("day rollover resets the counter", func(t *testing.T) {
		t.Parallel()

		dec := decide(&domain.DomainPolicy{
			MinDelayMs:    1000,
			LastCrawledAt: timePtr(now.Add(-24 * time.Hour)),
			DailyLimit:    100,
			CrawledToday:  100,
		}, now)

		assert.False(t, dec.QuotaExceeded)
		assert.Equal(t, time.Duration(0), dec.Wait)
	})
}

func TestOnEarlierUTCDay(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 24, 23, 59, 0, 0, time.UTC)

	assert.True(t, onEarlierUTCDay(base, base.Add(2*time.Minute)))
	assert.False(t, onEarlierUTCDay(base, base.Add(30*time.Second)))
	assert.False(t, onEarlierUTCDay(base.Add(2*time.Minute), base))
}

func TestStartOfNextUTCDay(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), startOfNextUTCDay(now))
}
