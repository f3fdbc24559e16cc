package crawler

import (
	"sync/atomic"
	"time"

	"github.com/thep200/github-graph-crawler/internal/model"
)

// Summary is what a run reports on exit: work performed, discoveries, and
// failures by kind. Per-entity failures accumulate here, they are never
// silently dropped.
type Summary struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	Fetches        int64
	UsersCrawled   int64
	ReposCrawled   int64
	Discovered     int64
	EdgesCreated   int64
	SkippedFresh   int64
	FailedNotFound int64
	FailedRetries  int64
	Malformed      int64
	Deferred       int64
	RateLimited    bool
}

func (s *Summary) Message() model.RunResultMessage {
	return model.RunResultMessage{
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
		Fetches:        s.Fetches,
		UsersCrawled:   s.UsersCrawled,
		ReposCrawled:   s.ReposCrawled,
		Discovered:     s.Discovered,
		EdgesCreated:   s.EdgesCreated,
		SkippedFresh:   s.SkippedFresh,
		FailedNotFound: s.FailedNotFound,
		FailedRetries:  s.FailedRetries,
		Malformed:      s.Malformed,
		Deferred:       s.Deferred,
		RateLimited:    s.RateLimited,
	}
}

// counters is the run-scoped mutable state shared by workers. Everything is
// atomic since workers check-and-increment concurrently.
type counters struct {
	fetches         int64
	fetchBudget     int64
	usersCrawled    int64
	reposCrawled    int64
	discoveredRepos int64
	edgesCreated    int64
	skippedFresh    int64
	failedNotFound  int64
	failedRetries   int64
	malformed       int64
	deferred        int64
	rateLimited     int32
}

// reserveFetch admits one API call against the run's total budget.
func (c *counters) reserveFetch() bool {
	for {
		cur := atomic.LoadInt64(&c.fetches)
		if cur >= c.fetchBudget {
			return false
		}
		if atomic.CompareAndSwapInt64(&c.fetches, cur, cur+1) {
			return true
		}
	}
}

// releaseFetch returns a reserved call that was never issued.
func (c *counters) releaseFetch() {
	atomic.AddInt64(&c.fetches, -1)
}

func (c *counters) add(field *int64, delta int64) {
	atomic.AddInt64(field, delta)
}

func (c *counters) markRateLimited() {
	atomic.StoreInt32(&c.rateLimited, 1)
}

func (c *counters) summary(startedAt time.Time, discovered int) *Summary {
	return &Summary{
		StartedAt:      startedAt,
		FinishedAt:     time.Now(),
		Fetches:        atomic.LoadInt64(&c.fetches),
		UsersCrawled:   atomic.LoadInt64(&c.usersCrawled),
		ReposCrawled:   atomic.LoadInt64(&c.reposCrawled),
		Discovered:     int64(discovered) + atomic.LoadInt64(&c.discoveredRepos),
		EdgesCreated:   atomic.LoadInt64(&c.edgesCreated),
		SkippedFresh:   atomic.LoadInt64(&c.skippedFresh),
		FailedNotFound: atomic.LoadInt64(&c.failedNotFound),
		FailedRetries:  atomic.LoadInt64(&c.failedRetries),
		Malformed:      atomic.LoadInt64(&c.malformed),
		Deferred:       atomic.LoadInt64(&c.deferred),
		RateLimited:    atomic.LoadInt32(&c.rateLimited) == 1,
	}
}
