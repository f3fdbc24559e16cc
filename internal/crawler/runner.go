// The run controller: seeds the frontier from the staleness queries, drains
// it under a bounded worker pool, and reports what happened. One Runner call
// is one bounded unit of crawl work; progress across runs lives entirely in
// the store's crawl metadata.

package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/thep200/github-graph-crawler/cfg"
	"github.com/thep200/github-graph-crawler/internal/frontier"
	githubapi "github.com/thep200/github-graph-crawler/internal/github_api"
	"github.com/thep200/github-graph-crawler/internal/limiter"
	"github.com/thep200/github-graph-crawler/internal/staleness"
	"github.com/thep200/github-graph-crawler/internal/store"
	"github.com/thep200/github-graph-crawler/pkg/log"
	"golang.org/x/sync/errgroup"
)

// Publisher is the optional event sink for discovery and run-result
// messages. pkg/kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

type Runner struct {
	Logger    log.Logger
	Config    *cfg.Config
	Graph     store.Graph
	Client    githubapi.Client
	Publisher Publisher
}

func NewRunner(logger log.Logger, config *cfg.Config, graph store.Graph, client githubapi.Client) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("crawler: %w", err)
	}
	return &Runner{
		Logger: logger,
		Config: config,
		Graph:  graph,
		Client: client,
	}, nil
}

// Crawl performs one bounded run and returns its summary. The error is
// non-nil only for fatal conditions (seeding failure, cancellation before
// any work); per-entity failures land in the summary.
func (r *Runner) Crawl(ctx context.Context) (*Summary, error) {
	startedAt := time.Now()
	deadline := startedAt.Add(time.Duration(r.Config.Crawler.WallClockBudgetSec) * time.Second)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	queue := frontier.NewQueue(r.Config.Crawler.MaxCrawlCountNew)
	runCounters := &counters{fetchBudget: int64(r.Config.Crawler.MaxCrawlCountTotal)}
	scheduler := &Scheduler{
		Logger:    r.Logger,
		Config:    r.Config,
		Graph:     r.Graph,
		Client:    r.Client,
		policy:    staleness.NewPolicy(r.Config.Crawler),
		queue:     queue,
		limiter:   limiter.NewRateLimiter(r.Config.GithubApi.RequestsPerSecond),
		gate:      limiter.NewGate(),
		counters:  runCounters,
		publisher: r.Publisher,
		deadline:  deadline,
	}

	seeded, err := r.seed(runCtx, queue, scheduler.policy, startedAt)
	if err != nil {
		return nil, fmt.Errorf("crawler: seeding failed: %w", err)
	}
	r.Logger.Info(ctx, "Run seeded with %d tasks (budget total=%d new=%d workers=%d)",
		seeded, r.Config.Crawler.MaxCrawlCountTotal, r.Config.Crawler.MaxCrawlCountNew, r.Config.Crawler.WorkerCount)

	group, groupCtx := errgroup.WithContext(runCtx)
	for i := 0; i < r.Config.Crawler.WorkerCount; i++ {
		group.Go(func() error {
			for {
				task, ok := queue.Pop()
				if !ok {
					return nil
				}
				if groupCtx.Err() != nil {
					queue.Done()
					queue.Close()
					return nil
				}
				scheduler.process(groupCtx, task)
				queue.Done()
			}
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	summary := runCounters.summary(startedAt, queue.Discovered())
	r.logSummary(ctx, summary)
	r.publishSummary(ctx, summary)
	return summary, nil
}

// seed fills the frontier from the three cadence queries, cold entities
// first (the store orders never-crawled rows ahead of merely stale ones),
// plus the optional configured seed login for bootstrapping an empty graph.
func (r *Runner) seed(ctx context.Context, queue *frontier.Queue, policy staleness.Policy, now time.Time) (int, error) {
	seeded := 0
	batch := r.Config.Crawler.SeedBatchSize
	if batch <= 0 {
		batch = r.Config.Crawler.MaxCrawlCountTotal
	}

	if login := r.Config.Crawler.SeedLogin; login != "" {
		if queue.Seed(frontier.Task{Kind: frontier.KindUser, Login: login, Depth: 0}) {
			seeded++
		}
	}

	userQueries := []struct {
		cadence store.Cadence
		cutoff  time.Time
	}{
		{store.CadenceProfile, now.Add(-policy.UserProfile)},
		{store.CadenceUserRepos, now.Add(-policy.UserRepos)},
		{store.CadenceSweep, now.Add(-policy.Sweep)},
	}
	for _, q := range userQueries {
		logins, err := r.Graph.StaleUsers(ctx, q.cadence, q.cutoff, batch)
		if err != nil {
			return seeded, err
		}
		for _, login := range logins {
			if queue.Seed(frontier.Task{Kind: frontier.KindUser, Login: login, Depth: 0}) {
				seeded++
			}
		}
	}

	ids, err := r.Graph.StaleRepos(ctx, now.Add(-policy.Repo), batch)
	if err != nil {
		return seeded, err
	}
	for _, id := range ids {
		if queue.Seed(frontier.Task{Kind: frontier.KindRepo, RepoID: id, Depth: 0}) {
			seeded++
		}
	}

	return seeded, nil
}

func (r *Runner) logSummary(ctx context.Context, s *Summary) {
	r.Logger.Info(ctx, "==== CRAWL RUN RESULT ====")
	r.Logger.Info(ctx, "Duration: %v", s.FinishedAt.Sub(s.StartedAt))
	r.Logger.Info(ctx, "API fetches: %d", s.Fetches)
	r.Logger.Info(ctx, "Users crawled: %d, repos crawled: %d", s.UsersCrawled, s.ReposCrawled)
	r.Logger.Info(ctx, "Entities newly discovered: %d", s.Discovered)
	r.Logger.Info(ctx, "Edges created: %d", s.EdgesCreated)
	r.Logger.Info(ctx, "Skipped fresh: %d, deferred: %d", s.SkippedFresh, s.Deferred)
	r.Logger.Info(ctx, "Failures: not_found=%d retries=%d malformed=%d", s.FailedNotFound, s.FailedRetries, s.Malformed)
	if s.RateLimited {
		r.Logger.Warn(ctx, "Run stopped early: rate limit reset beyond wall clock budget")
	}
}

func (r *Runner) publishSummary(ctx context.Context, s *Summary) {
	if r.Publisher == nil {
		return
	}
	if err := r.Publisher.Publish(ctx, "run-result", s.Message()); err != nil {
		r.Logger.Warn(ctx, "Failed to publish run result: %v", err)
	}
}
