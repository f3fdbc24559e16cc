// The scheduler drains the frontier queue. Per dequeued task it re-checks
// staleness (another path may have refreshed the entity earlier this run),
// fetches the profile and edge pages that are due, merges them through the
// store page by page, and admits newly observed neighbors at depth+1 while
// the new-entity budget lasts.

package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/thep200/github-graph-crawler/cfg"
	"github.com/thep200/github-graph-crawler/internal/frontier"
	githubapi "github.com/thep200/github-graph-crawler/internal/github_api"
	"github.com/thep200/github-graph-crawler/internal/limiter"
	"github.com/thep200/github-graph-crawler/internal/model"
	"github.com/thep200/github-graph-crawler/internal/staleness"
	"github.com/thep200/github-graph-crawler/internal/store"
	"github.com/thep200/github-graph-crawler/pkg/log"
)

var errBudgetExhausted = errors.New("crawler: total fetch budget exhausted")

type Scheduler struct {
	Logger log.Logger
	Config *cfg.Config
	Graph  store.Graph
	Client githubapi.Client

	policy    staleness.Policy
	queue     *frontier.Queue
	limiter   *limiter.RateLimiter
	gate      *limiter.Gate
	counters  *counters
	publisher Publisher
	deadline  time.Time
}

func (s *Scheduler) process(ctx context.Context, task frontier.Task) {
	switch task.Kind {
	case frontier.KindUser:
		s.processUser(ctx, task)
	case frontier.KindRepo:
		s.processRepo(ctx, task)
	}
}

func (s *Scheduler) processUser(ctx context.Context, task frontier.Task) {
	now := time.Now()
	meta, err := s.Graph.UserMeta(ctx, task.Login)
	if err != nil {
		s.Logger.Error(ctx, "Failed to read metadata for user %s: %v", task.Login, err)
		return
	}
	if meta.Inert {
		return
	}

	profileDue := !task.Done.Profile && s.policy.UserProfileDue(meta.LastCrawled, now)
	reposDue := !task.Done.Repos && s.policy.UserReposDue(meta.LastCrawledUserRepos, now)
	sweepDue := s.policy.SweepDue(meta.LastCrawled, now)
	if !profileDue && !reposDue && !sweepDue {
		if task.Done.Profile {
			// Resumed after a deferral with the profile already serviced
			// this visit: finish the stamp it is still owed.
			if err := s.Graph.TouchUser(ctx, task.Login, time.Now(), task.Depth); err != nil {
				s.Logger.Error(ctx, "Failed to stamp crawl for user %s: %v", task.Login, err)
			}
			return
		}
		s.counters.add(&s.counters.skippedFresh, 1)
		// Still merge the depth: a fresh user reached over a shallower path
		// must not forget it. Passing the existing stamp keeps last_crawled
		// untouched.
		s.touchUserDepth(ctx, task, meta)
		return
	}

	markInert := func() {
		if err := s.Graph.MarkUserInert(ctx, task.Login); err != nil {
			s.Logger.Error(ctx, "Failed to mark user %s inert: %v", task.Login, err)
		}
	}

	if profileDue {
		var user *githubapi.UserResponse
		err := s.fetch(ctx, func() error {
			var ferr error
			user, ferr = s.Client.FetchUser(ctx, task.Login)
			return ferr
		})
		if err != nil {
			s.handleFetchErr(ctx, task, err, markInert)
			return
		}
		if _, err := s.Graph.UpsertUser(ctx, store.UserFields{
			Login:           user.Login,
			Name:            user.Name,
			RemoteCreatedAt: user.CreatedAt,
			RemoteUpdatedAt: user.UpdatedAt,
		}); err != nil {
			s.Logger.Error(ctx, "Failed to merge user %s: %v", task.Login, err)
			return
		}
		s.counters.add(&s.counters.usersCrawled, 1)
		task.Done.Profile = true
	}

	if reposDue {
		ok := s.walkRepoPages(ctx, task, markInert,
			func(page int) ([]githubapi.RepoResponse, bool, error) {
				return s.Client.FetchUserRepos(ctx, task.Login, page)
			},
			func(repos []githubapi.RepoResponse) error {
				return s.mergeRepoPage(ctx, task, repos, "")
			})
		if !ok {
			return
		}
		if err := s.Graph.TouchUserRepos(ctx, task.Login, time.Now()); err != nil {
			s.Logger.Error(ctx, "Failed to stamp repo list for user %s: %v", task.Login, err)
		}
		task.Done.Repos = true
	}

	if sweepDue {
		if !task.Done.Followers {
			ok := s.walkUserPages(ctx, task, markInert,
				func(page int) ([]githubapi.UserResponse, bool, error) {
					return s.Client.FetchUserFollowers(ctx, task.Login, page)
				},
				func(users []githubapi.UserResponse) error {
					return s.mergeFollowerPage(ctx, task, users)
				})
			if !ok {
				return
			}
			task.Done.Followers = true
		}

		if !task.Done.Starred {
			ok := s.walkRepoPages(ctx, task, markInert,
				func(page int) ([]githubapi.RepoResponse, bool, error) {
					return s.Client.FetchUserStarred(ctx, task.Login, page)
				},
				func(repos []githubapi.RepoResponse) error {
					return s.mergeRepoPage(ctx, task, repos, store.RelationStars)
				})
			if !ok {
				return
			}
			task.Done.Starred = true
		}

		if !task.Done.Subscriptions {
			ok := s.walkRepoPages(ctx, task, markInert,
				func(page int) ([]githubapi.RepoResponse, bool, error) {
					return s.Client.FetchUserSubscriptions(ctx, task.Login, page)
				},
				func(repos []githubapi.RepoResponse) error {
					return s.mergeRepoPage(ctx, task, repos, store.RelationWatches)
				})
			if !ok {
				return
			}
			task.Done.Subscriptions = true
		}
	}

	if profileDue || sweepDue || task.Done.Profile {
		if err := s.Graph.TouchUser(ctx, task.Login, time.Now(), task.Depth); err != nil {
			s.Logger.Error(ctx, "Failed to stamp crawl for user %s: %v", task.Login, err)
		}
	} else {
		s.touchUserDepth(ctx, task, meta)
	}
}

func (s *Scheduler) processRepo(ctx context.Context, task frontier.Task) {
	now := time.Now()
	meta, err := s.Graph.RepoMeta(ctx, task.RepoID)
	if err != nil {
		s.Logger.Error(ctx, "Failed to read metadata for repo %d: %v", task.RepoID, err)
		return
	}
	if meta.Inert {
		return
	}

	repoDue := !task.Done.Profile && s.policy.RepoDue(meta.LastCrawled, now)
	sweepDue := s.policy.SweepDue(meta.LastCrawled, now)
	if !repoDue && !sweepDue {
		if task.Done.Profile {
			if err := s.Graph.TouchRepo(ctx, task.RepoID, time.Now(), task.Depth); err != nil {
				s.Logger.Error(ctx, "Failed to stamp crawl for repo %d: %v", task.RepoID, err)
			}
			return
		}
		s.counters.add(&s.counters.skippedFresh, 1)
		s.touchRepoDepth(ctx, task, meta)
		return
	}

	markInert := func() {
		if err := s.Graph.MarkRepoInert(ctx, task.RepoID); err != nil {
			s.Logger.Error(ctx, "Failed to mark repo %d inert: %v", task.RepoID, err)
		}
	}

	if repoDue {
		var repo *githubapi.RepoResponse
		err := s.fetch(ctx, func() error {
			var ferr error
			repo, ferr = s.Client.FetchRepo(ctx, task.RepoID)
			return ferr
		})
		if err != nil {
			s.handleFetchErr(ctx, task, err, markInert)
			return
		}
		if repo.Owner.Login == "" {
			s.Logger.Warn(ctx, "Repo %d has no owner login, skipping", task.RepoID)
			s.counters.add(&s.counters.malformed, 1)
			return
		}

		ownerNew, err := s.Graph.UpsertUserIdentity(ctx, repo.Owner.Login)
		if err != nil {
			s.Logger.Error(ctx, "Failed to merge owner of repo %d: %v", task.RepoID, err)
			return
		}
		if _, err := s.Graph.UpsertRepo(ctx, repoFields(repo)); err != nil {
			s.Logger.Error(ctx, "Failed to merge repo %d: %v", task.RepoID, err)
			return
		}
		s.counters.add(&s.counters.reposCrawled, 1)
		task.Done.Profile = true
		s.discoverUser(ctx, repo.Owner.Login, task.Depth+1, ownerNew)
	}

	if sweepDue {
		if !task.Done.Contributors {
			ok := s.walkUserPages(ctx, task, markInert,
				func(page int) ([]githubapi.UserResponse, bool, error) {
					return s.Client.FetchRepoContributors(ctx, task.RepoID, page)
				},
				func(users []githubapi.UserResponse) error {
					return s.mergeContributorPage(ctx, task, users)
				})
			if !ok {
				return
			}
			task.Done.Contributors = true
		}

		if !task.Done.Languages {
			var languages map[string]int64
			err := s.fetch(ctx, func() error {
				var ferr error
				languages, ferr = s.Client.FetchRepoLanguages(ctx, task.RepoID)
				return ferr
			})
			if err != nil {
				s.handleFetchErr(ctx, task, err, markInert)
				return
			}
			if err := s.mergeLanguages(ctx, task, languages); err != nil {
				s.Logger.Error(ctx, "Failed to merge languages for repo %d: %v", task.RepoID, err)
				return
			}
			task.Done.Languages = true
		}
	}

	if err := s.Graph.TouchRepo(ctx, task.RepoID, time.Now(), task.Depth); err != nil {
		s.Logger.Error(ctx, "Failed to stamp crawl for repo %d: %v", task.RepoID, err)
	}
}

// mergeRepoPage merges one page of repositories all-or-nothing. relation is
// the edge from the task's user to each repo: empty for an owned-repo page
// (ownership lives on the repo row), stars or watches for sweep pages.
func (s *Scheduler) mergeRepoPage(ctx context.Context, task frontier.Task, repos []githubapi.RepoResponse, relation store.Relation) error {
	type observed struct {
		githubID int64
		wasNew   bool
	}
	merged := make([]observed, 0, len(repos))

	err := s.Graph.Transact(ctx, func(tx store.Graph) error {
		for _, repo := range repos {
			if repo.ID == 0 {
				s.Logger.Warn(ctx, "Skipping repo record with no id in page for %s", task.Login)
				s.counters.add(&s.counters.malformed, 1)
				continue
			}
			fields := repoFields(&repo)
			if fields.OwnerLogin == "" {
				// Owned-repo pages imply the owner
				fields.OwnerLogin = task.Login
			}
			if _, err := tx.UpsertUserIdentity(ctx, fields.OwnerLogin); err != nil {
				return err
			}
			wasNew, err := tx.UpsertRepo(ctx, fields)
			if err != nil {
				return err
			}
			if relation != "" {
				edgeNew, err := tx.UpsertEdge(ctx, store.Edge{
					Relation:  relation,
					UserLogin: task.Login,
					RepoID:    repo.ID,
				})
				if err != nil {
					return err
				}
				if edgeNew {
					s.counters.add(&s.counters.edgesCreated, 1)
				}
			}
			merged = append(merged, observed{githubID: repo.ID, wasNew: wasNew})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, o := range merged {
		if o.wasNew {
			s.counters.add(&s.counters.discoveredRepos, 1)
		}
		s.discoverRepo(ctx, o.githubID, task.Depth+1, o.wasNew)
	}
	return nil
}

func (s *Scheduler) mergeFollowerPage(ctx context.Context, task frontier.Task, users []githubapi.UserResponse) error {
	return s.mergeUserEdgePage(ctx, task, users, func(tx store.Graph, login string) (bool, error) {
		return tx.UpsertEdge(ctx, store.Edge{
			Relation:    store.RelationFollows,
			UserLogin:   login,
			TargetLogin: task.Login,
		})
	})
}

func (s *Scheduler) mergeContributorPage(ctx context.Context, task frontier.Task, users []githubapi.UserResponse) error {
	return s.mergeUserEdgePage(ctx, task, users, func(tx store.Graph, login string) (bool, error) {
		return tx.UpsertEdge(ctx, store.Edge{
			Relation:  store.RelationContributes,
			UserLogin: login,
			RepoID:    task.RepoID,
		})
	})
}

func (s *Scheduler) mergeUserEdgePage(ctx context.Context, task frontier.Task, users []githubapi.UserResponse, edge func(tx store.Graph, login string) (bool, error)) error {
	type observed struct {
		login  string
		wasNew bool
	}
	merged := make([]observed, 0, len(users))

	err := s.Graph.Transact(ctx, func(tx store.Graph) error {
		for _, user := range users {
			if user.Login == "" {
				s.Logger.Warn(ctx, "Skipping user record with no login in page for %s", task.Key())
				s.counters.add(&s.counters.malformed, 1)
				continue
			}
			wasNew, err := tx.UpsertUserIdentity(ctx, user.Login)
			if err != nil {
				return err
			}
			edgeNew, err := edge(tx, user.Login)
			if errors.Is(err, store.ErrSelfLoop) {
				s.counters.add(&s.counters.malformed, 1)
				continue
			}
			if err != nil {
				return err
			}
			if edgeNew {
				s.counters.add(&s.counters.edgesCreated, 1)
			}
			merged = append(merged, observed{login: user.Login, wasNew: wasNew})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, o := range merged {
		s.discoverUser(ctx, o.login, task.Depth+1, o.wasNew)
	}
	return nil
}

func (s *Scheduler) mergeLanguages(ctx context.Context, task frontier.Task, languages map[string]int64) error {
	return s.Graph.Transact(ctx, func(tx store.Graph) error {
		for name, bytes := range languages {
			if name == "" {
				s.counters.add(&s.counters.malformed, 1)
				continue
			}
			wasNew, err := tx.UpsertEdge(ctx, store.Edge{
				Relation: store.RelationLanguage,
				RepoID:   task.RepoID,
				Language: name,
				Weight:   bytes,
			})
			if err != nil {
				return err
			}
			if wasNew {
				s.counters.add(&s.counters.edgesCreated, 1)
			}
		}
		return nil
	})
}

// discoverUser admits a neighbor user. Known neighbors are only re-admitted
// when some cadence says they are due, so fan-in onto fresh entities stays
// cheap.
func (s *Scheduler) discoverUser(ctx context.Context, login string, depth int, isNew bool) {
	if !isNew {
		meta, err := s.Graph.UserMeta(ctx, login)
		if err != nil || meta.Inert {
			return
		}
		now := time.Now()
		if !s.policy.UserProfileDue(meta.LastCrawled, now) &&
			!s.policy.UserReposDue(meta.LastCrawledUserRepos, now) &&
			!s.policy.SweepDue(meta.LastCrawled, now) {
			return
		}
	}
	task := frontier.Task{Kind: frontier.KindUser, Login: login, Depth: depth}
	if s.queue.Discover(task, isNew) && isNew {
		s.publishDiscovery(ctx, model.DiscoveryMessage{
			Kind: string(frontier.KindUser), Login: login, Depth: depth, FoundAt: time.Now(),
		})
	}
}

func (s *Scheduler) discoverRepo(ctx context.Context, githubID int64, depth int, isNew bool) {
	if !isNew {
		meta, err := s.Graph.RepoMeta(ctx, githubID)
		if err != nil || meta.Inert {
			return
		}
		now := time.Now()
		if !s.policy.RepoDue(meta.LastCrawled, now) && !s.policy.SweepDue(meta.LastCrawled, now) {
			return
		}
	}
	// Repos arrive with their full payload already merged, so they do not
	// count against the new-entity budget; that budget bounds identity-only
	// discoveries whose profiles still need fetching.
	task := frontier.Task{Kind: frontier.KindRepo, RepoID: githubID, Depth: depth}
	if s.queue.Discover(task, false) && isNew {
		s.publishDiscovery(ctx, model.DiscoveryMessage{
			Kind: string(frontier.KindRepo), RepoID: githubID, Depth: depth, FoundAt: time.Now(),
		})
	}
}

// fetch performs one budgeted, gated, throttled API call. Transient failures
// retry in place with exponential backoff; every other error surfaces to the
// caller for dispatch.
func (s *Scheduler) fetch(ctx context.Context, call func() error) error {
	if !s.counters.reserveFetch() {
		// Run-wide stop: no worker may fetch once the budget is gone
		s.queue.Close()
		return errBudgetExhausted
	}
	if err := s.gate.Wait(ctx); err != nil {
		s.counters.releaseFetch()
		return err
	}
	for !s.limiter.Allow() {
		select {
		case <-ctx.Done():
			s.counters.releaseFetch()
			return ctx.Err()
		case <-time.After(time.Duration(s.Config.GithubApi.ThrottleDelay) * time.Millisecond):
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(s.Config.GithubApi.ThrottleDelay) * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.Config.GithubApi.MaxRetries)), ctx)
	return backoff.Retry(func() error {
		err := call()
		var transient *githubapi.TransientError
		if errors.As(err, &transient) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, policy)
}

// handleFetchErr dispatches a fetch failure: the task is over either way,
// the question is how it is accounted and whether it comes back.
func (s *Scheduler) handleFetchErr(ctx context.Context, task frontier.Task, err error, markInert func()) {
	switch {
	case errors.Is(err, errBudgetExhausted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return

	case errors.Is(err, githubapi.ErrNotFound):
		s.Logger.Warn(ctx, "Entity %s gone upstream, marking inert", task.Key())
		if markInert != nil {
			markInert()
		}
		s.counters.add(&s.counters.failedNotFound, 1)
		return
	}

	var rl *githubapi.RateLimitError
	if errors.As(err, &rl) {
		s.gate.Pause(rl.Reset)
		s.counters.add(&s.counters.deferred, 1)
		if rl.Reset.After(s.deadline) {
			// Quota will not come back within this run's wall clock budget
			s.Logger.Warn(ctx, "Rate limit reset %s beyond run deadline, stopping run", rl.Reset.Format(time.RFC3339))
			s.counters.markRateLimited()
			s.queue.Close()
			return
		}
		s.Logger.Warn(ctx, "Rate limited, deferring %s until %s", task.Key(), rl.Reset.Format(time.RFC3339))
		s.queue.PushFront(task)
		return
	}

	var transient *githubapi.TransientError
	if errors.As(err, &transient) {
		s.Logger.Error(ctx, "Retries exhausted for %s: %v", task.Key(), err)
		s.counters.add(&s.counters.failedRetries, 1)
		return
	}

	var malformed *githubapi.MalformedError
	if errors.As(err, &malformed) {
		s.Logger.Warn(ctx, "Malformed response for %s: %v", task.Key(), err)
		s.counters.add(&s.counters.malformed, 1)
		return
	}

	s.Logger.Error(ctx, "Fetch failed for %s: %v", task.Key(), err)
	s.counters.add(&s.counters.failedRetries, 1)
}

func (s *Scheduler) walkRepoPages(ctx context.Context, task frontier.Task, markInert func(), fetchPage func(int) ([]githubapi.RepoResponse, bool, error), merge func([]githubapi.RepoResponse) error) bool {
	for page := 1; ; page++ {
		var items []githubapi.RepoResponse
		var more bool
		err := s.fetch(ctx, func() error {
			var ferr error
			items, more, ferr = fetchPage(page)
			return ferr
		})
		if err != nil {
			s.handleFetchErr(ctx, task, err, markInert)
			return false
		}
		if len(items) > 0 {
			if err := merge(items); err != nil {
				s.Logger.Error(ctx, "Failed to merge page %d for %s: %v", page, task.Key(), err)
				return false
			}
		}
		if !more {
			return true
		}
	}
}

func (s *Scheduler) walkUserPages(ctx context.Context, task frontier.Task, markInert func(), fetchPage func(int) ([]githubapi.UserResponse, bool, error), merge func([]githubapi.UserResponse) error) bool {
	for page := 1; ; page++ {
		var items []githubapi.UserResponse
		var more bool
		err := s.fetch(ctx, func() error {
			var ferr error
			items, more, ferr = fetchPage(page)
			return ferr
		})
		if err != nil {
			s.handleFetchErr(ctx, task, err, markInert)
			return false
		}
		if len(items) > 0 {
			if err := merge(items); err != nil {
				s.Logger.Error(ctx, "Failed to merge page %d for %s: %v", page, task.Key(), err)
				return false
			}
		}
		if !more {
			return true
		}
	}
}

// touchUserDepth merges a shallower depth without advancing last_crawled:
// the existing stamp fails the monotonic time condition, the depth minimum
// still applies.
func (s *Scheduler) touchUserDepth(ctx context.Context, task frontier.Task, meta store.UserMeta) {
	if meta.LastCrawled == nil {
		return
	}
	if meta.LastCrawledDepth != nil && *meta.LastCrawledDepth <= task.Depth {
		return
	}
	if err := s.Graph.TouchUser(ctx, task.Login, *meta.LastCrawled, task.Depth); err != nil {
		s.Logger.Error(ctx, "Failed to merge depth for user %s: %v", task.Login, err)
	}
}

func (s *Scheduler) touchRepoDepth(ctx context.Context, task frontier.Task, meta store.RepoMeta) {
	if meta.LastCrawled == nil {
		return
	}
	if meta.LastCrawledDepth != nil && *meta.LastCrawledDepth <= task.Depth {
		return
	}
	if err := s.Graph.TouchRepo(ctx, task.RepoID, *meta.LastCrawled, task.Depth); err != nil {
		s.Logger.Error(ctx, "Failed to merge depth for repo %d: %v", task.RepoID, err)
	}
}

func (s *Scheduler) publishDiscovery(ctx context.Context, msg model.DiscoveryMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, "discovery", msg); err != nil {
		s.Logger.Warn(ctx, "Failed to publish discovery event: %v", err)
	}
}

func repoFields(repo *githubapi.RepoResponse) store.RepoFields {
	return store.RepoFields{
		GithubID:        repo.ID,
		OwnerLogin:      repo.Owner.Login,
		Name:            repo.Name,
		Description:     repo.Description,
		Url:             repo.HtmlUrl,
		StarCount:       int(repo.StargazersCount),
		RemoteCreatedAt: repo.CreatedAt,
		RemoteUpdatedAt: repo.UpdatedAt,
		RemotePushedAt:  repo.PushedAt,
	}
}
