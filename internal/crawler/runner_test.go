package crawler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/github-graph-crawler/cfg"
	githubapi "github.com/thep200/github-graph-crawler/internal/github_api"
	"github.com/thep200/github-graph-crawler/internal/store"
	"github.com/thep200/github-graph-crawler/pkg/log"
)

//
// In-memory store.Graph
//

type fakeUser struct {
	name          string
	inert         bool
	lastCrawled   *time.Time
	depth         *int
	lastUserRepos *time.Time
}

type fakeRepo struct {
	owner       string
	name        string
	inert       bool
	lastCrawled *time.Time
	depth       *int
}

type fakeGraph struct {
	mu    sync.Mutex
	users map[string]*fakeUser
	repos map[int64]*fakeRepo
	edges map[string]int64
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		users: make(map[string]*fakeUser),
		repos: make(map[int64]*fakeRepo),
		edges: make(map[string]int64),
	}
}

func edgeKey(e store.Edge) string {
	return fmt.Sprintf("%s|%s|%s|%d|%s", e.Relation, e.UserLogin, e.TargetLogin, e.RepoID, e.Language)
}

func (g *fakeGraph) UpsertUserIdentity(_ context.Context, login string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.users[login]; ok {
		return false, nil
	}
	g.users[login] = &fakeUser{}
	return true, nil
}

func (g *fakeGraph) UpsertUser(_ context.Context, fields store.UserFields) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[fields.Login]
	if !ok {
		u = &fakeUser{}
		g.users[fields.Login] = u
	}
	u.name = fields.Name
	return !ok, nil
}

func (g *fakeGraph) UpsertRepo(_ context.Context, fields store.RepoFields) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.repos[fields.GithubID]
	if !ok {
		r = &fakeRepo{}
		g.repos[fields.GithubID] = r
	}
	r.owner = fields.OwnerLogin
	r.name = fields.Name
	return !ok, nil
}

func (g *fakeGraph) UpsertEdge(_ context.Context, edge store.Edge) (bool, error) {
	if edge.Relation == store.RelationFollows && edge.UserLogin == edge.TargetLogin {
		return false, store.ErrSelfLoop
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	key := edgeKey(edge)
	_, ok := g.edges[key]
	g.edges[key] = edge.Weight
	return !ok, nil
}

func (g *fakeGraph) StaleUsers(_ context.Context, cadence store.Cadence, before time.Time, limit int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	logins := make([]string, 0, len(g.users))
	for login := range g.users {
		logins = append(logins, login)
	}
	sort.Strings(logins)

	var cold, stale []string
	for _, login := range logins {
		u := g.users[login]
		if u.inert {
			continue
		}
		col := u.lastCrawled
		if cadence == store.CadenceUserRepos {
			col = u.lastUserRepos
		}
		switch {
		case col == nil:
			cold = append(cold, login)
		case col.Before(before):
			stale = append(stale, login)
		}
	}
	out := append(cold, stale...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *fakeGraph) StaleRepos(_ context.Context, before time.Time, limit int) ([]int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]int64, 0, len(g.repos))
	for id := range g.repos {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var cold, stale []int64
	for _, id := range ids {
		r := g.repos[id]
		if r.inert {
			continue
		}
		switch {
		case r.lastCrawled == nil:
			cold = append(cold, id)
		case r.lastCrawled.Before(before):
			stale = append(stale, id)
		}
	}
	out := append(cold, stale...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *fakeGraph) UserMeta(_ context.Context, login string) (store.UserMeta, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[login]
	if !ok {
		return store.UserMeta{}, nil
	}
	return store.UserMeta{
		Known:                true,
		Inert:                u.inert,
		LastCrawled:          u.lastCrawled,
		LastCrawledDepth:     u.depth,
		LastCrawledUserRepos: u.lastUserRepos,
	}, nil
}

func (g *fakeGraph) RepoMeta(_ context.Context, githubID int64) (store.RepoMeta, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.repos[githubID]
	if !ok {
		return store.RepoMeta{}, nil
	}
	return store.RepoMeta{
		Known:            true,
		Inert:            r.inert,
		LastCrawled:      r.lastCrawled,
		LastCrawledDepth: r.depth,
	}, nil
}

func (g *fakeGraph) TouchUser(_ context.Context, login string, now time.Time, depth int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[login]
	if !ok {
		return nil
	}
	if u.lastCrawled == nil || u.lastCrawled.Before(now) {
		stamp := now
		u.lastCrawled = &stamp
	}
	if u.depth == nil || depth < *u.depth {
		d := depth
		u.depth = &d
	}
	return nil
}

func (g *fakeGraph) TouchUserRepos(_ context.Context, login string, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[login]
	if !ok {
		return nil
	}
	if u.lastUserRepos == nil || u.lastUserRepos.Before(now) {
		stamp := now
		u.lastUserRepos = &stamp
	}
	return nil
}

func (g *fakeGraph) TouchRepo(_ context.Context, githubID int64, now time.Time, depth int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.repos[githubID]
	if !ok {
		return nil
	}
	if r.lastCrawled == nil || r.lastCrawled.Before(now) {
		stamp := now
		r.lastCrawled = &stamp
	}
	if r.depth == nil || depth < *r.depth {
		d := depth
		r.depth = &d
	}
	return nil
}

func (g *fakeGraph) MarkUserInert(_ context.Context, login string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if u, ok := g.users[login]; ok {
		u.inert = true
	}
	return nil
}

func (g *fakeGraph) MarkRepoInert(_ context.Context, githubID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.repos[githubID]; ok {
		r.inert = true
	}
	return nil
}

func (g *fakeGraph) Transact(_ context.Context, fn func(store.Graph) error) error {
	return fn(g)
}

func (g *fakeGraph) user(login string) (fakeUser, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[login]
	if !ok {
		return fakeUser{}, false
	}
	return *u, true
}

func (g *fakeGraph) repo(githubID int64) (fakeRepo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.repos[githubID]
	if !ok {
		return fakeRepo{}, false
	}
	return *r, true
}

func (g *fakeGraph) hasEdge(e store.Edge) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.edges[edgeKey(e)]
	return ok
}

func (g *fakeGraph) edgeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.edges)
}

// seedUser pre-populates a known user with crawl metadata.
func (g *fakeGraph) seedUser(login string, lastCrawled *time.Time, depth *int, lastUserRepos *time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users[login] = &fakeUser{lastCrawled: lastCrawled, depth: depth, lastUserRepos: lastUserRepos}
}

func (g *fakeGraph) seedRepo(githubID int64, owner string, lastCrawled *time.Time, depth *int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.repos[githubID] = &fakeRepo{owner: owner, lastCrawled: lastCrawled, depth: depth}
}

//
// Scripted githubapi.Client
//

type fakeClient struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string][]error

	users         map[string]githubapi.UserResponse
	userRepos     map[string][]githubapi.RepoResponse
	followers     map[string][]githubapi.UserResponse
	starred       map[string][]githubapi.RepoResponse
	subscriptions map[string][]githubapi.RepoResponse
	reposByID     map[int64]githubapi.RepoResponse
	contributors  map[int64][]githubapi.UserResponse
	languages     map[int64]map[string]int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls:         make(map[string]int),
		errs:          make(map[string][]error),
		users:         make(map[string]githubapi.UserResponse),
		userRepos:     make(map[string][]githubapi.RepoResponse),
		followers:     make(map[string][]githubapi.UserResponse),
		starred:       make(map[string][]githubapi.RepoResponse),
		subscriptions: make(map[string][]githubapi.RepoResponse),
		reposByID:     make(map[int64]githubapi.RepoResponse),
		contributors:  make(map[int64][]githubapi.UserResponse),
		languages:     make(map[int64]map[string]int64),
	}
}

// begin counts the call and pops the next scripted error for the key, if any.
func (c *fakeClient) begin(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[key]++
	if q := c.errs[key]; len(q) > 0 {
		c.errs[key] = q[1:]
		return q[0]
	}
	return nil
}

func (c *fakeClient) failWith(key string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[key] = append(c.errs[key], errs...)
}

func (c *fakeClient) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[key]
}

func (c *fakeClient) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *fakeClient) FetchUser(_ context.Context, login string) (*githubapi.UserResponse, error) {
	if err := c.begin("user:" + login); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[login]
	if !ok {
		return nil, githubapi.ErrNotFound
	}
	return &u, nil
}

func (c *fakeClient) FetchUserRepos(_ context.Context, login string, _ int) ([]githubapi.RepoResponse, bool, error) {
	if err := c.begin("repos:" + login); err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userRepos[login], false, nil
}

func (c *fakeClient) FetchUserFollowers(_ context.Context, login string, _ int) ([]githubapi.UserResponse, bool, error) {
	if err := c.begin("followers:" + login); err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.followers[login], false, nil
}

func (c *fakeClient) FetchUserStarred(_ context.Context, login string, _ int) ([]githubapi.RepoResponse, bool, error) {
	if err := c.begin("starred:" + login); err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starred[login], false, nil
}

func (c *fakeClient) FetchUserSubscriptions(_ context.Context, login string, _ int) ([]githubapi.RepoResponse, bool, error) {
	if err := c.begin("subscriptions:" + login); err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptions[login], false, nil
}

func (c *fakeClient) FetchRepo(_ context.Context, githubID int64) (*githubapi.RepoResponse, error) {
	if err := c.begin(fmt.Sprintf("repo:%d", githubID)); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reposByID[githubID]
	if !ok {
		return nil, githubapi.ErrNotFound
	}
	return &r, nil
}

func (c *fakeClient) FetchRepoContributors(_ context.Context, githubID int64, _ int) ([]githubapi.UserResponse, bool, error) {
	if err := c.begin(fmt.Sprintf("contributors:%d", githubID)); err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contributors[githubID], false, nil
}

func (c *fakeClient) FetchRepoLanguages(_ context.Context, githubID int64) (map[string]int64, error) {
	if err := c.begin(fmt.Sprintf("languages:%d", githubID)); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.languages[githubID], nil
}

//
// Helpers
//

func testConfig(t *testing.T) *cfg.Config {
	loader, err := cfg.NewMockLoader()
	require.NoError(t, err)
	config, err := loader.Load()
	require.NoError(t, err)
	config.Crawler.WorkerCount = 1
	config.Crawler.WallClockBudgetSec = 30
	config.GithubApi.RequestsPerSecond = 1000
	config.GithubApi.ThrottleDelay = 1
	return config
}

func newTestRunner(t *testing.T, config *cfg.Config, graph *fakeGraph, client *fakeClient) *Runner {
	logger, err := log.NewCslLogger()
	require.NoError(t, err)
	runner, err := NewRunner(logger, config, graph, client)
	require.NoError(t, err)
	return runner
}

func repoResponse(id int64, owner, name string) githubapi.RepoResponse {
	return githubapi.RepoResponse{
		ID:    id,
		Name:  name,
		Owner: githubapi.Owner{Login: owner},
	}
}

//
// Tests
//

func TestCrawlColdUserExpandsNeighborsWithinBudget(t *testing.T) {
	config := testConfig(t)
	config.Crawler.SeedLogin = "alice"
	config.Crawler.MaxCrawlCountNew = 2

	client := newFakeClient()
	client.users["alice"] = githubapi.UserResponse{Login: "alice", Name: "Alice"}
	client.users["bob"] = githubapi.UserResponse{Login: "bob"}
	client.users["carol"] = githubapi.UserResponse{Login: "carol"}
	client.userRepos["alice"] = []githubapi.RepoResponse{
		repoResponse(101, "alice", "tools"),
		repoResponse(102, "alice", "notes"),
	}
	client.followers["alice"] = []githubapi.UserResponse{
		{Login: "bob"}, {Login: "carol"}, {Login: "dave"},
	}
	client.reposByID[101] = repoResponse(101, "alice", "tools")
	client.reposByID[102] = repoResponse(102, "alice", "notes")
	client.contributors[102] = []githubapi.UserResponse{{Login: "bob"}}
	client.languages[101] = map[string]int64{"Go": 12345}

	graph := newFakeGraph()
	runner := newTestRunner(t, config, graph, client)

	summary, err := runner.Crawl(context.Background())
	require.NoError(t, err)

	// Seed crawled at depth 0, with both repos merged and owned.
	alice, ok := graph.user("alice")
	require.True(t, ok)
	assert.Equal(t, "Alice", alice.name)
	require.NotNil(t, alice.lastCrawled)
	require.NotNil(t, alice.depth)
	assert.Equal(t, 0, *alice.depth)
	for _, id := range []int64{101, 102} {
		repo, ok := graph.repo(id)
		require.True(t, ok)
		assert.Equal(t, "alice", repo.owner)
		require.NotNil(t, repo.depth)
		assert.Equal(t, 1, *repo.depth)
	}

	// Two of three followers fit the new-entity budget and were crawled at
	// depth 1. The third got an identity row and an edge but no crawl.
	for _, login := range []string{"bob", "carol"} {
		u, ok := graph.user(login)
		require.True(t, ok)
		require.NotNil(t, u.lastCrawled, login)
		require.NotNil(t, u.depth, login)
		assert.Equal(t, 1, *u.depth, login)
	}
	dave, ok := graph.user("dave")
	require.True(t, ok)
	assert.Nil(t, dave.lastCrawled)
	assert.False(t, dave.inert)
	assert.Equal(t, 0, client.count("user:dave"))

	for _, follower := range []string{"bob", "carol", "dave"} {
		assert.True(t, graph.hasEdge(store.Edge{
			Relation: store.RelationFollows, UserLogin: follower, TargetLogin: "alice",
		}), follower)
	}
	assert.True(t, graph.hasEdge(store.Edge{
		Relation: store.RelationContributes, UserLogin: "bob", RepoID: 102,
	}))
	assert.True(t, graph.hasEdge(store.Edge{
		Relation: store.RelationLanguage, RepoID: 101, Language: "Go",
	}))
	assert.Equal(t, 5, graph.edgeCount())

	assert.Equal(t, int64(3), summary.UsersCrawled)
	assert.Equal(t, int64(2), summary.ReposCrawled)
	assert.Equal(t, int64(4), summary.Discovered)
	assert.Equal(t, int64(5), summary.EdgesCreated)
	assert.Equal(t, int64(0), summary.SkippedFresh)
	assert.Equal(t, int64(0), summary.FailedNotFound)
	assert.Equal(t, int64(21), summary.Fetches)
	assert.False(t, summary.RateLimited)
}

func TestCrawlFreshEntitySkipsWithoutFetch(t *testing.T) {
	config := testConfig(t)
	config.Crawler.SeedLogin = "eve"

	recent := time.Now().Add(-time.Hour)
	depth := 0
	graph := newFakeGraph()
	graph.seedUser("eve", &recent, &depth, &recent)
	graph.seedRepo(7, "eve", &recent, &depth)

	client := newFakeClient()
	runner := newTestRunner(t, config, graph, client)

	summary, err := runner.Crawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, client.total())
	assert.Equal(t, int64(0), summary.Fetches)
	assert.Equal(t, int64(1), summary.SkippedFresh)
	assert.Equal(t, int64(0), summary.UsersCrawled)

	eve, _ := graph.user("eve")
	require.NotNil(t, eve.lastCrawled)
	assert.Equal(t, recent, *eve.lastCrawled)
}

func TestCrawlZeroFetchBudgetDoesNoWork(t *testing.T) {
	config := testConfig(t)
	config.Crawler.MaxCrawlCountTotal = 0
	config.Crawler.MaxCrawlCountNew = 0

	graph := newFakeGraph()
	graph.seedUser("bob", nil, nil, nil)

	client := newFakeClient()
	client.users["bob"] = githubapi.UserResponse{Login: "bob"}
	runner := newTestRunner(t, config, graph, client)

	summary, err := runner.Crawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, client.total())
	assert.Equal(t, int64(0), summary.Fetches)
	assert.Equal(t, int64(0), summary.UsersCrawled)
	assert.Equal(t, int64(0), summary.Discovered)

	bob, _ := graph.user("bob")
	assert.Nil(t, bob.lastCrawled)
}

func TestCrawlRateLimitDefersAndResumes(t *testing.T) {
	config := testConfig(t)
	config.Crawler.SeedLogin = "alice"

	client := newFakeClient()
	client.users["alice"] = githubapi.UserResponse{Login: "alice"}
	client.failWith("user:alice", &githubapi.RateLimitError{Reset: time.Now().Add(150 * time.Millisecond)})

	graph := newFakeGraph()
	runner := newTestRunner(t, config, graph, client)

	summary, err := runner.Crawl(context.Background())
	require.NoError(t, err)

	// One deferral, then the same task completed after the reset passed.
	assert.Equal(t, 2, client.count("user:alice"))
	assert.Equal(t, int64(1), summary.Deferred)
	assert.Equal(t, int64(1), summary.UsersCrawled)
	assert.False(t, summary.RateLimited)

	alice, _ := graph.user("alice")
	assert.NotNil(t, alice.lastCrawled)
}

func TestCrawlMidVisitDeferralResumesWithoutRepeatingWork(t *testing.T) {
	config := testConfig(t)
	config.Crawler.SeedLogin = "alice"
	config.Crawler.WorkerCount = 4
	config.Crawler.MaxCrawlCountTotal = 200
	config.Crawler.MaxCrawlCountNew = 30

	client := newFakeClient()
	client.users["alice"] = githubapi.UserResponse{Login: "alice"}
	var followers []githubapi.UserResponse
	for i := 0; i < 20; i++ {
		login := fmt.Sprintf("follower%02d", i)
		client.users[login] = githubapi.UserResponse{Login: login}
		followers = append(followers, githubapi.UserResponse{Login: login})
	}
	client.followers["alice"] = followers
	// Rate limited on the followers page, after alice's profile and repo
	// list already succeeded this visit.
	client.failWith("followers:alice", &githubapi.RateLimitError{Reset: time.Now().Add(100 * time.Millisecond)})

	graph := newFakeGraph()
	runner := newTestRunner(t, config, graph, client)

	summary, err := runner.Crawl(context.Background())
	require.NoError(t, err)

	// The resumed task picks up at the followers page: the completed
	// profile and repo-list fetches are not repeated and alice is counted
	// once.
	assert.Equal(t, 1, client.count("user:alice"))
	assert.Equal(t, 1, client.count("repos:alice"))
	assert.Equal(t, 2, client.count("followers:alice"))
	assert.Equal(t, int64(1), summary.Deferred)
	assert.Equal(t, int64(21), summary.UsersCrawled)
	assert.Equal(t, int64(20), summary.Discovered)
	assert.Equal(t, int64(20), summary.EdgesCreated)
	assert.Equal(t, int64(106), summary.Fetches)
	assert.False(t, summary.RateLimited)

	alice, ok := graph.user("alice")
	require.True(t, ok)
	require.NotNil(t, alice.lastCrawled)
	require.NotNil(t, alice.depth)
	assert.Equal(t, 0, *alice.depth)
	for i := 0; i < 20; i++ {
		login := fmt.Sprintf("follower%02d", i)
		u, ok := graph.user(login)
		require.True(t, ok, login)
		require.NotNil(t, u.lastCrawled, login)
		require.NotNil(t, u.depth, login)
		assert.Equal(t, 1, *u.depth, login)
	}
}

func TestCrawlRateLimitPastDeadlineStopsRun(t *testing.T) {
	config := testConfig(t)
	config.Crawler.SeedLogin = "alice"
	config.Crawler.WallClockBudgetSec = 1

	client := newFakeClient()
	client.users["alice"] = githubapi.UserResponse{Login: "alice"}
	client.failWith("user:alice", &githubapi.RateLimitError{Reset: time.Now().Add(time.Hour)})

	graph := newFakeGraph()
	graph.seedUser("bob", nil, nil, nil)
	runner := newTestRunner(t, config, graph, client)

	start := time.Now()
	summary, err := runner.Crawl(context.Background())
	require.NoError(t, err)

	// The run stops immediately instead of sleeping toward the reset, and
	// the remaining frontier is abandoned untouched.
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, summary.RateLimited)
	assert.Equal(t, int64(1), summary.Deferred)
	assert.Equal(t, int64(0), summary.UsersCrawled)
	assert.Equal(t, 1, client.count("user:alice"))
	assert.Equal(t, 0, client.count("user:bob"))

	bob, _ := graph.user("bob")
	assert.Nil(t, bob.lastCrawled)
}

func TestCrawlNotFoundMarksInert(t *testing.T) {
	config := testConfig(t)

	graph := newFakeGraph()
	graph.seedUser("ghost", nil, nil, nil)

	client := newFakeClient()
	runner := newTestRunner(t, config, graph, client)

	summary, err := runner.Crawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.FailedNotFound)
	assert.Equal(t, int64(0), summary.UsersCrawled)
	ghost, _ := graph.user("ghost")
	assert.True(t, ghost.inert)

	// Inert entities never seed again.
	second, err := runner.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Fetches)
	assert.Equal(t, 1, client.count("user:ghost"))
}

func TestCrawlTransientRetriesThenDrops(t *testing.T) {
	config := testConfig(t)
	config.Crawler.SeedLogin = "flaky"
	config.GithubApi.MaxRetries = 2

	client := newFakeClient()
	client.users["flaky"] = githubapi.UserResponse{Login: "flaky"}
	client.failWith("user:flaky",
		&githubapi.TransientError{Status: 502},
		&githubapi.TransientError{Status: 502},
		&githubapi.TransientError{Status: 502},
	)

	graph := newFakeGraph()
	runner := newTestRunner(t, config, graph, client)

	summary, err := runner.Crawl(context.Background())
	require.NoError(t, err)

	// Initial attempt plus two retries, then the task is dropped for the
	// run without becoming inert.
	assert.Equal(t, 3, client.count("user:flaky"))
	assert.Equal(t, int64(1), summary.FailedRetries)
	assert.Equal(t, int64(0), summary.UsersCrawled)

	flaky, _ := graph.user("flaky")
	assert.False(t, flaky.inert)
	assert.Nil(t, flaky.lastCrawled)
}

func TestCrawlRecrawlKeepsMinimumDepth(t *testing.T) {
	config := testConfig(t)

	old := time.Now().Add(-60 * 24 * time.Hour)
	deep := 3
	graph := newFakeGraph()
	graph.seedUser("deep", &old, &deep, &old)

	client := newFakeClient()
	client.users["deep"] = githubapi.UserResponse{Login: "deep"}
	runner := newTestRunner(t, config, graph, client)

	summary, err := runner.Crawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.UsersCrawled)
	u, _ := graph.user("deep")
	require.NotNil(t, u.depth)
	assert.Equal(t, 0, *u.depth)
	require.NotNil(t, u.lastCrawled)
	assert.True(t, u.lastCrawled.After(old))
}

func TestCrawlFreshUserDepthMergedWithoutTouch(t *testing.T) {
	config := testConfig(t)
	config.Crawler.SeedLogin = "near"

	recent := time.Now().Add(-time.Hour)
	far := 5
	graph := newFakeGraph()
	graph.seedUser("near", &recent, &far, &recent)

	client := newFakeClient()
	runner := newTestRunner(t, config, graph, client)

	summary, err := runner.Crawl(context.Background())
	require.NoError(t, err)

	// Fresh, so no fetch; the shallower path still lowers the depth but the
	// crawl stamp must not move.
	assert.Equal(t, int64(0), summary.Fetches)
	assert.Equal(t, int64(1), summary.SkippedFresh)
	u, _ := graph.user("near")
	require.NotNil(t, u.depth)
	assert.Equal(t, 0, *u.depth)
	require.NotNil(t, u.lastCrawled)
	assert.Equal(t, recent, *u.lastCrawled)
}

func TestCrawlSelfLoopFollowSkipped(t *testing.T) {
	config := testConfig(t)
	config.Crawler.SeedLogin = "nar"

	client := newFakeClient()
	client.users["nar"] = githubapi.UserResponse{Login: "nar"}
	client.users["bob"] = githubapi.UserResponse{Login: "bob"}
	client.followers["nar"] = []githubapi.UserResponse{{Login: "nar"}, {Login: "bob"}}

	graph := newFakeGraph()
	runner := newTestRunner(t, config, graph, client)

	summary, err := runner.Crawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Malformed)
	assert.False(t, graph.hasEdge(store.Edge{
		Relation: store.RelationFollows, UserLogin: "nar", TargetLogin: "nar",
	}))
	assert.True(t, graph.hasEdge(store.Edge{
		Relation: store.RelationFollows, UserLogin: "bob", TargetLogin: "nar",
	}))
	assert.Equal(t, 1, graph.edgeCount())
}
