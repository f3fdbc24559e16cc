// Package githubapi provides the HTTP caller for the GitHub REST API.
// The caller resolves one profile or one page of an edge list per call,
// translates status codes into the crawler's error taxonomy and tracks the
// remaining quota reported by the rate limit headers.

package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/thep200/github-graph-crawler/cfg"
	"github.com/thep200/github-graph-crawler/pkg/log"
)

type Caller struct {
	Logger    log.Logger
	Config    *cfg.Config
	client    *http.Client
	remaining int64
}

func NewCaller(logger log.Logger, config *cfg.Config) *Caller {
	return &Caller{
		Logger:    logger,
		Config:    config,
		client:    &http.Client{Timeout: 30 * time.Second},
		remaining: -1,
	}
}

// Remaining reports the quota left on the credential after the most recent
// call, or -1 before the first call.
func (c *Caller) Remaining() int64 {
	return atomic.LoadInt64(&c.remaining)
}

func (c *Caller) FetchUser(ctx context.Context, login string) (*UserResponse, error) {
	var user UserResponse
	url := fmt.Sprintf("%s/users/%s", c.Config.GithubApi.ApiUrl, login)
	if err := c.get(ctx, url, &user); err != nil {
		return nil, err
	}
	if user.Login == "" {
		return nil, &MalformedError{Reason: fmt.Sprintf("user %q has no login", login)}
	}
	return &user, nil
}

func (c *Caller) FetchUserRepos(ctx context.Context, login string, page int) ([]RepoResponse, bool, error) {
	url := fmt.Sprintf("%s/users/%s/repos", c.Config.GithubApi.ApiUrl, login)
	return c.getRepoPage(ctx, url, page)
}

func (c *Caller) FetchUserFollowers(ctx context.Context, login string, page int) ([]UserResponse, bool, error) {
	url := fmt.Sprintf("%s/users/%s/followers", c.Config.GithubApi.ApiUrl, login)
	return c.getUserPage(ctx, url, page)
}

func (c *Caller) FetchUserStarred(ctx context.Context, login string, page int) ([]RepoResponse, bool, error) {
	url := fmt.Sprintf("%s/users/%s/starred", c.Config.GithubApi.ApiUrl, login)
	return c.getRepoPage(ctx, url, page)
}

func (c *Caller) FetchUserSubscriptions(ctx context.Context, login string, page int) ([]RepoResponse, bool, error) {
	url := fmt.Sprintf("%s/users/%s/subscriptions", c.Config.GithubApi.ApiUrl, login)
	return c.getRepoPage(ctx, url, page)
}

func (c *Caller) FetchRepo(ctx context.Context, githubID int64) (*RepoResponse, error) {
	var repo RepoResponse
	url := fmt.Sprintf("%s/repositories/%d", c.Config.GithubApi.ApiUrl, githubID)
	if err := c.get(ctx, url, &repo); err != nil {
		return nil, err
	}
	if repo.ID == 0 {
		return nil, &MalformedError{Reason: fmt.Sprintf("repo %d has no id", githubID)}
	}
	return &repo, nil
}

func (c *Caller) FetchRepoContributors(ctx context.Context, githubID int64, page int) ([]UserResponse, bool, error) {
	url := fmt.Sprintf("%s/repositories/%d/contributors", c.Config.GithubApi.ApiUrl, githubID)
	return c.getUserPage(ctx, url, page)
}

func (c *Caller) FetchRepoLanguages(ctx context.Context, githubID int64) (map[string]int64, error) {
	languages := map[string]int64{}
	url := fmt.Sprintf("%s/repositories/%d/languages", c.Config.GithubApi.ApiUrl, githubID)
	if err := c.get(ctx, url, &languages); err != nil {
		return nil, err
	}
	return languages, nil
}

func (c *Caller) getUserPage(ctx context.Context, baseUrl string, page int) ([]UserResponse, bool, error) {
	var users []UserResponse
	if err := c.get(ctx, c.paged(baseUrl, page), &users); err != nil {
		return nil, false, err
	}
	return users, len(users) == c.Config.GithubApi.PerPage, nil
}

func (c *Caller) getRepoPage(ctx context.Context, baseUrl string, page int) ([]RepoResponse, bool, error) {
	var repos []RepoResponse
	if err := c.get(ctx, c.paged(baseUrl, page), &repos); err != nil {
		return nil, false, err
	}
	return repos, len(repos) == c.Config.GithubApi.PerPage, nil
}

func (c *Caller) paged(baseUrl string, page int) string {
	return fmt.Sprintf("%s?per_page=%d&page=%d", baseUrl, c.Config.GithubApi.PerPage, page)
}

func (c *Caller) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.Config.GithubApi.AccessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("token %s", c.Config.GithubApi.AccessToken))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	c.trackRemaining(resp)

	if reset, limited := c.rateLimited(resp); limited {
		c.Logger.Warn(ctx, "Rate limit hit, reset at %s", reset.Format(time.RFC3339))
		return &RateLimitError{Reset: reset}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return &TransientError{Status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("github api: unexpected status %s for %s", resp.Status, url)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &MalformedError{Reason: fmt.Sprintf("decode %s: %v", url, err)}
	}
	return nil
}

// rateLimited reports whether the response signals quota exhaustion and the
// time the quota resets.
func (c *Caller) rateLimited(resp *http.Response) (time.Time, bool) {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return time.Time{}, false
	}

	// Secondary rate limits carry Retry-After while the primary quota still
	// has calls remaining
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return time.Now().Add(time.Duration(secs) * time.Second), true
		}
	}

	if resp.Header.Get("X-RateLimit-Remaining") != "0" {
		return time.Time{}, false
	}

	resetTimeStr := resp.Header.Get("X-RateLimit-Reset")
	resetTimeInt, err := strconv.ParseInt(resetTimeStr, 10, 64)
	if err != nil {
		// No usable reset header, fall back to the configured wait
		return time.Now().Add(time.Duration(c.Config.GithubApi.RateLimitResetMin) * time.Minute), true
	}

	resetTime := time.Unix(resetTimeInt, 0)
	if resetTime.Before(time.Now()) {
		resetTime = time.Now().Add(time.Duration(c.Config.GithubApi.RateLimitResetMin) * time.Minute)
	}
	return resetTime, true
}

func (c *Caller) trackRemaining(resp *http.Response) {
	remainingStr := resp.Header.Get("X-RateLimit-Remaining")
	if remainingStr == "" {
		return
	}
	if remaining, err := strconv.ParseInt(remainingStr, 10, 64); err == nil {
		atomic.StoreInt64(&c.remaining, remaining)
	}
}
