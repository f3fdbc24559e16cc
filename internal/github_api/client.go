package githubapi

import "context"

// Client is the surface the crawl scheduler consumes. Paged fetches take a
// 1-based page number and report whether another page follows.
//
// Errors are typed: ErrNotFound, *RateLimitError, *TransientError and
// *MalformedError carry the taxonomy the scheduler dispatches on.
type Client interface {
	FetchUser(ctx context.Context, login string) (*UserResponse, error)
	FetchUserRepos(ctx context.Context, login string, page int) ([]RepoResponse, bool, error)
	FetchUserFollowers(ctx context.Context, login string, page int) ([]UserResponse, bool, error)
	FetchUserStarred(ctx context.Context, login string, page int) ([]RepoResponse, bool, error)
	FetchUserSubscriptions(ctx context.Context, login string, page int) ([]RepoResponse, bool, error)
	FetchRepo(ctx context.Context, githubID int64) (*RepoResponse, error)
	FetchRepoContributors(ctx context.Context, githubID int64, page int) ([]UserResponse, bool, error)
	FetchRepoLanguages(ctx context.Context, githubID int64) (map[string]int64, error)
}
