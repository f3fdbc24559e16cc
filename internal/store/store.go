// Package store is the persistence boundary of the crawler: idempotent merge
// of entities and edges by natural key, staleness queries for run seeding,
// and the per-entity crawl metadata stamps.
package store

import (
	"context"
	"errors"
	"time"
)

// Cadence selects which crawl metadata column a staleness query filters on.
type Cadence int

const (
	CadenceProfile Cadence = iota
	CadenceUserRepos
	CadenceSweep
)

type Relation string

const (
	RelationFollows     Relation = "follows"
	RelationStars       Relation = "stars"
	RelationWatches     Relation = "watches"
	RelationContributes Relation = "contributes"
	RelationDislikes    Relation = "dislikes"
	RelationLanguage    Relation = "language"
)

// ErrSelfLoop rejects a follows edge from a user to themselves.
var ErrSelfLoop = errors.New("store: follows edge must not be a self loop")

// UserFields is a full user profile ready to merge. Mutable attributes are
// last-write-wins; crawl metadata is only touched via the Touch methods.
type UserFields struct {
	Login           string
	Name            string
	RemoteCreatedAt *time.Time
	RemoteUpdatedAt *time.Time
}

type RepoFields struct {
	GithubID        int64
	OwnerLogin      string
	Name            string
	Description     string
	Url             string
	StarCount       int
	RemoteCreatedAt *time.Time
	RemoteUpdatedAt *time.Time
	RemotePushedAt  *time.Time
}

// UserMeta is the cheap metadata read the scheduler uses for its staleness
// re-check at dequeue time.
type UserMeta struct {
	Known                bool
	Inert                bool
	LastCrawled          *time.Time
	LastCrawledDepth     *int
	LastCrawledUserRepos *time.Time
}

type RepoMeta struct {
	Known            bool
	Inert            bool
	LastCrawled      *time.Time
	LastCrawledDepth *int
}

// Edge names a typed relation between natural keys. The fields used depend
// on the relation: follows uses UserLogin -> TargetLogin, the user x repo
// relations use UserLogin and RepoID, language uses RepoID, Language and
// Weight (byte count, overwritten on refresh).
type Edge struct {
	Relation    Relation
	UserLogin   string
	TargetLogin string
	RepoID      int64
	Language    string
	Weight      int64
}

// Graph is the store interface the crawl core consumes. Upserts resolve
// identity by natural key and report whether the row was new; re-observing
// an existing edge is a no-op, never a duplicate.
type Graph interface {
	// UpsertUserIdentity records that a login exists without touching any
	// profile fields. Used for edge endpoints whose profile has not been
	// fetched yet.
	UpsertUserIdentity(ctx context.Context, login string) (wasNew bool, err error)
	UpsertUser(ctx context.Context, fields UserFields) (wasNew bool, err error)
	UpsertRepo(ctx context.Context, fields RepoFields) (wasNew bool, err error)
	UpsertEdge(ctx context.Context, edge Edge) (wasNew bool, err error)

	StaleUsers(ctx context.Context, cadence Cadence, before time.Time, limit int) ([]string, error)
	StaleRepos(ctx context.Context, before time.Time, limit int) ([]int64, error)

	UserMeta(ctx context.Context, login string) (UserMeta, error)
	RepoMeta(ctx context.Context, githubID int64) (RepoMeta, error)

	// TouchUser advances last_crawled (monotonically) and merges the BFS
	// depth, keeping the minimum ever observed.
	TouchUser(ctx context.Context, login string, now time.Time, depth int) error
	TouchUserRepos(ctx context.Context, login string, now time.Time) error
	TouchRepo(ctx context.Context, githubID int64, now time.Time, depth int) error

	MarkUserInert(ctx context.Context, login string) error
	MarkRepoInert(ctx context.Context, githubID int64) error

	// Transact runs fn against a store bound to one transaction so a merged
	// edge page lands all-or-nothing.
	Transact(ctx context.Context, fn func(Graph) error) error
}
