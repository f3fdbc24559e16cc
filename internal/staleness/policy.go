// Package staleness decides whether an entity is due for refreshing. Pure
// functions of crawl metadata and configured cadences, no I/O.
package staleness

import (
	"time"

	"github.com/thep200/github-graph-crawler/cfg"
)

type Policy struct {
	UserProfile time.Duration
	UserRepos   time.Duration
	Repo        time.Duration
	Sweep       time.Duration
}

func NewPolicy(c cfg.Crawler) Policy {
	day := 24 * time.Hour
	return Policy{
		UserProfile: time.Duration(c.RefreshUpdateUserDays) * day,
		UserRepos:   time.Duration(c.RefreshUpdateUserReposDays) * day,
		Repo:        time.Duration(c.RefreshUpdateRepoDays) * day,
		Sweep:       time.Duration(c.RefreshCrawlDays) * day,
	}
}

// The three cadences are independent: a fresh profile does not imply fresh
// edges, so callers must check each one they care about.

func (p Policy) UserProfileDue(lastCrawled *time.Time, now time.Time) bool {
	return due(lastCrawled, p.UserProfile, now)
}

func (p Policy) UserReposDue(lastCrawledUserRepos *time.Time, now time.Time) bool {
	return due(lastCrawledUserRepos, p.UserRepos, now)
}

func (p Policy) RepoDue(lastCrawled *time.Time, now time.Time) bool {
	return due(lastCrawled, p.Repo, now)
}

// SweepDue governs the coarser full re-expansion of an entity's neighbor
// lists.
func (p Policy) SweepDue(lastCrawled *time.Time, now time.Time) bool {
	return due(lastCrawled, p.Sweep, now)
}

// due: a never-crawled entity (nil stamp) is always due.
func due(last *time.Time, threshold time.Duration, now time.Time) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) >= threshold
}
