package model

import "time"

// DiscoveryMessage announces an entity discovered during a crawl run.
type DiscoveryMessage struct {
	Kind    string    `json:"kind"` // "user" or "repo"
	Login   string    `json:"login,omitempty"`
	RepoID  int64     `json:"repo_id,omitempty"`
	Depth   int       `json:"depth"`
	FoundAt time.Time `json:"found_at"`
}

// RunResultMessage is the run summary published when a crawl run finishes.
type RunResultMessage struct {
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Fetches        int64     `json:"fetches"`
	UsersCrawled   int64     `json:"users_crawled"`
	ReposCrawled   int64     `json:"repos_crawled"`
	Discovered     int64     `json:"discovered"`
	EdgesCreated   int64     `json:"edges_created"`
	SkippedFresh   int64     `json:"skipped_fresh"`
	FailedNotFound int64     `json:"failed_not_found"`
	FailedRetries  int64     `json:"failed_retries"`
	Malformed      int64     `json:"malformed"`
	Deferred       int64     `json:"deferred"`
	RateLimited    bool      `json:"rate_limited"`
}
