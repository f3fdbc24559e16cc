package model

import "time"

// Edge rows. Each relation is a set: the composite unique index is the final
// backstop against duplicate edges when concurrent workers race on the same
// pair.

// Follower records follower_id follows user_id.
type Follower struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     uint      `json:"user_id" gorm:"column:user_id;not null;uniqueIndex:idx_follower_pair"`
	FollowerID uint      `json:"follower_id" gorm:"column:follower_id;not null;uniqueIndex:idx_follower_pair"`
	CreatedAt  time.Time `json:"created_at"`
}

func (f *Follower) TableName() string {
	return "followers"
}

type Stargazer struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	RepoID    uint      `json:"repo_id" gorm:"column:repo_id;not null;uniqueIndex:idx_stargazer_pair"`
	UserID    uint      `json:"user_id" gorm:"column:user_id;not null;uniqueIndex:idx_stargazer_pair"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Stargazer) TableName() string {
	return "stargazers"
}

type Watcher struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	RepoID    uint      `json:"repo_id" gorm:"column:repo_id;not null;uniqueIndex:idx_watcher_pair"`
	UserID    uint      `json:"user_id" gorm:"column:user_id;not null;uniqueIndex:idx_watcher_pair"`
	CreatedAt time.Time `json:"created_at"`
}

func (w *Watcher) TableName() string {
	return "watchers"
}

type Contributor struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	RepoID    uint      `json:"repo_id" gorm:"column:repo_id;not null;uniqueIndex:idx_contributor_pair"`
	UserID    uint      `json:"user_id" gorm:"column:user_id;not null;uniqueIndex:idx_contributor_pair"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Contributor) TableName() string {
	return "contributors"
}

type Dislike struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	RepoID    uint      `json:"repo_id" gorm:"column:repo_id;not null;uniqueIndex:idx_dislike_pair"`
	UserID    uint      `json:"user_id" gorm:"column:user_id;not null;uniqueIndex:idx_dislike_pair"`
	CreatedAt time.Time `json:"created_at"`
}

func (d *Dislike) TableName() string {
	return "dislikes"
}

// RepoLanguage carries a byte-count weight that is overwritten on refresh.
type RepoLanguage struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	RepoID     uint      `json:"repo_id" gorm:"column:repo_id;not null;uniqueIndex:idx_repo_language_pair"`
	LanguageID uint      `json:"language_id" gorm:"column:language_id;not null;uniqueIndex:idx_repo_language_pair"`
	Bytes      int64     `json:"bytes" gorm:"column:bytes;default:0"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (rl *RepoLanguage) TableName() string {
	return "repo_languages"
}
