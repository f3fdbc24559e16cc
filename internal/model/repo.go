package model

import "time"

// Repo is a repository row. GithubID is the natural key; OwnerLogin carries
// the owns relation since a repository has exactly one owner.
type Repo struct {
	Model
	GithubID         int64      `json:"github_id" gorm:"column:github_id;not null;uniqueIndex"`
	OwnerLogin       string     `json:"owner_login" gorm:"column:owner_login;type:varchar(100);not null;index"`
	Name             string     `json:"name" gorm:"column:name;type:varchar(255);not null"`
	Description      string     `json:"description" gorm:"column:description;type:varchar(1000)"`
	Url              string     `json:"url" gorm:"column:url;type:varchar(512)"`
	StarCount        int        `json:"star_count" gorm:"column:star_count;default:0"`
	RemoteCreatedAt  *time.Time `json:"remote_created_at" gorm:"column:remote_created_at"`
	RemoteUpdatedAt  *time.Time `json:"remote_updated_at" gorm:"column:remote_updated_at"`
	RemotePushedAt   *time.Time `json:"remote_pushed_at" gorm:"column:remote_pushed_at"`
	LastCrawled      *time.Time `json:"last_crawled" gorm:"column:last_crawled;index"`
	LastCrawledDepth *int       `json:"last_crawled_depth" gorm:"column:last_crawled_depth"`
	Inert            bool       `json:"inert" gorm:"column:inert;default:false"`
}

func (r *Repo) TableName() string {
	return "repos"
}
