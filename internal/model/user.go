package model

import "time"

// User is a GitHub account discovered while walking the graph. Login is the
// natural key; everything the crawler knows about freshness lives in the
// LastCrawled* columns.
type User struct {
	Model
	Login                string     `json:"login" gorm:"column:login;type:varchar(100);not null;uniqueIndex"`
	Name                 string     `json:"name" gorm:"column:name;type:varchar(255)"`
	RemoteCreatedAt      *time.Time `json:"remote_created_at" gorm:"column:remote_created_at"`
	RemoteUpdatedAt      *time.Time `json:"remote_updated_at" gorm:"column:remote_updated_at"`
	LastCrawled          *time.Time `json:"last_crawled" gorm:"column:last_crawled;index"`
	LastCrawledDepth     *int       `json:"last_crawled_depth" gorm:"column:last_crawled_depth"`
	LastCrawledUserRepos *time.Time `json:"last_crawled_user_repos" gorm:"column:last_crawled_user_repos;index"`
	Inert                bool       `json:"inert" gorm:"column:inert;default:false"`
}

func (u *User) TableName() string {
	return "users"
}
