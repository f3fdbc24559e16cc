package model

import (
	"time"

	"github.com/thep200/github-graph-crawler/cfg"
	"github.com/thep200/github-graph-crawler/pkg/db"
	"github.com/thep200/github-graph-crawler/pkg/log"
)

type Model struct {
	Config    *cfg.Config `gorm:"-"`
	Logger    log.Logger  `gorm:"-"`
	Mysql     *db.Mysql   `gorm:"-"`
	ID        uint        `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// All returns every model that needs a table, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{}, &Repo{}, &Language{},
		&Follower{}, &Stargazer{}, &Watcher{},
		&Contributor{}, &Dislike{}, &RepoLanguage{},
	}
}
