package store

import (
	"context"
	"errors"
	"time"

	"github.com/thep200/github-graph-crawler/cfg"
	"github.com/thep200/github-graph-crawler/internal/model"
	"github.com/thep200/github-graph-crawler/pkg/db"
	"github.com/thep200/github-graph-crawler/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gorm is the MySQL-backed Graph. The composite unique indexes on the edge
// tables are the final uniqueness backstop when concurrent workers race on
// the same pair; a lost race surfaces as RowsAffected 0, never as an error.
type Gorm struct {
	Config *cfg.Config
	Logger log.Logger
	Mysql  *db.Mysql
	tx     *gorm.DB
}

var _ Graph = (*Gorm)(nil)

func NewGorm(config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*Gorm, error) {
	return &Gorm{
		Config: config,
		Logger: logger,
		Mysql:  mysql,
	}, nil
}

func (g *Gorm) conn(ctx context.Context) (*gorm.DB, error) {
	if g.tx != nil {
		return g.tx.WithContext(ctx), nil
	}
	conn, err := g.Mysql.Db()
	if err != nil {
		return nil, err
	}
	return conn.WithContext(ctx), nil
}

func (g *Gorm) Transact(ctx context.Context, fn func(Graph) error) error {
	conn, err := g.conn(ctx)
	if err != nil {
		return err
	}
	return conn.Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{Config: g.Config, Logger: g.Logger, Mysql: g.Mysql, tx: tx})
	})
}

func (g *Gorm) UpsertUserIdentity(ctx context.Context, login string) (bool, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return false, err
	}

	user := &model.User{Login: model.TruncateString(login, 100)}
	res := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "login"}},
		DoNothing: true,
	}).Create(user)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (g *Gorm) UpsertUser(ctx context.Context, fields UserFields) (bool, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return false, err
	}

	user := &model.User{
		Login:           model.TruncateString(fields.Login, 100),
		Name:            model.TruncateString(fields.Name, 255),
		RemoteCreatedAt: fields.RemoteCreatedAt,
		RemoteUpdatedAt: fields.RemoteUpdatedAt,
	}
	res := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "login"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "remote_created_at", "remote_updated_at", "updated_at"}),
	}).Create(user)
	if res.Error != nil {
		return false, res.Error
	}
	// MySQL reports 1 row for an insert, 2 for an update through the
	// duplicate-key path
	return res.RowsAffected == 1, nil
}

func (g *Gorm) UpsertRepo(ctx context.Context, fields RepoFields) (bool, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return false, err
	}

	repo := &model.Repo{
		GithubID:        fields.GithubID,
		OwnerLogin:      model.TruncateString(fields.OwnerLogin, 100),
		Name:            model.TruncateString(fields.Name, 255),
		Description:     model.TruncateString(fields.Description, 1000),
		Url:             model.TruncateString(fields.Url, 512),
		StarCount:       fields.StarCount,
		RemoteCreatedAt: fields.RemoteCreatedAt,
		RemoteUpdatedAt: fields.RemoteUpdatedAt,
		RemotePushedAt:  fields.RemotePushedAt,
	}
	res := conn.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "github_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"owner_login", "name", "description", "url", "star_count",
			"remote_created_at", "remote_updated_at", "remote_pushed_at", "updated_at",
		}),
	}).Create(repo)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (g *Gorm) UpsertEdge(ctx context.Context, edge Edge) (bool, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return false, err
	}

	switch edge.Relation {
	case RelationFollows:
		if edge.UserLogin == edge.TargetLogin {
			return false, ErrSelfLoop
		}
		followerID, err := g.userID(ctx, edge.UserLogin)
		if err != nil {
			return false, err
		}
		targetID, err := g.userID(ctx, edge.TargetLogin)
		if err != nil {
			return false, err
		}
		return g.insertIgnore(conn, &model.Follower{UserID: targetID, FollowerID: followerID})

	case RelationStars, RelationWatches, RelationContributes, RelationDislikes:
		userID, err := g.userID(ctx, edge.UserLogin)
		if err != nil {
			return false, err
		}
		repoID, err := g.repoID(ctx, edge.RepoID)
		if err != nil {
			return false, err
		}
		switch edge.Relation {
		case RelationStars:
			return g.insertIgnore(conn, &model.Stargazer{RepoID: repoID, UserID: userID})
		case RelationWatches:
			return g.insertIgnore(conn, &model.Watcher{RepoID: repoID, UserID: userID})
		case RelationContributes:
			return g.insertIgnore(conn, &model.Contributor{RepoID: repoID, UserID: userID})
		default:
			return g.insertIgnore(conn, &model.Dislike{RepoID: repoID, UserID: userID})
		}

	case RelationLanguage:
		repoID, err := g.repoID(ctx, edge.RepoID)
		if err != nil {
			return false, err
		}
		languageID, err := g.languageID(ctx, edge.Language)
		if err != nil {
			return false, err
		}
		row := &model.RepoLanguage{RepoID: repoID, LanguageID: languageID, Bytes: edge.Weight}
		res := conn.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "repo_id"}, {Name: "language_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"bytes", "updated_at"}),
		}).Create(row)
		if res.Error != nil {
			return false, res.Error
		}
		return res.RowsAffected == 1, nil

	default:
		return false, errors.New("store: unknown edge relation " + string(edge.Relation))
	}
}

// insertIgnore creates an edge row, treating a duplicate pair as a no-op.
func (g *Gorm) insertIgnore(conn *gorm.DB, row interface{}) (bool, error) {
	res := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (g *Gorm) userID(ctx context.Context, login string) (uint, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return 0, err
	}

	var user model.User
	err = conn.Select("id").Where("login = ?", login).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if _, err := g.UpsertUserIdentity(ctx, login); err != nil {
			return 0, err
		}
		err = conn.Select("id").Where("login = ?", login).First(&user).Error
	}
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

func (g *Gorm) repoID(ctx context.Context, githubID int64) (uint, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return 0, err
	}

	var repo model.Repo
	if err := conn.Select("id").Where("github_id = ?", githubID).First(&repo).Error; err != nil {
		return 0, err
	}
	return repo.ID, nil
}

func (g *Gorm) languageID(ctx context.Context, name string) (uint, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return 0, err
	}

	language := &model.Language{Name: model.TruncateString(name, 100)}
	res := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(language)
	if res.Error != nil {
		return 0, res.Error
	}
	if language.ID != 0 {
		return language.ID, nil
	}

	var existing model.Language
	if err := conn.Select("id").Where("name = ?", name).First(&existing).Error; err != nil {
		return 0, err
	}
	return existing.ID, nil
}

func (g *Gorm) StaleUsers(ctx context.Context, cadence Cadence, before time.Time, limit int) ([]string, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return nil, err
	}

	column := "last_crawled"
	if cadence == CadenceUserRepos {
		column = "last_crawled_user_repos"
	}

	var logins []string
	err = conn.Model(&model.User{}).
		Where("inert = ?", false).
		Where(column+" IS NULL OR "+column+" <= ?", before).
		Order(column + " IS NULL DESC, " + column + " ASC").
		Limit(limit).
		Pluck("login", &logins).Error
	return logins, err
}

func (g *Gorm) StaleRepos(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return nil, err
	}

	var ids []int64
	err = conn.Model(&model.Repo{}).
		Where("inert = ?", false).
		Where("last_crawled IS NULL OR last_crawled <= ?", before).
		Order("last_crawled IS NULL DESC, last_crawled ASC").
		Limit(limit).
		Pluck("github_id", &ids).Error
	return ids, err
}

func (g *Gorm) UserMeta(ctx context.Context, login string) (UserMeta, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return UserMeta{}, err
	}

	var user model.User
	err = conn.Where("login = ?", login).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return UserMeta{}, nil
	}
	if err != nil {
		return UserMeta{}, err
	}
	return UserMeta{
		Known:                true,
		Inert:                user.Inert,
		LastCrawled:          user.LastCrawled,
		LastCrawledDepth:     user.LastCrawledDepth,
		LastCrawledUserRepos: user.LastCrawledUserRepos,
	}, nil
}

func (g *Gorm) RepoMeta(ctx context.Context, githubID int64) (RepoMeta, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return RepoMeta{}, err
	}

	var repo model.Repo
	err = conn.Where("github_id = ?", githubID).First(&repo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RepoMeta{}, nil
	}
	if err != nil {
		return RepoMeta{}, err
	}
	return RepoMeta{
		Known:            true,
		Inert:            repo.Inert,
		LastCrawled:      repo.LastCrawled,
		LastCrawledDepth: repo.LastCrawledDepth,
	}, nil
}

func (g *Gorm) TouchUser(ctx context.Context, login string, now time.Time, depth int) error {
	conn, err := g.conn(ctx)
	if err != nil {
		return err
	}

	// last_crawled is monotonic, last_crawled_depth keeps the minimum
	if err := conn.Model(&model.User{}).
		Where("login = ? AND (last_crawled IS NULL OR last_crawled < ?)", login, now).
		Update("last_crawled", now).Error; err != nil {
		return err
	}
	return conn.Model(&model.User{}).
		Where("login = ? AND (last_crawled_depth IS NULL OR last_crawled_depth > ?)", login, depth).
		Update("last_crawled_depth", depth).Error
}

func (g *Gorm) TouchUserRepos(ctx context.Context, login string, now time.Time) error {
	conn, err := g.conn(ctx)
	if err != nil {
		return err
	}
	return conn.Model(&model.User{}).
		Where("login = ? AND (last_crawled_user_repos IS NULL OR last_crawled_user_repos < ?)", login, now).
		Update("last_crawled_user_repos", now).Error
}

func (g *Gorm) TouchRepo(ctx context.Context, githubID int64, now time.Time, depth int) error {
	conn, err := g.conn(ctx)
	if err != nil {
		return err
	}

	if err := conn.Model(&model.Repo{}).
		Where("github_id = ? AND (last_crawled IS NULL OR last_crawled < ?)", githubID, now).
		Update("last_crawled", now).Error; err != nil {
		return err
	}
	return conn.Model(&model.Repo{}).
		Where("github_id = ? AND (last_crawled_depth IS NULL OR last_crawled_depth > ?)", githubID, depth).
		Update("last_crawled_depth", depth).Error
}

func (g *Gorm) MarkUserInert(ctx context.Context, login string) error {
	conn, err := g.conn(ctx)
	if err != nil {
		return err
	}
	return conn.Model(&model.User{}).Where("login = ?", login).Update("inert", true).Error
}

func (g *Gorm) MarkRepoInert(ctx context.Context, githubID int64) error {
	conn, err := g.conn(ctx)
	if err != nil {
		return err
	}
	return conn.Model(&model.Repo{}).Where("github_id = ?", githubID).Update("inert", true).Error
}
