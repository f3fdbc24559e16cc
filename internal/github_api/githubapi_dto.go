// DTOs mapping GitHub REST responses into structures the crawler consumes.

package githubapi

import "time"

type Owner struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

type UserResponse struct {
	Login     string     `json:"login"`
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type RepoResponse struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	FullName        string     `json:"full_name"`
	Description     string     `json:"description"`
	HtmlUrl         string     `json:"html_url"`
	Owner           Owner      `json:"owner"`
	StargazersCount int64      `json:"stargazers_count"`
	CreatedAt       *time.Time `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
	PushedAt        *time.Time `json:"pushed_at"`
}
