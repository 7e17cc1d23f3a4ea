// Package github provides the GitHub API client, installation token source,
// and webhook handling for reviewloop.
package github

import "time"

// WebhookEvent represents a pull_request webhook event.
type WebhookEvent struct {
	Action       string        `json:"action"`
	Number       int           `json:"number"`
	PullRequest  *PullRequest  `json:"pull_request,omitempty"`
	Repository   *Repository   `json:"repository"`
	Installation *Installation `json:"installation"`
	Sender       *User         `json:"sender"`
}

// PullRequest represents a GitHub pull request.
type PullRequest struct {
	ID          int64  `json:"id"`
	Number      int    `json:"number"`
	State       string `json:"state"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Head        *Ref   `json:"head"`
	Base        *Ref   `json:"base"`
	User        *User  `json:"user"`
	URL         string `json:"url"`
	HTMLURL     string `json:"html_url"`
	DiffURL     string `json:"diff_url"`
	CommentsURL string `json:"comments_url"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Ref represents a git reference (branch/commit).
type Ref struct {
	Ref  string      `json:"ref"`
	SHA  string      `json:"sha"`
	Repo *Repository `json:"repo,omitempty"`
}

// Repository represents a GitHub repository.
type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	Owner         *User  `json:"owner"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
}

// User represents a GitHub user or organization.
type User struct {
	ID      int64  `json:"id"`
	Login   string `json:"login"`
	Type    string `json:"type"`
	HTMLURL string `json:"html_url"`
}

// Installation represents a GitHub App installation reference in a payload.
type Installation struct {
	ID int64 `json:"id"`
}

// PullRequestFile represents a file changed in a pull request.
type PullRequestFile struct {
	SHA         string `json:"sha"`
	Filename    string `json:"filename"`
	Status      string `json:"status"` // added, removed, modified, renamed, copied, changed, unchanged
	Additions   int    `json:"additions"`
	Deletions   int    `json:"deletions"`
	Changes     int    `json:"changes"`
	Patch       string `json:"patch,omitempty"`
	ContentsURL string `json:"contents_url"`
}

// InstallationToken is a short-lived credential scoped to one installation.
// It is held in memory for the duration of a run and never persisted.
type InstallationToken struct {
	Value     string
	ExpiresAt time.Time
}

// CheckRun represents a check run resource.
type CheckRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HeadSHA    string `json:"head_sha"`
	Status     string `json:"status"`     // queued, in_progress, completed
	Conclusion string `json:"conclusion"` // success, failure, neutral
	HTMLURL    string `json:"html_url"`
}

// CheckRunOutput carries the user-visible title and summary of a check run.
type CheckRunOutput struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// IssueComment represents a comment on an issue or PR.
type IssueComment struct {
	ID        int64  `json:"id"`
	NodeID    string `json:"node_id"`
	User      *User  `json:"user"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	HTMLURL   string `json:"html_url"`
}

// InstallationEvent represents an installation webhook event.
type InstallationEvent struct {
	Action       string               `json:"action"` // created, deleted, suspend, unsuspend
	Installation *InstallationDetails `json:"installation"`
	Repositories []RepoSummary        `json:"repositories,omitempty"`
	Sender       *User                `json:"sender"`
}

// InstallationDetails contains details about a GitHub App installation.
type InstallationDetails struct {
	ID      int64 `json:"id"`
	Account *User `json:"account"` // The org or user that installed the app
}

// InstallationRepositoriesEvent represents an installation_repositories
// webhook event (repositories added to or removed from an installation).
type InstallationRepositoriesEvent struct {
	Action              string               `json:"action"` // added, removed
	Installation        *InstallationDetails `json:"installation"`
	RepositoriesAdded   []RepoSummary        `json:"repositories_added,omitempty"`
	RepositoriesRemoved []RepoSummary        `json:"repositories_removed,omitempty"`
	Sender              *User                `json:"sender"`
}

// RepoSummary is the abbreviated repository shape used in installation payloads.
type RepoSummary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
}

// FileContent represents the content of a file from the contents API.
type FileContent struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Size     int    `json:"size"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
}
