package storage

// RepoPolicy records whether automated review is enabled for a repository.
// Rows are written by the installation webhooks and read by the review
// pipeline before any external call is made.
type RepoPolicy struct {
	RepoID        int64  `json:"repo_id"`
	OwnerID       int64  `json:"owner_id"`
	Name          string `json:"name"`
	URL           string `json:"url,omitempty"`
	ReviewEnabled bool   `json:"review_enabled"`
}

// ReviewRecord is the persisted result of reviewing one file of one pull
// request. ReviewID is a deterministic function of (pull request id, file
// path), so inserting the same record twice is detectable.
type ReviewRecord struct {
	ReviewID  string `json:"review_id"`
	RepoID    int64  `json:"repo_id"`
	OwnerID   int64  `json:"owner_id"`
	PRNumber  int    `json:"pr_number"`
	Path      string `json:"path"`
	Comment   string `json:"comment"`
	Rating    int    `json:"rating"`
	CreatedAt string `json:"created_at,omitempty"`
}

// InsightCounters are per-owner aggregate review metrics, incremented once
// per completed pipeline run.
type InsightCounters struct {
	OwnerID      int64 `json:"owner_id"`
	TotalReviews int64 `json:"total_reviews"`
	TotalPRs     int64 `json:"total_prs"`
}
