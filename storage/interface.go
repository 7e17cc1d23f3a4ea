// Package storage defines the storage interface for reviewloop.
package storage

import (
	"context"
)

// Store defines the interface for reviewloop storage backends.
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// Repo policy operations. GetRepoPolicy returns (nil, nil) for an
	// unknown repository.
	GetRepoPolicy(ctx context.Context, repoID int64) (*RepoPolicy, error)
	UpsertRepoPolicies(ctx context.Context, policies []RepoPolicy) error
	SetReviewEnabled(ctx context.Context, repoID int64, enabled bool) error
	DeleteRepoPolicy(ctx context.Context, repoID int64) error
	DeleteRepoPoliciesForOwner(ctx context.Context, ownerID int64) error

	// Review record operations. CreateReviewRecord has insert-if-absent
	// semantics: it returns false with a nil error when a record with the
	// same ReviewID already exists.
	CreateReviewRecord(ctx context.Context, rec *ReviewRecord) (bool, error)
	HasReviewRecord(ctx context.Context, reviewID string) (bool, error)
	HasReviewsForPR(ctx context.Context, repoID int64, prNumber int) (bool, error)

	// Insight operations. IncrementInsights creates the owner row if
	// absent, otherwise adds the deltas to the existing counters.
	IncrementInsights(ctx context.Context, ownerID int64, reviews, prs int64) error
	GetInsights(ctx context.Context, ownerID int64) (*InsightCounters, error)
}
