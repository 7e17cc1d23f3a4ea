// Package memory provides an in-memory implementation of the storage
// interface for local development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/reviewloop/reviewloop/storage"
)

// Memory stores everything in process memory.
type Memory struct {
	mu       sync.Mutex
	policies map[int64]storage.RepoPolicy
	reviews  map[string]storage.ReviewRecord
	insights map[int64]storage.InsightCounters
}

// New creates an empty in-memory store.
func New() *Memory {
	return &Memory{
		policies: make(map[int64]storage.RepoPolicy),
		reviews:  make(map[string]storage.ReviewRecord),
		insights: make(map[int64]storage.InsightCounters),
	}
}

// GetRepoPolicy retrieves the review policy for a repository.
func (m *Memory) GetRepoPolicy(ctx context.Context, repoID int64) (*storage.RepoPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	policy, ok := m.policies[repoID]
	if !ok {
		return nil, nil
	}
	return &policy, nil
}

// UpsertRepoPolicies stores repository policies.
func (m *Memory) UpsertRepoPolicies(ctx context.Context, policies []storage.RepoPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, policy := range policies {
		if existing, ok := m.policies[policy.RepoID]; ok {
			// Keep the operator's toggle across reinstalls.
			policy.ReviewEnabled = existing.ReviewEnabled
		}
		m.policies[policy.RepoID] = policy
	}
	return nil
}

// SetReviewEnabled toggles automated review for a repository.
func (m *Memory) SetReviewEnabled(ctx context.Context, repoID int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	policy, ok := m.policies[repoID]
	if !ok {
		return nil
	}
	policy.ReviewEnabled = enabled
	m.policies[repoID] = policy
	return nil
}

// DeleteRepoPolicy removes a repository policy.
func (m *Memory) DeleteRepoPolicy(ctx context.Context, repoID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.policies, repoID)
	return nil
}

// DeleteRepoPoliciesForOwner removes all repository policies for an owner.
func (m *Memory) DeleteRepoPoliciesForOwner(ctx context.Context, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, policy := range m.policies {
		if policy.OwnerID == ownerID {
			delete(m.policies, id)
		}
	}
	return nil
}

// CreateReviewRecord inserts a review record if absent.
func (m *Memory) CreateReviewRecord(ctx context.Context, rec *storage.ReviewRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reviews[rec.ReviewID]; ok {
		return false, nil
	}

	stored := *rec
	if stored.CreatedAt == "" {
		stored.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	m.reviews[rec.ReviewID] = stored
	return true, nil
}

// HasReviewRecord reports whether a review record exists.
func (m *Memory) HasReviewRecord(ctx context.Context, reviewID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.reviews[reviewID]
	return ok, nil
}

// HasReviewsForPR reports whether any record exists for a pull request.
func (m *Memory) HasReviewsForPR(ctx context.Context, repoID int64, prNumber int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.reviews {
		if rec.RepoID == repoID && rec.PRNumber == prNumber {
			return true, nil
		}
	}
	return false, nil
}

// IncrementInsights adds the deltas to an owner's counters.
func (m *Memory) IncrementInsights(ctx context.Context, ownerID int64, reviews, prs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	counters := m.insights[ownerID]
	counters.OwnerID = ownerID
	counters.TotalReviews += reviews
	counters.TotalPRs += prs
	m.insights[ownerID] = counters
	return nil
}

// GetInsights retrieves an owner's aggregate counters.
func (m *Memory) GetInsights(ctx context.Context, ownerID int64) (*storage.InsightCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counters, ok := m.insights[ownerID]
	if !ok {
		return nil, nil
	}
	return &counters, nil
}

// Verify Memory implements Store at compile time.
var _ storage.Store = (*Memory)(nil)
