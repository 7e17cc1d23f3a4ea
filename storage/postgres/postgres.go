// Package postgres provides a PostgreSQL implementation of the storage interface.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/reviewloop/reviewloop/storage"
)

// PostgreSQL provides storage operations using PostgreSQL.
type PostgreSQL struct {
	db *sql.DB
}

// New creates a new PostgreSQL storage instance.
func New(db *sql.DB) *PostgreSQL {
	return &PostgreSQL{db: db}
}

// NewFromDSN creates a new PostgreSQL storage instance from a connection string.
func NewFromDSN(dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PostgreSQL{db: db}, nil
}

// Close closes the database connection.
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

// Migrate creates the required database tables.
func (p *PostgreSQL) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS repos (
			repo_id BIGINT PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			url TEXT,
			review_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_repos_owner ON repos(owner_id);

		CREATE TABLE IF NOT EXISTS reviews (
			review_id TEXT PRIMARY KEY,
			repo_id BIGINT NOT NULL,
			owner_id BIGINT NOT NULL,
			pr_number INTEGER NOT NULL,
			path TEXT NOT NULL,
			comment TEXT,
			rating INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_reviews_pr ON reviews(repo_id, pr_number);

		CREATE TABLE IF NOT EXISTS insights (
			owner_id BIGINT PRIMARY KEY,
			total_reviews BIGINT NOT NULL DEFAULT 0,
			total_prs BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`

	_, err := p.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// GetRepoPolicy retrieves the review policy for a repository.
// Returns (nil, nil) if the repository is unknown.
func (p *PostgreSQL) GetRepoPolicy(ctx context.Context, repoID int64) (*storage.RepoPolicy, error) {
	query := `
		SELECT repo_id, owner_id, name, url, review_enabled
		FROM repos
		WHERE repo_id = $1
	`

	var policy storage.RepoPolicy
	var url sql.NullString

	err := p.db.QueryRowContext(ctx, query, repoID).Scan(
		&policy.RepoID,
		&policy.OwnerID,
		&policy.Name,
		&url,
		&policy.ReviewEnabled,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repo policy: %w", err)
	}

	policy.URL = url.String
	return &policy, nil
}

// UpsertRepoPolicies stores repository policies, updating existing rows.
func (p *PostgreSQL) UpsertRepoPolicies(ctx context.Context, policies []storage.RepoPolicy) error {
	if len(policies) == 0 {
		return nil
	}

	query := `
		INSERT INTO repos (repo_id, owner_id, name, url, review_enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (repo_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			updated_at = NOW()
	`

	for _, policy := range policies {
		_, err := p.db.ExecContext(ctx, query,
			policy.RepoID,
			policy.OwnerID,
			policy.Name,
			policy.URL,
			policy.ReviewEnabled,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert repo policy: %w", err)
		}
	}

	return nil
}

// SetReviewEnabled toggles automated review for a repository.
func (p *PostgreSQL) SetReviewEnabled(ctx context.Context, repoID int64, enabled bool) error {
	query := `UPDATE repos SET review_enabled = $2, updated_at = NOW() WHERE repo_id = $1`

	_, err := p.db.ExecContext(ctx, query, repoID, enabled)
	if err != nil {
		return fmt.Errorf("failed to set review enabled: %w", err)
	}

	return nil
}

// DeleteRepoPolicy removes a repository policy.
func (p *PostgreSQL) DeleteRepoPolicy(ctx context.Context, repoID int64) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM repos WHERE repo_id = $1`, repoID)
	if err != nil {
		return fmt.Errorf("failed to delete repo policy: %w", err)
	}

	return nil
}

// DeleteRepoPoliciesForOwner removes all repository policies for an owner.
func (p *PostgreSQL) DeleteRepoPoliciesForOwner(ctx context.Context, ownerID int64) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM repos WHERE owner_id = $1`, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete repo policies for owner: %w", err)
	}

	return nil
}

// CreateReviewRecord inserts a review record if none exists for its ReviewID.
// Returns false when the record was already present.
func (p *PostgreSQL) CreateReviewRecord(ctx context.Context, rec *storage.ReviewRecord) (bool, error) {
	query := `
		INSERT INTO reviews (review_id, repo_id, owner_id, pr_number, path, comment, rating, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (review_id) DO NOTHING
	`

	result, err := p.db.ExecContext(ctx, query,
		rec.ReviewID,
		rec.RepoID,
		rec.OwnerID,
		rec.PRNumber,
		rec.Path,
		rec.Comment,
		rec.Rating,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create review record: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return inserted > 0, nil
}

// HasReviewRecord reports whether a review record exists for the given id.
func (p *PostgreSQL) HasReviewRecord(ctx context.Context, reviewID string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM reviews WHERE review_id = $1)`, reviewID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check review record: %w", err)
	}

	return exists, nil
}

// HasReviewsForPR reports whether any review record exists for a pull request.
func (p *PostgreSQL) HasReviewsForPR(ctx context.Context, repoID int64, prNumber int) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM reviews WHERE repo_id = $1 AND pr_number = $2)`,
		repoID, prNumber,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reviews for PR: %w", err)
	}

	return exists, nil
}

// IncrementInsights adds the deltas to an owner's counters, creating the row
// with the delta values if absent.
func (p *PostgreSQL) IncrementInsights(ctx context.Context, ownerID int64, reviews, prs int64) error {
	query := `
		INSERT INTO insights (owner_id, total_reviews, total_prs, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (owner_id) DO UPDATE SET
			total_reviews = insights.total_reviews + EXCLUDED.total_reviews,
			total_prs = insights.total_prs + EXCLUDED.total_prs,
			updated_at = NOW()
	`

	_, err := p.db.ExecContext(ctx, query, ownerID, reviews, prs)
	if err != nil {
		return fmt.Errorf("failed to increment insights: %w", err)
	}

	return nil
}

// GetInsights retrieves an owner's aggregate counters.
// Returns (nil, nil) if no counters exist for the owner.
func (p *PostgreSQL) GetInsights(ctx context.Context, ownerID int64) (*storage.InsightCounters, error) {
	query := `SELECT owner_id, total_reviews, total_prs FROM insights WHERE owner_id = $1`

	var counters storage.InsightCounters
	err := p.db.QueryRowContext(ctx, query, ownerID).Scan(
		&counters.OwnerID,
		&counters.TotalReviews,
		&counters.TotalPRs,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insights: %w", err)
	}

	return &counters, nil
}

// Verify PostgreSQL implements Store at compile time.
var _ storage.Store = (*PostgreSQL)(nil)
