package review

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reviewloop/reviewloop/github"
)

// checkRunCloseTimeout bounds the completion call made after a run's own
// context may already be dead.
const checkRunCloseTimeout = 30 * time.Second

/// checkRun drives one check run through its lifecycle: created in_progress
// at run start, completed exactly once when the run ends. Complete is safe
// to call more than once; only the first call reaches GitHub.
type checkRun struct {
	gh    GitHubAPI
	token string
	owner string
	repo  string

	id int64

	mu     sync.Mutex
	closed bool
}

// openCheckRun creates an in_progress check run for the head commit.
func openCheckRun(ctx context.Context, gh GitHubAPI, token, owner, repo, name, headSHA string) (*checkRun, error) {
	id, err := gh.CreateCheckRun(ctx, token, owner, repo, name, headSHA)
	if err != nil {
		return nil, fmt.Errorf("failed to open check run: %w", err)
	}

	return &checkRun{
		gh:    gh,
		token: token,
		owner: owner,
		repo:  repo,
		id:    id,
	}, nil
}

// Complete transitions the check run to completed with the given conclusion.
// The call survives cancellation of the run context so a timed-out run still
// gets closed instead of hanging in_progress forever.
func (c *checkRun) Complete(ctx context.Context, conclusion, title, summary string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkRunCloseTimeout)
	defer cancel()

	var output *github.CheckRunOutput
	if title != "" || summary != "" {
		output = &github.CheckRunOutput{Title: title, Summary: summary}
	}

	if err := c.gh.CompleteCheckRun(closeCtx, c.token, c.owner, c.repo, c.id, conclusion, output); err != nil {
		return fmt.Errorf("failed to complete check run: %w", err)
	}

	return nil
}
