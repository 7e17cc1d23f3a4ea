package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/reviewloop/reviewloop/ai"
	"github.com/reviewloop/reviewloop/github"
	"github.com/reviewloop/reviewloop/storage"
)

// GitHubAPI is the subset of the GitHub client the pipeline calls.
type GitHubAPI interface {
	FetchDiff(ctx context.Context, token, owner, repo string, prNumber int) (string, error)
	ListPullRequestFiles(ctx context.Context, token, owner, repo string, prNumber int) ([]github.PullRequestFile, error)
	FetchRawFile(ctx context.Context, token, contentsURL string) (string, error)
	CreateCheckRun(ctx context.Context, token, owner, repo, name, headSHA string) (int64, error)
	CompleteCheckRun(ctx context.Context, token, owner, repo string, checkRunID int64, conclusion string, output *github.CheckRunOutput) error
	CreateComment(ctx context.Context, token, commentsURL, body, commitID string) (int64, error)
	UpdateComment(ctx context.Context, token, owner, repo string, commentID int64, body string) error
}

// TokenProvider mints installation access tokens.
type TokenProvider interface {
	Token(ctx context.Context, installationID int64) (github.InstallationToken, error)
}

// Invoker produces a review verdict for one file.
type Invoker interface {
	Review(ctx context.Context, in *ai.FileInput) ai.Verdict
}

// Compile-time checks that the real implementations satisfy the pipeline's
// interfaces.
var (
	_ GitHubAPI     = (*github.Client)(nil)
	_ TokenProvider = (*github.TokenSource)(nil)
	_ Invoker       = (*ai.Invoker)(nil)
)

// Run statuses reported by the orchestrator.
const (
	StatusCompleted       = "completed"
	StatusRepoUnknown     = "repo_unknown"
	StatusReviewDisabled  = "review_disabled"
	StatusAlreadyReviewed = "already_reviewed"
)

// Options tunes one orchestrator instance.
type Options struct {
	CheckName          string
	MaxPatchBytes      int
	MaxConcurrentFiles int64
	SkipFiles          []string
	SkipSuffixes       []string
}

// Orchestrator drives one webhook delivery through the full review pipeline:
// policy gate, idempotency guard, credential mint, check-run lifecycle, file
// filter, per-file workers, and the insight upsert.
type Orchestrator struct {
	gh      GitHubAPI
	tokens  TokenProvider
	invoker Invoker
	store   storage.Store
	filter  *Filter
	logger  *slog.Logger

	checkName          string
	maxConcurrentFiles int64
}

// NewOrchestrator creates an orchestrator with the given collaborators.
func NewOrchestrator(gh GitHubAPI, tokens TokenProvider, invoker Invoker, store storage.Store, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.CheckName == "" {
		opts.CheckName = "AI Code Review"
	}
	if opts.MaxPatchBytes <= 0 {
		opts.MaxPatchBytes = 20000
	}
	if opts.MaxConcurrentFiles <= 0 {
		opts.MaxConcurrentFiles = 4
	}

	return &Orchestrator{
		gh:                 gh,
		tokens:             tokens,
		invoker:            invoker,
		store:              store,
		filter:             NewFilter(opts.MaxPatchBytes, opts.SkipFiles, opts.SkipSuffixes),
		logger:             logger,
		checkName:          opts.CheckName,
		maxConcurrentFiles: opts.MaxConcurrentFiles,
	}
}

// RunInput is the working set assembled from one pull_request payload.
type RunInput struct {
	Action         string
	InstallationID int64
	RepoID         int64
	OwnerID        int64
	Owner          string
	Repo           string
	PRID           int64
	PRNumber       int
	HeadSHA        string
	CommentsURL    string
}

// RunInputFromEvent extracts the pipeline's working set from a parsed
// pull_request event.
func RunInputFromEvent(event *github.WebhookEvent) *RunInput {
	return &RunInput{
		Action:         event.Action,
		InstallationID: event.Installation.ID,
		RepoID:         event.Repository.ID,
		OwnerID:        event.Repository.Owner.ID,
		Owner:          event.Repository.Owner.Login,
		Repo:           event.Repository.Name,
		PRID:           event.PullRequest.ID,
		PRNumber:       event.PullRequest.Number,
		HeadSHA:        event.PullRequest.Head.SHA,
		CommentsURL:    event.PullRequest.CommentsURL,
	}
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	Status        string
	Conclusion    string
	ReviewedFiles int
	FailedFiles   int
	SkippedFiles  int
}

// Prepared is the working state assembled by Prepare: everything a run
// needs before the check run is opened.
type Prepared struct {
	input *RunInput
	token github.InstallationToken
	files []github.PullRequestFile
}

// Prepare runs the gate phase of the pipeline synchronously: policy read,
// duplicate-delivery fast path, token mint, and the changed-file list. A
// non-nil RunResult means the delivery is a no-op (unknown or disabled
// repo, already reviewed). A returned error is a run-level failure the
// webhook caller must surface as a non-2xx response so GitHub redelivers.
func (o *Orchestrator) Prepare(ctx context.Context, input *RunInput) (*Prepared, *RunResult, error) {
	logger := o.logger.With(
		"owner", input.Owner,
		"repo", input.Repo,
		"pr", input.PRNumber,
	)
	logger.Info("starting review run")

	// Policy gate runs before any token is minted: disabled repositories
	// must not cost external calls.
	policy, err := o.store.GetRepoPolicy(ctx, input.RepoID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load repo policy: %w", err)
	}
	if policy == nil {
		logger.Info("repo unknown, skipping")
		return nil, &RunResult{Status: StatusRepoUnknown}, nil
	}
	if !policy.ReviewEnabled {
		logger.Info("review disabled for repo, skipping")
		return nil, &RunResult{Status: StatusReviewDisabled}, nil
	}

	// PR-level guard is a fast path for redelivered "opened" events; the
	// per-file insert-if-absent in the worker is the real idempotency net,
	// so a guard read failure is not fatal. A "synchronize" delivery always
	// proceeds and lets the per-file guard skip previously reviewed files.
	if input.Action != "synchronize" {
		reviewed, err := o.store.HasReviewsForPR(ctx, input.RepoID, input.PRNumber)
		if err != nil {
			logger.Warn("idempotency pre-check failed, relying on per-file guard", "error", err)
		} else if reviewed {
			logger.Info("pull request already reviewed, skipping")
			return nil, &RunResult{Status: StatusAlreadyReviewed}, nil
		}
	}

	token, err := o.tokens.Token(ctx, input.InstallationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to mint installation token: %w", err)
	}

	files, err := o.gh.ListPullRequestFiles(ctx, token.Value, input.Owner, input.Repo, input.PRNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list pull request files: %w", err)
	}

	return &Prepared{input: input, token: token, files: files}, nil, nil
}

// Run executes the full pipeline for one delivery in a single call.
func (o *Orchestrator) Run(ctx context.Context, input *RunInput) (*RunResult, error) {
	prep, result, err := o.Prepare(ctx, input)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	return o.Execute(ctx, prep)
}

// Execute drives a prepared run through the check-run lifecycle, the
// bounded per-file worker pool, and the insight upsert.
func (o *Orchestrator) Execute(ctx context.Context, prep *Prepared) (*RunResult, error) {
	input := prep.input
	token := prep.token
	files := prep.files

	logger := o.logger.With(
		"owner", input.Owner,
		"repo", input.Repo,
		"pr", input.PRNumber,
	)

	run, err := openCheckRun(ctx, o.gh, token.Value, input.Owner, input.Repo, o.checkName, input.HeadSHA)
	if err != nil {
		return nil, err
	}

	// The check run must never be left in_progress: whatever goes wrong
	// below, close it with failure on the way out.
	defer func() {
		if err := run.Complete(ctx, ai.ConclusionFailure, o.checkName, "Review run aborted unexpectedly."); err != nil {
			logger.Error("failed to close check run after abort", "error", err)
		}
	}()

	selected, skipped := o.filter.Select(files)
	logger.Info("filtered changed files",
		"changed", len(files),
		"selected", len(selected),
		"skipped", len(skipped),
	)

	if len(selected) == 0 {
		summary := emptyRunSummary(files, skipped)
		if err := run.Complete(ctx, ai.ConclusionSuccess, o.checkName, summary); err != nil {
			return nil, err
		}
		o.upsertInsights(ctx, logger, input.OwnerID, 0)
		return &RunResult{
			Status:       StatusCompleted,
			Conclusion:   ai.ConclusionSuccess,
			SkippedFiles: len(skipped),
		}, nil
	}

	// The full unified diff gives each file's review the cross-file context
	// of the whole pull request; a run without it degrades to per-file
	// patches only.
	prDiff, err := o.gh.FetchDiff(ctx, token.Value, input.Owner, input.Repo, input.PRNumber)
	if err != nil {
		logger.Warn("failed to fetch unified diff, reviewing without cross-file context", "error", err)
		prDiff = ""
	}

	outcomes := make([]fileOutcome, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(o.maxConcurrentFiles)

	for i, file := range selected {
		i, file := i, file // capture for goroutine
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			outcomes[i] = o.reviewFile(gctx, token.Value, input, file, prDiff)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Only context cancellation reaches here; per-file failures are
		// absorbed in the worker.
		return nil, fmt.Errorf("review workers aborted: %w", err)
	}

	result := aggregateOutcomes(outcomes)
	result.SkippedFiles += len(skipped)

	summary := runSummary(result, skipped)
	if err := run.Complete(ctx, result.Conclusion, o.checkName, summary); err != nil {
		return nil, err
	}

	// Counters reflect completed runs only, so the upsert happens strictly
	// after the check run is closed.
	o.upsertInsights(ctx, logger, input.OwnerID, int64(result.ReviewedFiles))

	logger.Info("review run finished",
		"conclusion", result.Conclusion,
		"reviewed", result.ReviewedFiles,
		"failed", result.FailedFiles,
		"skipped", result.SkippedFiles,
	)

	return result, nil
}

// aggregateOutcomes folds per-file outcomes into the run result. Any file
// whose verdict concluded failure fails the run; fallback and neutral
// verdicts do not.
func aggregateOutcomes(outcomes []fileOutcome) *RunResult {
	result := &RunResult{
		Status:     StatusCompleted,
		Conclusion: ai.ConclusionSuccess,
	}

	for _, outcome := range outcomes {
		if outcome.AlreadyReviewed {
			result.SkippedFiles++
			continue
		}
		if outcome.Recorded {
			result.ReviewedFiles++
		}
		if outcome.Failed {
			result.FailedFiles++
		}
		if outcome.Conclusion == ai.ConclusionFailure {
			result.Conclusion = ai.ConclusionFailure
		}
	}

	return result
}

// upsertInsights increments the owner's counters, retrying once: losing a
// counter update silently is preferable to failing a completed run, but one
// retry is cheap.
func (o *Orchestrator) upsertInsights(ctx context.Context, logger *slog.Logger, ownerID, reviews int64) {
	err := o.store.IncrementInsights(ctx, ownerID, reviews, 1)
	if err != nil {
		err = o.store.IncrementInsights(ctx, ownerID, reviews, 1)
	}
	if err != nil {
		logger.Error("failed to update insight counters", "error", err, "owner_id", ownerID)
	}
}

// runSummary renders the human-readable check-run summary for a run that
// reviewed at least one file.
func runSummary(result *RunResult, skipped []Skip) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reviewed %d file(s).", result.ReviewedFiles)
	if result.FailedFiles > 0 {
		fmt.Fprintf(&b, " %d file(s) could not be fully processed.", result.FailedFiles)
	}
	if len(skipped) > 0 {
		b.WriteString("\n\nSkipped:\n")
		for _, s := range skipped {
			fmt.Fprintf(&b, "- `%s`: %s\n", s.Filename, s.Reason)
		}
	}
	return b.String()
}

// emptyRunSummary explains why nothing was reviewed.
func emptyRunSummary(files []github.PullRequestFile, skipped []Skip) string {
	if len(files) == 0 {
		return "No changed files in this pull request."
	}

	var b strings.Builder
	b.WriteString("No reviewable files in this pull request.\n\n")
	for _, s := range skipped {
		fmt.Fprintf(&b, "- `%s`: %s\n", s.Filename, s.Reason)
	}
	return b.String()
}
