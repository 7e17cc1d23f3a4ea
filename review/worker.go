package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reviewloop/reviewloop/ai"
	"github.com/reviewloop/reviewloop/github"
	"github.com/reviewloop/reviewloop/storage"
)

// fileOutcome is the result of one per-file worker.
type fileOutcome struct {
	Path            string
	Conclusion      string
	Recorded        bool
	Failed          bool
	AlreadyReviewed bool
}

// reviewFile runs the per-file pipeline: idempotency check, placeholder
// comment, content fetch, model invocation, comment edit, record persist.
// Every step's failure is absorbed here; one bad file must never stop the
// others or the run.
func (o *Orchestrator) reviewFile(ctx context.Context, token string, input *RunInput, file github.PullRequestFile, prDiff string) fileOutcome {
	logger := o.logger.With(
		"owner", input.Owner,
		"repo", input.Repo,
		"pr", input.PRNumber,
		"path", file.Filename,
	)

	outcome := fileOutcome{Path: file.Filename, Conclusion: ai.ConclusionNeutral}

	reviewID := RecordID(input.PRID, file.Filename)
	exists, err := o.store.HasReviewRecord(ctx, reviewID)
	if err != nil {
		logger.Warn("per-file idempotency check failed, proceeding", "error", err)
	} else if exists {
		logger.Info("file already reviewed, skipping")
		outcome.AlreadyReviewed = true
		return outcome
	}

	// Placeholder first: its id lets the final review land as an in-place
	// edit instead of a second comment.
	placeholder := fmt.Sprintf("Analyzing `%s`...", file.Filename)
	commentID, err := o.gh.CreateComment(ctx, token, input.CommentsURL, placeholder, input.HeadSHA)
	if err != nil {
		logger.Warn("failed to post placeholder comment", "error", err)
		commentID = 0
	}

	verdict := o.reviewVerdict(ctx, logger, token, file, prDiff)
	outcome.Conclusion = verdict.Conclusion

	body := formatReviewComment(file.Filename, verdict)
	if commentID != 0 {
		if err := o.gh.UpdateComment(ctx, token, input.Owner, input.Repo, commentID, body); err != nil {
			logger.Error("failed to update review comment", "error", err, "comment_id", commentID)
		}
	} else {
		if _, err := o.gh.CreateComment(ctx, token, input.CommentsURL, body, input.HeadSHA); err != nil {
			logger.Error("failed to post review comment", "error", err)
		}
	}

	record := &storage.ReviewRecord{
		ReviewID: reviewID,
		RepoID:   input.RepoID,
		OwnerID:  input.OwnerID,
		PRNumber: input.PRNumber,
		Path:     file.Filename,
		Comment:  verdict.Comment,
		Rating:   verdict.Rating,
	}

	inserted, err := o.store.CreateReviewRecord(ctx, record)
	if err != nil {
		// Losing the record breaks the idempotency invariant, so retry once
		// before counting the file as failed.
		inserted, err = o.store.CreateReviewRecord(ctx, record)
	}
	if err != nil {
		logger.Error("failed to persist review record", "error", err, "review_id", reviewID)
		outcome.Failed = true
		return outcome
	}
	if !inserted {
		// A concurrent delivery won the insert race; the invariant holds.
		logger.Info("review record already present", "review_id", reviewID)
		outcome.AlreadyReviewed = true
		return outcome
	}

	outcome.Recorded = true
	if verdict.Fallback {
		outcome.Failed = true
	}
	return outcome
}

// reviewVerdict gathers the file's material and invokes the model. Content
// fetch failures degrade to the fixed fallback verdict.
func (o *Orchestrator) reviewVerdict(ctx context.Context, logger *slog.Logger, token string, file github.PullRequestFile, prDiff string) ai.Verdict {
	content, err := o.gh.FetchRawFile(ctx, token, file.ContentsURL)
	if err != nil {
		logger.Warn("failed to fetch file content", "error", err)
		return ai.FallbackVerdict(fmt.Sprintf("content fetch failed: %v", err))
	}

	return o.invoker.Review(ctx, &ai.FileInput{
		Path:    file.Filename,
		Patch:   file.Patch,
		PRDiff:  prDiff,
		Content: content,
	})
}

// formatReviewComment renders the final comment body for one file.
func formatReviewComment(path string, v ai.Verdict) string {
	return fmt.Sprintf("### AI Review: `%s`\n\n%s\n\n**Rating:** %d/5", path, v.Comment, v.Rating)
}
