package review

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/reviewloop/reviewloop/ai"
	"github.com/reviewloop/reviewloop/github"
	"github.com/reviewloop/reviewloop/storage"
	"github.com/reviewloop/reviewloop/storage/memory"
)

// fakeGitHub records pipeline calls and serves canned responses. It is
// safe for the concurrent per-file workers.
type fakeGitHub struct {
	mu sync.Mutex

	files []github.PullRequestFile
	diff  string

	listErr    error
	createErr  error
	contentErr error

	checkRunsOpened  int
	completedWith    []string
	completedSummary string
	comments         map[int64]string
	nextCommentID    int64
	tokensSeen       map[string]struct{}
}

func newFakeGitHub(files []github.PullRequestFile) *fakeGitHub {
	return &fakeGitHub{
		files:         files,
		comments:      make(map[int64]string),
		nextCommentID: 100,
		tokensSeen:    make(map[string]struct{}),
	}
}

func (f *fakeGitHub) seeToken(token string) {
	f.tokensSeen[token] = struct{}{}
}

func (f *fakeGitHub) FetchDiff(ctx context.Context, token, owner, repo string, prNumber int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeToken(token)
	return f.diff, nil
}

func (f *fakeGitHub) ListPullRequestFiles(ctx context.Context, token, owner, repo string, prNumber int) ([]github.PullRequestFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeToken(token)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.files, nil
}

func (f *fakeGitHub) FetchRawFile(ctx context.Context, token, contentsURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeToken(token)
	if f.contentErr != nil {
		return "", f.contentErr
	}
	return "file content for " + contentsURL, nil
}

func (f *fakeGitHub) CreateCheckRun(ctx context.Context, token, owner, repo, name, headSHA string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeToken(token)
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.checkRunsOpened++
	return 314, nil
}

func (f *fakeGitHub) CompleteCheckRun(ctx context.Context, token, owner, repo string, checkRunID int64, conclusion string, output *github.CheckRunOutput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedWith = append(f.completedWith, conclusion)
	if output != nil {
		f.completedSummary = output.Summary
	}
	return nil
}

func (f *fakeGitHub) CreateComment(ctx context.Context, token, commentsURL, body, commitID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCommentID++
	f.comments[f.nextCommentID] = body
	return f.nextCommentID, nil
}

func (f *fakeGitHub) UpdateComment(ctx context.Context, token, owner, repo string, commentID int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.comments[commentID]; !ok {
		return fmt.Errorf("no comment %d", commentID)
	}
	f.comments[commentID] = body
	return nil
}

func (f *fakeGitHub) commentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var bodies []string
	for _, body := range f.comments {
		bodies = append(bodies, body)
	}
	return bodies
}

type fakeTokens struct {
	mu    sync.Mutex
	mints int
	err   error
}

func (f *fakeTokens) Token(ctx context.Context, installationID int64) (github.InstallationToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return github.InstallationToken{}, f.err
	}
	f.mints++
	return github.InstallationToken{Value: fmt.Sprintf("ghs_test%d", installationID)}, nil
}

// fakeInvoker returns per-path verdicts, defaulting to a success review.
type fakeInvoker struct {
	mu       sync.Mutex
	verdicts map[string]ai.Verdict
	reviewed []string
	inputs   []*ai.FileInput
}

func (f *fakeInvoker) Review(ctx context.Context, in *ai.FileInput) ai.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviewed = append(f.reviewed, in.Path)
	f.inputs = append(f.inputs, in)
	if v, ok := f.verdicts[in.Path]; ok {
		return v
	}
	return ai.Verdict{Comment: "Looks good.", Conclusion: ai.ConclusionSuccess, Rating: 4}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedPolicy(t *testing.T, store storage.Store, repoID, ownerID int64, enabled bool) {
	t.Helper()
	err := store.UpsertRepoPolicies(context.Background(), []storage.RepoPolicy{{
		RepoID:        repoID,
		OwnerID:       ownerID,
		Name:          "octocat/hello",
		ReviewEnabled: true,
	}})
	if err != nil {
		t.Fatalf("failed to seed policy: %v", err)
	}
	if !enabled {
		if err := store.SetReviewEnabled(context.Background(), repoID, false); err != nil {
			t.Fatalf("failed to disable policy: %v", err)
		}
	}
}

func testInput() *RunInput {
	return &RunInput{
		Action:         "opened",
		InstallationID: 555,
		RepoID:         7,
		OwnerID:        3,
		Owner:          "octocat",
		Repo:           "hello",
		PRID:           9001,
		PRNumber:       42,
		HeadSHA:        "abc123",
		CommentsURL:    "https://api.github.com/repos/octocat/hello/issues/42/comments",
	}
}

func TestRunUnknownRepo(t *testing.T) {
	gh := newFakeGitHub(nil)
	tokens := &fakeTokens{}
	store := memory.New()

	o := NewOrchestrator(gh, tokens, &fakeInvoker{}, store, testLogger(), Options{})

	result, err := o.Run(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}
	if result.Status != StatusRepoUnknown {
		t.Errorf("Status = %q, want %q", result.Status, StatusRepoUnknown)
	}
	if tokens.mints != 0 {
		t.Errorf("tokens minted = %d, want 0 for gated run", tokens.mints)
	}
	if gh.checkRunsOpened != 0 {
		t.Errorf("check runs opened = %d, want 0", gh.checkRunsOpened)
	}
}

func TestRunReviewDisabled(t *testing.T) {
	gh := newFakeGitHub(nil)
	tokens := &fakeTokens{}
	store := memory.New()
	seedPolicy(t, store, 7, 3, false)

	o := NewOrchestrator(gh, tokens, &fakeInvoker{}, store, testLogger(), Options{})

	result, err := o.Run(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}
	if result.Status != StatusReviewDisabled {
		t.Errorf("Status = %q, want %q", result.Status, StatusReviewDisabled)
	}
	if tokens.mints != 0 {
		t.Errorf("tokens minted = %d, want 0 for disabled repo", tokens.mints)
	}
}

func TestRunHappyPath(t *testing.T) {
	files := []github.PullRequestFile{
		{Filename: "src/server.ts", Status: "modified", Patch: "@@ -1 +1 @@", ContentsURL: "https://x/server.ts"},
		{Filename: "src/db.ts", Status: "added", Patch: "@@ -0,0 +1 @@", ContentsURL: "https://x/db.ts"},
		{Filename: "yarn.lock", Status: "modified", Patch: "@@"},
	}
	gh := newFakeGitHub(files)
	tokens := &fakeTokens{}
	invoker := &fakeInvoker{}
	store := memory.New()
	seedPolicy(t, store, 7, 3, true)

	o := NewOrchestrator(gh, tokens, invoker, store, testLogger(), Options{})

	result, err := o.Run(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}

	if result.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", result.Status, StatusCompleted)
	}
	if result.Conclusion != ai.ConclusionSuccess {
		t.Errorf("Conclusion = %q, want success", result.Conclusion)
	}
	if result.ReviewedFiles != 2 {
		t.Errorf("ReviewedFiles = %d, want 2", result.ReviewedFiles)
	}
	if result.SkippedFiles != 1 {
		t.Errorf("SkippedFiles = %d, want 1", result.SkippedFiles)
	}

	if gh.checkRunsOpened != 1 {
		t.Errorf("check runs opened = %d, want 1", gh.checkRunsOpened)
	}
	if len(gh.completedWith) != 1 || gh.completedWith[0] != ai.ConclusionSuccess {
		t.Errorf("check run completions = %v, want one success", gh.completedWith)
	}
	if !strings.Contains(gh.completedSummary, "yarn.lock") {
		t.Errorf("summary %q should list the skipped file", gh.completedSummary)
	}

	// Each reviewed file ends with exactly one comment, edited in place.
	bodies := gh.commentBodies()
	if len(bodies) != 2 {
		t.Fatalf("comments = %d, want 2", len(bodies))
	}
	for _, body := range bodies {
		if !strings.Contains(body, "### AI Review:") || !strings.Contains(body, "**Rating:** 4/5") {
			t.Errorf("comment body %q not the final review", body)
		}
	}

	// Records and counters persisted.
	for _, path := range []string{"src/server.ts", "src/db.ts"} {
		exists, err := store.HasReviewRecord(context.Background(), RecordID(9001, path))
		if err != nil || !exists {
			t.Errorf("review record for %s missing (exists=%v, err=%v)", path, exists, err)
		}
	}
	insights, err := store.GetInsights(context.Background(), 3)
	if err != nil || insights == nil {
		t.Fatalf("GetInsights() = %v, %v", insights, err)
	}
	if insights.TotalReviews != 2 || insights.TotalPRs != 1 {
		t.Errorf("insights = %+v, want 2 reviews / 1 PR", insights)
	}
}

func TestRunAlreadyReviewedFastPath(t *testing.T) {
	gh := newFakeGitHub([]github.PullRequestFile{
		{Filename: "src/server.ts", Status: "modified", Patch: "@@"},
	})
	tokens := &fakeTokens{}
	store := memory.New()
	seedPolicy(t, store, 7, 3, true)

	// A record from a previous delivery of this PR.
	_, err := store.CreateReviewRecord(context.Background(), &storage.ReviewRecord{
		ReviewID: RecordID(9001, "src/server.ts"),
		RepoID:   7,
		OwnerID:  3,
		PRNumber: 42,
		Path:     "src/server.ts",
	})
	if err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}

	o := NewOrchestrator(gh, tokens, &fakeInvoker{}, store, testLogger(), Options{})

	result, err := o.Run(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}
	if result.Status != StatusAlreadyReviewed {
		t.Errorf("Status = %q, want %q", result.Status, StatusAlreadyReviewed)
	}
	if tokens.mints != 0 {
		t.Errorf("tokens minted = %d, want 0 for duplicate delivery", tokens.mints)
	}
}

func TestRunSynchronizeSkipsOnlyReviewedFiles(t *testing.T) {
	files := []github.PullRequestFile{
		{Filename: "src/server.ts", Status: "modified", Patch: "@@", ContentsURL: "https://x/server.ts"},
		{Filename: "src/new.ts", Status: "added", Patch: "@@", ContentsURL: "https://x/new.ts"},
	}
	gh := newFakeGitHub(files)
	invoker := &fakeInvoker{}
	store := memory.New()
	seedPolicy(t, store, 7, 3, true)

	// server.ts was reviewed on the previous head.
	_, err := store.CreateReviewRecord(context.Background(), &storage.ReviewRecord{
		ReviewID: RecordID(9001, "src/server.ts"),
		RepoID:   7,
		OwnerID:  3,
		PRNumber: 42,
		Path:     "src/server.ts",
	})
	if err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}

	o := NewOrchestrator(gh, &fakeTokens{}, invoker, store, testLogger(), Options{})

	input := testInput()
	input.Action = "synchronize"

	result, err := o.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed despite prior records", result.Status)
	}
	if result.ReviewedFiles != 1 {
		t.Errorf("ReviewedFiles = %d, want 1 (only the new file)", result.ReviewedFiles)
	}
	if result.SkippedFiles != 1 {
		t.Errorf("SkippedFiles = %d, want 1 (the already reviewed file)", result.SkippedFiles)
	}
	if len(invoker.reviewed) != 1 || invoker.reviewed[0] != "src/new.ts" {
		t.Errorf("invoked for %v, want only src/new.ts", invoker.reviewed)
	}
}

func TestRunFailureVerdictFailsRun(t *testing.T) {
	files := []github.PullRequestFile{
		{Filename: "src/ok.ts", Status: "modified", Patch: "@@", ContentsURL: "https://x/ok.ts"},
		{Filename: "src/bad.ts", Status: "modified", Patch: "@@", ContentsURL: "https://x/bad.ts"},
	}
	gh := newFakeGitHub(files)
	invoker := &fakeInvoker{verdicts: map[string]ai.Verdict{
		"src/bad.ts": {Comment: "SQL injection.", Conclusion: ai.ConclusionFailure, Rating: 1},
	}}
	store := memory.New()
	seedPolicy(t, store, 7, 3, true)

	o := NewOrchestrator(gh, &fakeTokens{}, invoker, store, testLogger(), Options{})

	result, err := o.Run(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}
	if result.Conclusion != ai.ConclusionFailure {
		t.Errorf("Conclusion = %q, want failure when any file fails", result.Conclusion)
	}
	if result.ReviewedFiles != 2 {
		t.Errorf("ReviewedFiles = %d, want 2 (failure verdicts still record)", result.ReviewedFiles)
	}
	if len(gh.completedWith) != 1 || gh.completedWith[0] != ai.ConclusionFailure {
		t.Errorf("check run completions = %v, want one failure", gh.completedWith)
	}
}

func TestRunFallbackVerdictStillPostsAndRecords(t *testing.T) {
	files := []github.PullRequestFile{
		{Filename: "src/flaky.ts", Status: "modified", Patch: "@@", ContentsURL: "https://x/flaky.ts"},
	}
	gh := newFakeGitHub(files)
	invoker := &fakeInvoker{verdicts: map[string]ai.Verdict{
		"src/flaky.ts": ai.FallbackVerdict("model invocation failed: timeout"),
	}}
	store := memory.New()
	seedPolicy(t, store, 7, 3, true)

	o := NewOrchestrator(gh, &fakeTokens{}, invoker, store, testLogger(), Options{})

	result, err := o.Run(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}

	// A neutral fallback does not fail the run, but it counts as a file
	// that could not be fully processed.
	if result.Conclusion != ai.ConclusionSuccess {
		t.Errorf("Conclusion = %q, want success", result.Conclusion)
	}
	if result.ReviewedFiles != 1 || result.FailedFiles != 1 {
		t.Errorf("result = %+v, want 1 reviewed / 1 failed", result)
	}

	bodies := gh.commentBodies()
	if len(bodies) != 1 || !strings.Contains(bodies[0], ai.FallbackComment) {
		t.Errorf("comments = %v, want one fallback review", bodies)
	}

	exists, err := store.HasReviewRecord(context.Background(), RecordID(9001, "src/flaky.ts"))
	if err != nil || !exists {
		t.Errorf("fallback review must still be recorded (exists=%v, err=%v)", exists, err)
	}
}

func TestRunNoReviewableFiles(t *testing.T) {
	files := []github.PullRequestFile{
		{Filename: "logo.png", Status: "added", Patch: "@@"},
		{Filename: "go.sum", Status: "modified", Patch: "@@"},
	}
	gh := newFakeGitHub(files)
	store := memory.New()
	seedPolicy(t, store, 7, 3, true)

	o := NewOrchestrator(gh, &fakeTokens{}, &fakeInvoker{}, store, testLogger(), Options{})

	result, err := o.Run(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}
	if result.Conclusion != ai.ConclusionSuccess {
		t.Errorf("Conclusion = %q, want success for empty selection", result.Conclusion)
	}
	if result.SkippedFiles != 2 {
		t.Errorf("SkippedFiles = %d, want 2", result.SkippedFiles)
	}
	if len(gh.completedWith) != 1 || gh.completedWith[0] != ai.ConclusionSuccess {
		t.Errorf("check run completions = %v, want one success", gh.completedWith)
	}
	if !strings.Contains(gh.completedSummary, "No reviewable files") {
		t.Errorf("summary = %q", gh.completedSummary)
	}

	// The run still counts toward the PR total.
	insights, err := store.GetInsights(context.Background(), 3)
	if err != nil || insights == nil {
		t.Fatalf("GetInsights() = %v, %v", insights, err)
	}
	if insights.TotalReviews != 0 || insights.TotalPRs != 1 {
		t.Errorf("insights = %+v, want 0 reviews / 1 PR", insights)
	}
}

func TestRunListFilesFailure(t *testing.T) {
	gh := newFakeGitHub(nil)
	gh.listErr = fmt.Errorf("boom")
	store := memory.New()
	seedPolicy(t, store, 7, 3, true)

	o := NewOrchestrator(gh, &fakeTokens{}, &fakeInvoker{}, store, testLogger(), Options{})

	_, err := o.Run(context.Background(), testInput())
	if err == nil {
		t.Fatal("Run() expected error when listing files fails")
	}
	if gh.checkRunsOpened != 0 {
		t.Errorf("check runs opened = %d, want 0 before the file list", gh.checkRunsOpened)
	}
}

func TestRunAbortClosesCheckRunWithFailure(t *testing.T) {
	files := []github.PullRequestFile{
		{Filename: "src/server.ts", Status: "modified", Patch: "@@", ContentsURL: "https://x/server.ts"},
	}
	gh := newFakeGitHub(files)
	store := memory.New()
	seedPolicy(t, store, 7, 3, true)

	o := NewOrchestrator(gh, &fakeTokens{}, &fakeInvoker{}, store, testLogger(), Options{})

	// Cancel before the workers start: the run aborts, but the check run
	// must still be closed instead of left in_progress.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, testInput())
	if err == nil {
		t.Fatal("Run() expected error for canceled context")
	}
	if len(gh.completedWith) != 1 || gh.completedWith[0] != ai.ConclusionFailure {
		t.Errorf("check run completions = %v, want one failure close", gh.completedWith)
	}
}

func TestAggregateOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []fileOutcome
		want     RunResult
	}{
		{
			name: "all success",
			outcomes: []fileOutcome{
				{Recorded: true, Conclusion: ai.ConclusionSuccess},
				{Recorded: true, Conclusion: ai.ConclusionSuccess},
			},
			want: RunResult{Status: StatusCompleted, Conclusion: ai.ConclusionSuccess, ReviewedFiles: 2},
		},
		{
			name: "one failure fails the run",
			outcomes: []fileOutcome{
				{Recorded: true, Conclusion: ai.ConclusionSuccess},
				{Recorded: true, Failed: true, Conclusion: ai.ConclusionFailure},
			},
			want: RunResult{Status: StatusCompleted, Conclusion: ai.ConclusionFailure, ReviewedFiles: 2, FailedFiles: 1},
		},
		{
			name: "neutral does not fail the run",
			outcomes: []fileOutcome{
				{Recorded: true, Conclusion: ai.ConclusionNeutral},
			},
			want: RunResult{Status: StatusCompleted, Conclusion: ai.ConclusionSuccess, ReviewedFiles: 1},
		},
		{
			name: "already reviewed counts as skipped",
			outcomes: []fileOutcome{
				{AlreadyReviewed: true, Conclusion: ai.ConclusionNeutral},
				{Recorded: true, Conclusion: ai.ConclusionSuccess},
			},
			want: RunResult{Status: StatusCompleted, Conclusion: ai.ConclusionSuccess, ReviewedFiles: 1, SkippedFiles: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := aggregateOutcomes(tt.outcomes)
			if *got != tt.want {
				t.Errorf("aggregateOutcomes() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestPrepareTokenMintFailure(t *testing.T) {
	gh := newFakeGitHub([]github.PullRequestFile{
		{Filename: "src/server.ts", Status: "modified", Patch: "@@"},
	})
	tokens := &fakeTokens{err: fmt.Errorf("app key rejected")}
	store := memory.New()
	seedPolicy(t, store, 7, 3, true)

	o := NewOrchestrator(gh, tokens, &fakeInvoker{}, store, testLogger(), Options{})

	// The gate phase must surface the failure to the caller so the
	// webhook can answer non-2xx and get the delivery retried.
	prep, result, err := o.Prepare(context.Background(), testInput())
	if err == nil {
		t.Fatal("Prepare() expected error when token mint fails")
	}
	if prep != nil || result != nil {
		t.Errorf("Prepare() = (%v, %v), want nil prep and result on error", prep, result)
	}
	if gh.checkRunsOpened != 0 {
		t.Errorf("check runs opened = %d, want 0", gh.checkRunsOpened)
	}
}

func TestPrepareGatedRuns(t *testing.T) {
	t.Run("unknown repo", func(t *testing.T) {
		o := NewOrchestrator(newFakeGitHub(nil), &fakeTokens{}, &fakeInvoker{}, memory.New(), testLogger(), Options{})

		prep, result, err := o.Prepare(context.Background(), testInput())
		if err != nil {
			t.Fatalf("Prepare() unexpected error = %v", err)
		}
		if prep != nil {
			t.Error("Prepare() returned a prepared run for a gated delivery")
		}
		if result == nil || result.Status != StatusRepoUnknown {
			t.Errorf("result = %+v, want %q", result, StatusRepoUnknown)
		}
	})

	t.Run("reviewable PR", func(t *testing.T) {
		gh := newFakeGitHub([]github.PullRequestFile{
			{Filename: "src/server.ts", Status: "modified", Patch: "@@"},
		})
		store := memory.New()
		seedPolicy(t, store, 7, 3, true)

		o := NewOrchestrator(gh, &fakeTokens{}, &fakeInvoker{}, store, testLogger(), Options{})

		prep, result, err := o.Prepare(context.Background(), testInput())
		if err != nil {
			t.Fatalf("Prepare() unexpected error = %v", err)
		}
		if result != nil {
			t.Errorf("result = %+v, want nil for a reviewable PR", result)
		}
		if prep == nil {
			t.Fatal("Prepare() returned no prepared run")
		}
		if gh.checkRunsOpened != 0 {
			t.Errorf("check runs opened = %d, want 0 before Execute", gh.checkRunsOpened)
		}
	})
}

func TestRunThreadsPRDiffToInvoker(t *testing.T) {
	files := []github.PullRequestFile{
		{Filename: "src/server.ts", Status: "modified", Patch: "@@ -1 +1 @@", ContentsURL: "https://x/server.ts"},
	}
	gh := newFakeGitHub(files)
	gh.diff = "diff --git a/src/server.ts b/src/server.ts\n@@ -1 +1 @@\n-old\n+new"
	invoker := &fakeInvoker{}
	store := memory.New()
	seedPolicy(t, store, 7, 3, true)

	o := NewOrchestrator(gh, &fakeTokens{}, invoker, store, testLogger(), Options{})

	if _, err := o.Run(context.Background(), testInput()); err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}

	if len(invoker.inputs) != 1 {
		t.Fatalf("invoker inputs = %d, want 1", len(invoker.inputs))
	}
	in := invoker.inputs[0]
	if in.PRDiff != gh.diff {
		t.Errorf("PRDiff = %q, want the full pull request diff", in.PRDiff)
	}
	if in.Patch != "@@ -1 +1 @@" {
		t.Errorf("Patch = %q, want the per-file patch", in.Patch)
	}
}
