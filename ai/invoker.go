package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// APITimeout is the maximum time to wait for a model response per file.
	APITimeout = 2 * time.Minute

	// MaxRetries is the number of times to retry transient API failures.
	MaxRetries = 3

	// RetryBaseDelay is the initial delay between retries (doubles each attempt).
	RetryBaseDelay = 1 * time.Second
)

const systemPrompt = `You are a senior software engineer performing a professional code review of exactly one file from a pull request.

Review strictly the code in this file. Ignore unrelated context or code from other files. If the change is trivial (adding log statements, renaming), respond briefly and objectively.

You must respond ONLY with valid JSON in this exact shape:
{
  "comment": "Detailed feedback about this specific file",
  "conclusion": "success" | "failure" | "neutral",
  "rating": 1-5
}

Rules:
1. "conclusion" must be "failure" only for bugs, security issues, or broken logic; "success" when the change is sound; "neutral" otherwise.
2. "rating" is your quality score for the change, 1 (poor) to 5 (excellent).
3. Do not wrap the JSON in markdown fences or add any text outside it.`

const reviewPromptTemplate = `File under review: %s

Git diff for this file:
%s

Full pull request diff for cross-file context (review only the file above):
%s

Full file content for reference:
%s`

// FileInput is one file's material for review. PRDiff carries the whole
// pull request's unified diff so the model sees related changes in other
// files; it may be empty when the diff fetch failed.
type FileInput struct {
	Path    string
	Patch   string
	PRDiff  string
	Content string
}

// Invoker sends per-file review requests to the Anthropic API and
// normalizes the responses. It never fails a caller: any transport, parse,
// or validation failure produces a fallback verdict.
type Invoker struct {
	apiKey string
	model  string
	logger *slog.Logger
}

// NewInvoker creates a review invoker using the given API key and model.
func NewInvoker(apiKey, model string, logger *slog.Logger) *Invoker {
	return &Invoker{
		apiKey: apiKey,
		model:  model,
		logger: logger,
	}
}

// BuildFileReviewPrompt builds the user prompt for one file.
func BuildFileReviewPrompt(in *FileInput) string {
	return fmt.Sprintf(reviewPromptTemplate, in.Path, in.Patch, in.PRDiff, in.Content)
}

// Review reviews one file. The returned verdict is always usable; check
// Verdict.Fallback to distinguish a real review from the degraded result.
func (iv *Invoker) Review(ctx context.Context, in *FileInput) Verdict {
	text, err := iv.callModel(ctx, in)
	if err != nil {
		iv.logger.Warn("model invocation failed, using fallback verdict",
			"path", in.Path,
			"error", err,
		)
		return FallbackVerdict(fmt.Sprintf("model invocation failed: %v", err))
	}

	verdict, err := ParseVerdict(text)
	if err != nil {
		iv.logger.Warn("model response rejected, using fallback verdict",
			"path", in.Path,
			"error", err,
		)
		return FallbackVerdict(fmt.Sprintf("response rejected: %v", err))
	}

	return verdict
}

// callModel performs the Messages API call with timeout and retry.
func (iv *Invoker) callModel(ctx context.Context, in *FileInput) (string, error) {
	client := anthropic.NewClient(option.WithAPIKey(iv.apiKey))

	timeoutCtx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	message, err := retryWithBackoff(timeoutCtx, iv.logger, "review_"+in.Path, func() (*anthropic.Message, error) {
		return client.Messages.New(timeoutCtx, anthropic.MessageNewParams{
			Model:     anthropic.F(anthropic.Model(iv.model)),
			MaxTokens: anthropic.F(int64(2048)),
			System: anthropic.F([]anthropic.TextBlockParam{
				anthropic.NewTextBlock(systemPrompt),
			}),
			Messages: anthropic.F([]anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(BuildFileReviewPrompt(in))),
			}),
		})
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("no text content in model response")
}

// isRetryableError checks if an error is transient and worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// Retry on rate limits, server errors, and network issues
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		errors.Is(err, context.DeadlineExceeded)
}

// retryWithBackoff executes fn with exponential backoff on retryable errors.
func retryWithBackoff[T any](ctx context.Context, logger *slog.Logger, operation string, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}

		if !isRetryableError(lastErr) {
			return result, lastErr
		}

		if attempt < MaxRetries {
			delay := RetryBaseDelay * time.Duration(1<<attempt) // exponential backoff
			logger.Warn("retrying after transient error",
				"operation", operation,
				"attempt", attempt+1,
				"max_attempts", MaxRetries+1,
				"delay", delay,
				"error", lastErr,
			)

			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return result, fmt.Errorf("max retries exceeded for %s: %w", operation, lastErr)
}

// ExtractKeyHint returns the last 4 characters of an API key for display purposes.
func ExtractKeyHint(apiKey string) string {
	if len(apiKey) < 4 {
		return "****"
	}
	return apiKey[len(apiKey)-4:]
}
