package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

// Client provides methods to interact with the GitHub API.
// Every call is authenticated with an installation token minted for the
// current run; the client itself holds no credentials.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new GitHub API client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
	}
}

// SetBaseURL overrides the GitHub API base URL (GitHub Enterprise, tests).
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

func (c *Client) do(req *http.Request, token string, accept string) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", accept)
	return c.httpClient.Do(req)
}

// FetchDiff fetches the unified diff for a pull request.
func (c *Client) FetchDiff(ctx context.Context, token, owner, repo string, prNumber int) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, owner, repo, prNumber)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req, token, "application/vnd.github.diff")
	if err != nil {
		return "", fmt.Errorf("failed to fetch diff: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to fetch diff: status %d, body: %s", resp.StatusCode, string(body))
	}

	diff, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read diff: %w", err)
	}

	return string(diff), nil
}

// ListPullRequestFiles fetches the list of files changed in a pull request,
// following pagination so large pull requests are not truncated.
func (c *Client) ListPullRequestFiles(ctx context.Context, token, owner, repo string, prNumber int) ([]PullRequestFile, error) {
	const perPage = 100

	var files []PullRequestFile
	for page := 1; ; page++ {
		batch, err := c.listFilesPage(ctx, token, owner, repo, prNumber, perPage, page)
		if err != nil {
			return nil, err
		}

		files = append(files, batch...)
		if len(batch) < perPage {
			return files, nil
		}
	}
}

func (c *Client) listFilesPage(ctx context.Context, token, owner, repo string, prNumber, perPage, page int) ([]PullRequestFile, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d", c.baseURL, owner, repo, prNumber, perPage, page)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req, token, "application/vnd.github+json")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch files: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to fetch files: status %d, body: %s", resp.StatusCode, string(body))
	}

	var batch []PullRequestFile
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to decode files: %w", err)
	}

	return batch, nil
}

// FetchRawFile fetches a file's raw content from its contents URL.
// Falls back to decoding a base64 contents response when the server ignores
// the raw media type.
func (c *Client) FetchRawFile(ctx context.Context, token, contentsURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", contentsURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req, token, "application/vnd.github.v3.raw")
	if err != nil {
		return "", fmt.Errorf("failed to fetch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to fetch file: status %d, body: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var content FileContent
		if err := json.Unmarshal(body, &content); err == nil && content.Encoding == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(content.Content)
			if err != nil {
				return "", fmt.Errorf("failed to decode base64 content: %w", err)
			}
			return string(decoded), nil
		}
	}

	return string(body), nil
}

// checkRunRequest is the create/update body for a check run.
type checkRunRequest struct {
	Name       string          `json:"name"`
	HeadSHA    string          `json:"head_sha,omitempty"`
	Status     string          `json:"status"`
	Conclusion string          `json:"conclusion,omitempty"`
	Output     *CheckRunOutput `json:"output,omitempty"`
}

// CreateCheckRun opens an in_progress check run for the given commit and
// returns its id.
func (c *Client) CreateCheckRun(ctx context.Context, token, owner, repo, name, headSHA string) (int64, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/check-runs", c.baseURL, owner, repo)

	body, err := json.Marshal(checkRunRequest{
		Name:    name,
		HeadSHA: headSHA,
		Status:  "in_progress",
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal check run: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, token, "application/vnd.github+json")
	if err != nil {
		return 0, fmt.Errorf("failed to create check run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("failed to create check run: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var created CheckRun
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("failed to decode check run response: %w", err)
	}

	return created.ID, nil
}

// CompleteCheckRun transitions a check run to completed with a conclusion
// and optional output.
func (c *Client) CompleteCheckRun(ctx context.Context, token, owner, repo string, checkRunID int64, conclusion string, output *CheckRunOutput) error {
	url := fmt.Sprintf("%s/repos/%s/%s/check-runs/%d", c.baseURL, owner, repo, checkRunID)

	body, err := json.Marshal(checkRunRequest{
		Status:     "completed",
		Conclusion: conclusion,
		Output:     output,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal check run update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PATCH", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, token, "application/vnd.github+json")
	if err != nil {
		return fmt.Errorf("failed to complete check run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to complete check run: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// commentRequest is the body for creating or editing a PR comment.
type commentRequest struct {
	Body     string `json:"body"`
	CommitID string `json:"commit_id,omitempty"`
}

// CreateComment posts a comment to a pull request's comments URL and returns
// the created comment id.
func (c *Client) CreateComment(ctx context.Context, token, commentsURL, body, commitID string) (int64, error) {
	reqBody, err := json.Marshal(commentRequest{Body: body, CommitID: commitID})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal comment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", commentsURL, bytes.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, token, "application/vnd.github+json")
	if err != nil {
		return 0, fmt.Errorf("failed to create comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("failed to create comment: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var comment IssueComment
	if err := json.NewDecoder(resp.Body).Decode(&comment); err != nil {
		return 0, fmt.Errorf("failed to decode comment response: %w", err)
	}

	return comment.ID, nil
}

// UpdateComment edits an existing issue comment in place.
func (c *Client) UpdateComment(ctx context.Context, token, owner, repo string, commentID int64, body string) error {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/comments/%d", c.baseURL, owner, repo, commentID)

	reqBody, err := json.Marshal(commentRequest{Body: body})
	if err != nil {
		return fmt.Errorf("failed to marshal comment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PATCH", url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, token, "application/vnd.github+json")
	if err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to update comment: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
