// Package main provides a local development server for testing webhooks.
//
// It runs the same pipeline as the production server but stores everything
// in memory: repositories are auto-enrolled on the first pull_request
// delivery, so a smee/ngrok tunnel plus a test repo is all that is needed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/reviewloop/reviewloop/ai"
	"github.com/reviewloop/reviewloop/config"
	"github.com/reviewloop/reviewloop/github"
	"github.com/reviewloop/reviewloop/review"
	"github.com/reviewloop/reviewloop/storage"
	"github.com/reviewloop/reviewloop/storage/memory"
)

var (
	logger         *slog.Logger
	webhookHandler *github.WebhookHandler
	orchestrator   *review.Orchestrator
	store          *memory.Memory
	runTimeout     time.Duration
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := initialize(); err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	http.HandleFunc("/webhooks/github", handleWebhook)
	http.HandleFunc("/health", handleHealth)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info("starting local server", "port", port)
	logger.Info("webhook endpoint", "url", fmt.Sprintf("http://localhost:%s/webhooks/github", port))

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func initialize() error {
	webhookSecret := os.Getenv("GITHUB_WEBHOOK_SECRET")
	if webhookSecret == "" {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRET is required")
	}

	privateKeyPath := os.Getenv("GITHUB_PRIVATE_KEY_PATH")
	if privateKeyPath == "" {
		return fmt.Errorf("GITHUB_PRIVATE_KEY_PATH is required")
	}

	privateKey, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return fmt.Errorf("failed to read private key from %s: %w", privateKeyPath, err)
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}

	appIDStr := os.Getenv("GITHUB_APP_ID")
	if appIDStr == "" {
		return fmt.Errorf("GITHUB_APP_ID is required")
	}

	appID, err := strconv.ParseInt(appIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
	}

	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = config.DefaultModel
	}

	runTimeout = config.DefaultRunTimeout
	if v := os.Getenv("RUN_TIMEOUT"); v != "" {
		runTimeout, err = time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RUN_TIMEOUT: %w", err)
		}
	}

	tokens, err := github.NewTokenSource(appID, privateKey)
	if err != nil {
		return err
	}

	webhookHandler = github.NewWebhookHandler(webhookSecret)
	githubClient := github.NewClient()
	invoker := ai.NewInvoker(apiKey, model, logger)

	// No database in local mode
	store = memory.New()

	orchestrator = review.NewOrchestrator(githubClient, tokens, invoker, store, logger, review.Options{})

	logger.Info("initialized", "app_id", appID, "model", model)
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "" {
		http.Error(w, "missing X-GitHub-Event header", http.StatusBadRequest)
		return
	}

	logger.Info("received webhook", "event", eventType, "size", len(payload))

	signature := r.Header.Get("X-Hub-Signature-256")
	if err := webhookHandler.VerifySignature(payload, signature); err != nil {
		logger.Error("signature verification failed", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	if eventType == "ping" {
		logger.Info("received ping")
		jsonResponse(w, http.StatusOK, map[string]string{"message": "pong"})
		return
	}

	if eventType != "pull_request" {
		logger.Info("ignoring event", "type", eventType)
		jsonResponse(w, http.StatusOK, map[string]string{"message": "event ignored"})
		return
	}

	event, err := webhookHandler.ParsePullRequestEvent(payload)
	if err != nil {
		logger.Error("failed to parse event", "error", err)
		http.Error(w, "failed to parse event", http.StatusBadRequest)
		return
	}

	if !webhookHandler.ShouldProcess(eventType, event) {
		logger.Info("skipping event", "action", event.Action)
		jsonResponse(w, http.StatusOK, map[string]string{"message": "event skipped"})
		return
	}

	// Auto-enroll the repo so the policy gate passes in local mode.
	policy := storage.RepoPolicy{
		RepoID:        event.Repository.ID,
		OwnerID:       event.Repository.Owner.ID,
		Name:          event.Repository.FullName,
		URL:           event.Repository.HTMLURL,
		ReviewEnabled: true,
	}
	if err := store.UpsertRepoPolicies(r.Context(), []storage.RepoPolicy{policy}); err != nil {
		logger.Error("failed to enroll repo", "error", err)
	}

	logger.Info("processing PR",
		"repo", event.Repository.FullName,
		"pr", event.PullRequest.Number,
		"action", event.Action,
	)

	input := review.RunInputFromEvent(event)

	// Gate phase runs synchronously so a failed token mint or file list
	// answers 5xx and the delivery is redelivered.
	prepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prep, skipped, err := orchestrator.Prepare(prepCtx, input)
	if err != nil {
		logger.Error("review preparation failed", "error", err)
		http.Error(w, "failed to start review", http.StatusInternalServerError)
		return
	}
	if skipped != nil {
		jsonResponse(w, http.StatusOK, map[string]string{
			"message": "review skipped",
			"status":  skipped.Status,
		})
		return
	}

	// Respond immediately to GitHub, then review async
	jsonResponse(w, http.StatusOK, map[string]string{"message": "review started"})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		result, err := orchestrator.Execute(ctx, prep)
		if err != nil {
			logger.Error("review run failed", "error", err)
			return
		}

		logger.Info("review run done",
			"status", result.Status,
			"conclusion", result.Conclusion,
			"reviewed", result.ReviewedFiles,
		)
	}()
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
