// Package main provides the reviewloop webhook server.
//
// Configuration via environment variables:
//
//	GITHUB_APP_ID         - GitHub App ID (required)
//	GITHUB_WEBHOOK_SECRET - Webhook signature verification secret (required)
//	GITHUB_PRIVATE_KEY    - GitHub App private key in PEM format (required)
//	ANTHROPIC_API_KEY     - Anthropic API key (required)
//	DATABASE_URL          - PostgreSQL connection string (required)
//	PORT                  - HTTP server port (default: 8080)
//	REVIEWLOOP_CONFIG     - optional YAML overrides file for pipeline tunables
//
// Usage:
//
//	go run cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/reviewloop/reviewloop/ai"
	"github.com/reviewloop/reviewloop/config"
	"github.com/reviewloop/reviewloop/github"
	"github.com/reviewloop/reviewloop/review"
	"github.com/reviewloop/reviewloop/storage"
	"github.com/reviewloop/reviewloop/storage/postgres"
)

var (
	logger         *slog.Logger
	cfg            *config.Config
	webhookHandler *github.WebhookHandler
	orchestrator   *review.Orchestrator
	store          *postgres.PostgreSQL
)

func main() {
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := initialize(); err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Set up routes
	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/github", handleWebhook)
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/", handleRoot)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func initialize() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}

	// Initialize PostgreSQL storage
	store, err = postgres.NewFromDSN(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	// Run migrations
	if err := store.Migrate(context.Background()); err != nil {
		return err
	}

	// A bad signing key must fail here, before any webhook is accepted.
	tokens, err := github.NewTokenSource(cfg.AppID, cfg.PrivateKey)
	if err != nil {
		return err
	}

	webhookHandler = github.NewWebhookHandler(cfg.WebhookSecret)
	githubClient := github.NewClient()
	invoker := ai.NewInvoker(cfg.AnthropicAPIKey, cfg.Model, logger)

	orchestrator = review.NewOrchestrator(githubClient, tokens, invoker, store, logger, review.Options{
		CheckName:          cfg.CheckName,
		MaxPatchBytes:      cfg.MaxPatchBytes,
		MaxConcurrentFiles: cfg.MaxConcurrentFiles,
		SkipFiles:          cfg.SkipFiles,
		SkipSuffixes:       cfg.SkipSuffixes,
	})

	logger.Info("initialized",
		"app_id", cfg.AppID,
		"model", cfg.Model,
		"api_key_hint", ai.ExtractKeyHint(cfg.AnthropicAPIKey),
	)

	return nil
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{
		"name":   "reviewloop",
		"status": "running",
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Read body
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Get event type
	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "" {
		http.Error(w, "missing X-GitHub-Event header", http.StatusBadRequest)
		return
	}

	logger.Info("received webhook", "event", eventType, "size", len(payload))

	// Signature verification runs before any payload parsing.
	signature := r.Header.Get("X-Hub-Signature-256")
	if err := webhookHandler.VerifySignature(payload, signature); err != nil {
		logger.Error("signature verification failed", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	switch eventType {
	case "ping":
		jsonResponse(w, http.StatusOK, map[string]string{"message": "pong"})
	case "installation":
		handleInstallation(w, payload)
	case "installation_repositories":
		handleInstallationRepositories(w, payload)
	case "pull_request":
		handlePullRequest(w, payload)
	default:
		logger.Info("ignoring event", "type", eventType)
		jsonResponse(w, http.StatusOK, map[string]string{"message": "event ignored"})
	}
}

// handleInstallation maintains repo policies over the app's lifecycle:
// repositories gain a policy row on install and lose everything on uninstall.
func handleInstallation(w http.ResponseWriter, payload []byte) {
	event, err := webhookHandler.ParseInstallationEvent(payload)
	if err != nil {
		logger.Error("failed to parse installation event", "error", err)
		http.Error(w, "failed to parse event", http.StatusBadRequest)
		return
	}

	if event.Installation.Account == nil {
		http.Error(w, "payload is missing account", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch event.Action {
	case "created":
		policies := policiesFromRepos(event.Installation.Account, event.Repositories)
		if err := store.UpsertRepoPolicies(ctx, policies); err != nil {
			logger.Error("failed to store repo policies", "error", err)
			http.Error(w, "failed to store repositories", http.StatusInternalServerError)
			return
		}
		logger.Info("installation created",
			"account", event.Installation.Account.Login,
			"repos", len(policies),
		)
	case "deleted":
		if err := store.DeleteRepoPoliciesForOwner(ctx, event.Installation.Account.ID); err != nil {
			logger.Error("failed to delete repo policies", "error", err)
			http.Error(w, "failed to delete repositories", http.StatusInternalServerError)
			return
		}
		logger.Info("installation deleted", "account", event.Installation.Account.Login)
	default:
		logger.Info("ignoring installation action", "action", event.Action)
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "ok"})
}

// handleInstallationRepositories tracks repositories added to or removed
// from an existing installation.
func handleInstallationRepositories(w http.ResponseWriter, payload []byte) {
	event, err := webhookHandler.ParseInstallationRepositoriesEvent(payload)
	if err != nil {
		logger.Error("failed to parse installation_repositories event", "error", err)
		http.Error(w, "failed to parse event", http.StatusBadRequest)
		return
	}

	if event.Installation.Account == nil {
		http.Error(w, "payload is missing account", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch event.Action {
	case "added":
		policies := policiesFromRepos(event.Installation.Account, event.RepositoriesAdded)
		if err := store.UpsertRepoPolicies(ctx, policies); err != nil {
			logger.Error("failed to store repo policies", "error", err)
			http.Error(w, "failed to store repositories", http.StatusInternalServerError)
			return
		}
	case "removed":
		for _, repo := range event.RepositoriesRemoved {
			if err := store.DeleteRepoPolicy(ctx, repo.ID); err != nil {
				logger.Error("failed to delete repo policy", "error", err, "repo_id", repo.ID)
			}
		}
	default:
		logger.Info("ignoring installation_repositories action", "action", event.Action)
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "ok"})
}

func handlePullRequest(w http.ResponseWriter, payload []byte) {
	event, err := webhookHandler.ParsePullRequestEvent(payload)
	if err != nil {
		logger.Error("failed to parse event", "error", err)
		http.Error(w, "failed to parse event", http.StatusBadRequest)
		return
	}

	if !webhookHandler.ShouldProcess("pull_request", event) {
		logger.Info("skipping event", "action", event.Action)
		jsonResponse(w, http.StatusOK, map[string]string{"message": "event skipped"})
		return
	}

	logger.Info("processing PR",
		"repo", event.Repository.FullName,
		"pr", event.PullRequest.Number,
		"action", event.Action,
	)

	input := review.RunInputFromEvent(event)

	// The gate phase (policy, idempotency fast path, token mint, file list)
	// runs before the delivery is acknowledged: a failure here must answer
	// non-2xx so GitHub redelivers instead of dropping the review.
	prepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prep, skipped, err := orchestrator.Prepare(prepCtx, input)
	if err != nil {
		logger.Error("review preparation failed", "error", err,
			"repo", event.Repository.FullName,
			"pr", event.PullRequest.Number,
		)
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
	// (the model calls can take longer than GitHub's webhook timeout)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "review started"})

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
		defer cancel()

		result, err := orchestrator.Execute(runCtx, prep)
		if err != nil {
			logger.Error("review run failed", "error", err,
				"repo", event.Repository.FullName,
				"pr", event.PullRequest.Number,
			)
			return
		}

		logger.Info("review run done",
			"status", result.Status,
			"conclusion", result.Conclusion,
			"reviewed", result.ReviewedFiles,
		)
	}()
}

// policiesFromRepos builds policy rows for newly installed repositories.
// Review starts enabled; the dashboard toggle flips it later.
func policiesFromRepos(account *github.User, repos []github.RepoSummary) []storage.RepoPolicy {
	policies := make([]storage.RepoPolicy, len(repos))
	for i, repo := range repos {
		policies[i] = storage.RepoPolicy{
			RepoID:        repo.ID,
			OwnerID:       account.ID,
			Name:          repo.FullName,
			URL:           account.HTMLURL + "/" + repo.Name,
			ReviewEnabled: true,
		}
	}
	return policies
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
