package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSignature indicates the webhook signature verification failed.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMissingSignature indicates the webhook signature header is missing.
	ErrMissingSignature = errors.New("missing webhook signature")
)

// WebhookHandler verifies and parses GitHub webhook deliveries.
type WebhookHandler struct {
	secret []byte
}

// NewWebhookHandler creates a new webhook handler with the given secret.
func NewWebhookHandler(secret string) *WebhookHandler {
	return &WebhookHandler{
		secret: []byte(secret),
	}
}

// VerifySignature verifies the webhook payload signature.
// The signature header should be in the format "sha256=<hex-encoded-signature>".
func (h *WebhookHandler) VerifySignature(payload []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return ErrMissingSignature
	}

	// Parse signature header (format: sha256=<signature>)
	parts := strings.SplitN(signatureHeader, "=", 2)
	if len(parts) != 2 || parts[0] != "sha256" {
		return ErrInvalidSignature
	}

	signature, err := hex.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}

	// Compute expected signature
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	// Compare signatures using constant-time comparison
	if !hmac.Equal(signature, expected) {
		return ErrInvalidSignature
	}

	return nil
}

// ParsePullRequestEvent parses a pull_request webhook payload.
func (h *WebhookHandler) ParsePullRequestEvent(payload []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	if event.PullRequest == nil {
		return nil, errors.New("payload is not a pull request event")
	}
	if event.Repository == nil {
		return nil, errors.New("payload is missing repository")
	}
	if event.Installation == nil {
		return nil, errors.New("payload is missing installation")
	}

	return &event, nil
}

// ShouldProcess determines if the event should trigger a review.
// Returns true for pull_request events with actions: opened, synchronize.
// Every other combination is acknowledged as a no-op.
func (h *WebhookHandler) ShouldProcess(eventType string, event *WebhookEvent) bool {
	if eventType != "pull_request" {
		return false
	}

	switch event.Action {
	case "opened", "synchronize":
		return true
	default:
		return false
	}
}

// ParseInstallationEvent parses an installation webhook payload.
func (h *WebhookHandler) ParseInstallationEvent(payload []byte) (*InstallationEvent, error) {
	var event InstallationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse installation payload: %w", err)
	}

	if event.Installation == nil {
		return nil, errors.New("payload is missing installation")
	}

	return &event, nil
}

// ParseInstallationRepositoriesEvent parses an installation_repositories payload.
func (h *WebhookHandler) ParseInstallationRepositoriesEvent(payload []byte) (*InstallationRepositoriesEvent, error) {
	var event InstallationRepositoriesEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse installation_repositories payload: %w", err)
	}

	if event.Installation == nil {
		return nil, errors.New("payload is missing installation")
	}

	return &event, nil
}
