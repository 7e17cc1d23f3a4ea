// Package ai provides the per-file review invoker backed by the Anthropic
// API, and normalization of model output into a structured verdict.
package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Check-run conclusions a verdict may carry.
const (
	ConclusionSuccess = "success"
	ConclusionFailure = "failure"
	ConclusionNeutral = "neutral"
)

const (
	// FallbackComment is the user-visible comment when a file could not be
	// properly reviewed. Degraded output beats silent omission.
	FallbackComment = "AI review failed."

	// FallbackRating is the rating recorded for a fallback verdict.
	FallbackRating = 2
)

// Verdict is the normalized result of reviewing one file. A verdict is
// always usable: when the model call or its output failed, Fallback is set
// and the fixed fallback values are filled in.
type Verdict struct {
	Comment    string
	Conclusion string
	Rating     int

	Fallback       bool
	FallbackReason string
}

// FallbackVerdict returns the fixed degraded verdict with the given reason.
func FallbackVerdict(reason string) Verdict {
	return Verdict{
		Comment:        FallbackComment,
		Conclusion:     ConclusionNeutral,
		Rating:         FallbackRating,
		Fallback:       true,
		FallbackReason: reason,
	}
}

// rawVerdict is the shape requested from the model. Rating is decoded
// loosely because models return numbers, quoted numbers, or nothing.
type rawVerdict struct {
	Comment    string `json:"comment"`
	Conclusion string `json:"conclusion"`
	Rating     any    `json:"rating"`
}

// ParseVerdict parses and validates a model response. The response may be
// wrapped in markdown code fences. A non-empty comment is required;
// conclusion is case-normalized and defaults to neutral when unrecognized;
// rating is coerced to an integer, defaulting when absent or non-numeric.
func ParseVerdict(response string) (Verdict, error) {
	cleaned := cleanResponse(response)

	var raw rawVerdict
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return Verdict{}, fmt.Errorf("failed to parse review response as JSON: %w", err)
	}

	comment := strings.TrimSpace(raw.Comment)
	if comment == "" {
		return Verdict{}, fmt.Errorf("review response has empty comment")
	}

	conclusion := strings.ToLower(strings.TrimSpace(raw.Conclusion))
	switch conclusion {
	case ConclusionSuccess, ConclusionFailure, ConclusionNeutral:
	default:
		conclusion = ConclusionNeutral
	}

	return Verdict{
		Comment:    comment,
		Conclusion: conclusion,
		Rating:     coerceRating(raw.Rating),
	}, nil
}

// cleanResponse removes markdown code blocks and surrounding whitespace.
func cleanResponse(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
	}

	response = strings.TrimSuffix(response, "```")

	return strings.TrimSpace(response)
}

// coerceRating converts whatever the model sent into an integer rating,
// defaulting when it cannot be read as a number.
func coerceRating(v any) int {
	switch r := v.(type) {
	case float64:
		return int(r)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(r), 64); err == nil {
			return int(f)
		}
	case json.Number:
		if f, err := r.Float64(); err == nil {
			return int(f)
		}
	}
	return FallbackRating
}
