package ai

import (
	"strings"
	"testing"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Verdict
		wantErr  bool
	}{
		{
			name:     "plain json",
			response: `{"comment": "Looks good.", "conclusion": "success", "rating": 4}`,
			want:     Verdict{Comment: "Looks good.", Conclusion: ConclusionSuccess, Rating: 4},
		},
		{
			name: "json fence",
			response: "```json\n" +
				`{"comment": "Null check missing.", "conclusion": "failure", "rating": 2}` +
				"\n```",
			want: Verdict{Comment: "Null check missing.", Conclusion: ConclusionFailure, Rating: 2},
		},
		{
			name: "bare fence",
			response: "```\n" +
				`{"comment": "Trivial rename.", "conclusion": "neutral", "rating": 3}` +
				"\n```",
			want: Verdict{Comment: "Trivial rename.", Conclusion: ConclusionNeutral, Rating: 3},
		},
		{
			name:     "uppercase conclusion",
			response: `{"comment": "Fine.", "conclusion": "SUCCESS", "rating": 5}`,
			want:     Verdict{Comment: "Fine.", Conclusion: ConclusionSuccess, Rating: 5},
		},
		{
			name:     "unknown conclusion defaults to neutral",
			response: `{"comment": "Fine.", "conclusion": "approved", "rating": 5}`,
			want:     Verdict{Comment: "Fine.", Conclusion: ConclusionNeutral, Rating: 5},
		},
		{
			name:     "missing conclusion defaults to neutral",
			response: `{"comment": "Fine.", "rating": 3}`,
			want:     Verdict{Comment: "Fine.", Conclusion: ConclusionNeutral, Rating: 3},
		},
		{
			name:     "quoted rating",
			response: `{"comment": "Fine.", "conclusion": "success", "rating": "4"}`,
			want:     Verdict{Comment: "Fine.", Conclusion: ConclusionSuccess, Rating: 4},
		},
		{
			name:     "fractional rating truncated",
			response: `{"comment": "Fine.", "conclusion": "success", "rating": 4.7}`,
			want:     Verdict{Comment: "Fine.", Conclusion: ConclusionSuccess, Rating: 4},
		},
		{
			name:     "missing rating gets default",
			response: `{"comment": "Fine.", "conclusion": "success"}`,
			want:     Verdict{Comment: "Fine.", Conclusion: ConclusionSuccess, Rating: FallbackRating},
		},
		{
			name:     "non-numeric rating gets default",
			response: `{"comment": "Fine.", "conclusion": "success", "rating": "excellent"}`,
			want:     Verdict{Comment: "Fine.", Conclusion: ConclusionSuccess, Rating: FallbackRating},
		},
		{
			name:     "comment whitespace trimmed",
			response: `{"comment": "  Looks good.  ", "conclusion": "success", "rating": 4}`,
			want:     Verdict{Comment: "Looks good.", Conclusion: ConclusionSuccess, Rating: 4},
		},
		{
			name:     "not json",
			response: "I think this change looks great!",
			wantErr:  true,
		},
		{
			name:     "empty comment",
			response: `{"comment": "", "conclusion": "success", "rating": 4}`,
			wantErr:  true,
		},
		{
			name:     "whitespace-only comment",
			response: `{"comment": "   ", "conclusion": "success", "rating": 4}`,
			wantErr:  true,
		},
		{
			name:     "empty response",
			response: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVerdict(tt.response)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseVerdict() expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVerdict() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseVerdict() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFallbackVerdict(t *testing.T) {
	v := FallbackVerdict("model invocation failed: timeout")

	if !v.Fallback {
		t.Error("Fallback = false, want true")
	}
	if v.Comment != FallbackComment {
		t.Errorf("Comment = %q, want %q", v.Comment, FallbackComment)
	}
	if v.Conclusion != ConclusionNeutral {
		t.Errorf("Conclusion = %q, want neutral", v.Conclusion)
	}
	if v.Rating != FallbackRating {
		t.Errorf("Rating = %d, want %d", v.Rating, FallbackRating)
	}
	if !strings.Contains(v.FallbackReason, "timeout") {
		t.Errorf("FallbackReason = %q, want the original reason", v.FallbackReason)
	}
}

func TestBuildFileReviewPrompt(t *testing.T) {
	prompt := BuildFileReviewPrompt(&FileInput{
		Path:    "internal/auth/session.go",
		Patch:   "@@ -1 +1 @@\n-old\n+new",
		PRDiff:  "diff --git a/internal/auth/token.go b/internal/auth/token.go",
		Content: "package auth\n",
	})

	wants := []string{
		"internal/auth/session.go",
		"@@ -1 +1 @@",
		"diff --git a/internal/auth/token.go",
		"package auth",
	}
	for _, want := range wants {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "no fences",
			response: `{"comment": "x"}`,
			want:     `{"comment": "x"}`,
		},
		{
			name:     "json fence with padding",
			response: "\n```json\n{\"a\": 1}\n```\n",
			want:     `{"a": 1}`,
		},
		{
			name:     "bare fence",
			response: "```\n{\"a\": 1}\n```",
			want:     `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanResponse(tt.response); got != tt.want {
				t.Errorf("cleanResponse() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractKeyHint(t *testing.T) {
	if got := ExtractKeyHint("sk-ant-api03-abcd"); got != "abcd" {
		t.Errorf("ExtractKeyHint() = %q, want abcd", got)
	}
	if got := ExtractKeyHint("ab"); got != "****" {
		t.Errorf("ExtractKeyHint() = %q, want ****", got)
	}
}
