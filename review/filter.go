// Package review implements the webhook-to-review orchestration pipeline.
package review

import (
	"fmt"
	"path"
	"strings"

	"github.com/reviewloop/reviewloop/github"
)

// defaultSkipNames are exact file names (lock files, generated config,
// editor/CI config) that are never worth reviewing.
var defaultSkipNames = []string{
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"npm-shrinkwrap.json",
	"composer.lock",
	"Gemfile.lock",
	"Cargo.lock",
	"poetry.lock",
	"go.sum",
	".gitignore",
	".gitattributes",
	".editorconfig",
	".prettierrc",
	".eslintrc.json",
	".babelrc",
	".npmrc",
	".travis.yml",
}

// defaultSkipSuffixes match binary, generated, and non-code assets by
// file-name suffix.
var defaultSkipSuffixes = []string{
	// images
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".bmp", ".webp",
	// fonts
	".woff", ".woff2", ".ttf", ".otf", ".eot",
	// minified/compiled assets
	".min.js", ".min.css", ".map", ".wasm", ".pyc", ".class", ".jar",
	".dll", ".so", ".dylib", ".exe",
	// data/doc formats
	".csv", ".tsv", ".parquet", ".pdf", ".doc", ".docx", ".xls", ".xlsx",
	".ppt", ".pptx", ".md",
	// media and archives
	".mp3", ".mp4", ".mov", ".avi", ".webm", ".zip", ".tar", ".gz", ".tgz",
}

// Skip records why a changed file was excluded from review.
type Skip struct {
	Filename string
	Reason   string
}

// Filter decides which changed files are worth reviewing.
type Filter struct {
	maxPatchBytes int
	skipNames     map[string]struct{}
	skipSuffixes  []string
}

// NewFilter creates a filter with the built-in denylists plus any extras.
func NewFilter(maxPatchBytes int, extraNames, extraSuffixes []string) *Filter {
	names := make(map[string]struct{}, len(defaultSkipNames)+len(extraNames))
	for _, n := range defaultSkipNames {
		names[strings.ToLower(n)] = struct{}{}
	}
	for _, n := range extraNames {
		names[strings.ToLower(n)] = struct{}{}
	}

	suffixes := make([]string, 0, len(defaultSkipSuffixes)+len(extraSuffixes))
	suffixes = append(suffixes, defaultSkipSuffixes...)
	for _, s := range extraSuffixes {
		suffixes = append(suffixes, strings.ToLower(s))
	}

	return &Filter{
		maxPatchBytes: maxPatchBytes,
		skipNames:     names,
		skipSuffixes:  suffixes,
	}
}

// Select partitions the changed files into reviewable files and skips.
// Rules are applied in order: removed status, missing patch, exact-name
// denylist, suffix denylist, oversized diff.
func (f *Filter) Select(files []github.PullRequestFile) ([]github.PullRequestFile, []Skip) {
	var selected []github.PullRequestFile
	var skipped []Skip

	for _, file := range files {
		if reason := f.skipReason(&file); reason != "" {
			skipped = append(skipped, Skip{Filename: file.Filename, Reason: reason})
			continue
		}
		selected = append(selected, file)
	}

	return selected, skipped
}

func (f *Filter) skipReason(file *github.PullRequestFile) string {
	if file.Status == "removed" {
		return "file was removed"
	}
	if file.Patch == "" {
		return "no patch (binary or unchanged)"
	}

	base := strings.ToLower(path.Base(file.Filename))
	if _, ok := f.skipNames[base]; ok {
		return "generated or lock file"
	}

	for _, suffix := range f.skipSuffixes {
		if strings.HasSuffix(base, suffix) {
			return "non-reviewable file type"
		}
	}

	if len(file.Patch) > f.maxPatchBytes {
		return fmt.Sprintf("diff too large (%d bytes)", len(file.Patch))
	}

	return ""
}
