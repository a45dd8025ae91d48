package fs

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter decides which vault-relative paths the sync core should ever
// touch: always excluding the `.sync/` control directory, and otherwise
// applying the vault's markdown-only default plus any ignore globs the
// host supplies (Options.IgnoreGlobs).
type Filter struct {
	ignoreGlobs []string
}

// NewFilter builds a Filter from the given ignore patterns.
// Patterns are doublestar globs (`**/*.tmp`, `drafts/**`, etc.).
func NewFilter(ignoreGlobs []string) *Filter {
	return &Filter{ignoreGlobs: ignoreGlobs}
}

// IsMarkdown reports whether path has a Markdown extension.
func IsMarkdown(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}

// ShouldSync reports whether path is a candidate for sync: not under
// `.sync/`, Markdown, and not matched by any ignore glob.
func (f *Filter) ShouldSync(path string) bool {
	if path == ".sync" || strings.HasPrefix(path, ".sync/") {
		return false
	}
	if !IsMarkdown(path) {
		return false
	}
	for _, glob := range f.ignoreGlobs {
		if ok, _ := doublestar.Match(glob, path); ok {
			return false
		}
	}
	return true
}
