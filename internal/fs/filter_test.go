package fs

import "testing"

func TestIsMarkdown(t *testing.T) {
	cases := map[string]bool{
		"notes/a.md":       true,
		"notes/a.MARKDOWN": true,
		"notes/a.txt":      false,
		"notes/a":          false,
	}
	for path, want := range cases {
		if got := IsMarkdown(path); got != want {
			t.Errorf("IsMarkdown(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestFilterExcludesSyncDir(t *testing.T) {
	f := NewFilter(nil)
	if f.ShouldSync(".sync/registry.crdt") {
		t.Error("expected .sync/ contents to be excluded")
	}
	if f.ShouldSync(".sync") {
		t.Error("expected .sync itself to be excluded")
	}
}

func TestFilterExcludesNonMarkdown(t *testing.T) {
	f := NewFilter(nil)
	if f.ShouldSync("notes/image.png") {
		t.Error("expected non-markdown file to be excluded")
	}
}

func TestFilterAppliesIgnoreGlobs(t *testing.T) {
	f := NewFilter([]string{"drafts/**"})
	if f.ShouldSync("drafts/wip.md") {
		t.Error("expected ignored glob to exclude file")
	}
	if !f.ShouldSync("notes/keep.md") {
		t.Error("expected non-ignored markdown file to sync")
	}
}
