package gitops

import (
	"os/exec"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestDiffReportsUnsavedChanges(t *testing.T) {
	t.Parallel()
	requireGit(t)

	c := &Client{Dir: t.TempDir(), Remote: "origin", Branch: "main"}
	saved := []byte("line one\nline two\n")
	editor := []byte("line one\nline two changed\n")

	diff, kind, err := c.Diff(saved, editor, "posts/x.md")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if kind != "unsaved" {
		t.Fatalf("kind = %q, want unsaved", kind)
	}
	if !strings.Contains(diff, "line two changed") {
		t.Fatalf("diff missing change: %q", diff)
	}
	// Temp file paths are replaced with stable labels.
	if !strings.Contains(diff, "editor") || !strings.Contains(diff, "saved") {
		t.Fatalf("diff missing labels: %q", diff)
	}
}

func TestDiffIdenticalContent(t *testing.T) {
	t.Parallel()
	requireGit(t)

	c := &Client{Dir: t.TempDir(), Remote: "origin", Branch: "main"}
	content := []byte("same\n")

	diff, kind, err := c.Diff(content, content, "posts/x.md")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if kind != "none" || diff != "" {
		t.Fatalf("got kind %q diff %q, want none and empty", kind, diff)
	}
}
