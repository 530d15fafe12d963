// Package gitops drives the git work tree that holds the site content:
// pulling upstream changes, committing edits and pushing them back with a
// per-session OAuth token.
package gitops

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Client runs git against one work tree.
type Client struct {
	Dir    string
	Remote string
	Branch string

	UserName  string
	UserEmail string
}

// run executes git in the work tree and returns its combined output.
func (c *Client) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = c.Dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// runWithToken rewrites the remote name in args to the remote URL carrying
// oauth2 basic-auth credentials, runs git, and scrubs the token from the
// output before returning it.
func (c *Client) runWithToken(token string, args ...string) (string, error) {
	remoteURL, err := c.run("remote", "get-url", c.Remote)
	if err != nil {
		return "failed to get remote url", err
	}
	remoteURL = strings.TrimSpace(remoteURL)

	u, err := url.Parse(remoteURL)
	if err != nil {
		return "invalid remote url", err
	}
	u.User = url.UserPassword("oauth2", token)
	authenticated := u.String()

	withURL := make([]string, len(args))
	copy(withURL, args)
	for i, v := range withURL {
		if v == c.Remote {
			withURL[i] = authenticated
		}
	}

	out, err := c.run(withURL...)
	out = strings.ReplaceAll(out, authenticated, remoteURL)
	if token != "" {
		out = strings.ReplaceAll(out, token, "***")
	}
	return out, err
}

// Sync pulls the configured branch from the remote.
func (c *Client) Sync(token string) (string, error) {
	return c.runWithToken(token, "pull", c.Remote, c.Branch)
}

// Publish stages everything, commits with the configured identity and
// pushes. A commit with nothing staged is not an error.
func (c *Client) Publish(token string) (string, error) {
	if out, err := c.run("add", "."); err != nil {
		return out, err
	}

	msg := fmt.Sprintf("Update release notes: %s", time.Now().Format("2006-01-02 15:04:05"))
	args := []string{"commit", "-m", msg}
	if c.UserName != "" {
		args = append([]string{"-c", "user.name=" + c.UserName, "-c", "user.email=" + c.UserEmail}, args...)
	}
	// Exit status 1 here means nothing to commit; push proceeds anyway.
	_, _ = c.run(args...)

	return c.runWithToken(token, "push", c.Remote, c.Branch)
}

// Diff reports how the editor state of a document differs from what is
// saved: first as an unsaved diff of two normalized temp files, then as a
// committed diff against HEAD. The returned kind is "unsaved", "git" or
// "none".
func (c *Client) Diff(saved, editor []byte, relPath string) (diff, kind string, err error) {
	dir, err := os.MkdirTemp("", "relnotes-diff-*")
	if err != nil {
		return "", "", fmt.Errorf("gitops: diff temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	savedPath := dir + "/saved"
	editorPath := dir + "/editor"
	if err := os.WriteFile(savedPath, saved, 0o600); err != nil {
		return "", "", fmt.Errorf("gitops: write diff input: %w", err)
	}
	if err := os.WriteFile(editorPath, editor, 0o600); err != nil {
		return "", "", fmt.Errorf("gitops: write diff input: %w", err)
	}

	cmd := exec.Command("git", "diff", "--no-index", savedPath, editorPath)
	out, diffErr := cmd.CombinedOutput()
	// --no-index exits 1 when the files differ.
	if diffErr != nil && cmd.ProcessState != nil && cmd.ProcessState.ExitCode() == 1 {
		text := string(out)
		text = strings.ReplaceAll(text, savedPath, "saved")
		text = strings.ReplaceAll(text, editorPath, "editor")
		return text, "unsaved", nil
	}

	// Outside a work tree (or before the first commit) git writes an error
	// instead of a diff; that is not a "git" diff.
	committed, gitErr := c.run("diff", "HEAD", "--", relPath)
	if gitErr == nil && strings.TrimSpace(committed) != "" {
		return committed, "git", nil
	}
	return "", "none", nil
}
