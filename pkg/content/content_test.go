package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"relnotes/pkg/models"
)

const releasePost = `---
layout: post
title: "Release 0.0.11"
date: 2023-02-14 12:34:00 +0100
description: Renderer cache and packaging fixes
categories: release windows macos linux
---

The renderer got a new cache layer and per-display pixel scaling.

- Fixed line height on scaled displays ([#123](https://github.com/example/term/issues/123)).
- Added ` + "`.deb`" + ` packages to the release pipeline.
`

// newRepo writes the given posts into a fresh site dir and returns a
// repository over it.
func newRepo(t *testing.T, files map[string]string) *Repository {
	t.Helper()
	siteDir := t.TempDir()
	postsDir := filepath.Join(siteDir, "posts")
	if err := os.MkdirAll(postsDir, 0o755); err != nil {
		t.Fatalf("mkdir posts: %v", err)
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(postsDir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return New(siteDir, "posts", 4)
}

func TestPostsLoadAndOrder(t *testing.T) {
	t.Parallel()

	repo := newRepo(t, map[string]string{
		"2023-02-14-release-0-0-11.md": releasePost,
		"2023-01-01-older.md": `---
layout: post
title: Older
description: earlier release
categories: release
---

Older body.
`,
	})

	posts, err := repo.Posts(context.Background())
	if err != nil {
		t.Fatalf("posts: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("len(posts) = %d, want 2", len(posts))
	}
	if posts[0].Slug != "release-0-0-11" {
		t.Fatalf("posts[0].Slug = %q, want release-0-0-11", posts[0].Slug)
	}
	if posts[1].Slug != "older" {
		t.Fatalf("posts[1].Slug = %q, want older", posts[1].Slug)
	}

	// The older post has no front-matter date; the filename seeds it.
	want := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	if !posts[1].Meta.Date.Equal(want) {
		t.Fatalf("older date = %v, want %v", posts[1].Meta.Date, want)
	}
	if got := posts[0].Meta.Categories; len(got) != 4 || got[0] != "release" {
		t.Fatalf("categories = %v", got)
	}
}

func TestPublishedExcludesDrafts(t *testing.T) {
	t.Parallel()

	repo := newRepo(t, map[string]string{
		"2023-02-14-live.md": releasePost,
		"2023-02-15-wip.md": `---
layout: post
title: WIP
description: not ready
categories: release
draft: true
---

Draft body.
`,
	})

	published, err := repo.Published(context.Background(), false)
	if err != nil {
		t.Fatalf("published: %v", err)
	}
	if len(published) != 1 || published[0].Slug != "live" {
		t.Fatalf("published = %v", published)
	}

	all, err := repo.Published(context.Background(), true)
	if err != nil {
		t.Fatalf("published with drafts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
}

func TestPostsCacheUntilInvalidate(t *testing.T) {
	t.Parallel()

	repo := newRepo(t, map[string]string{"2023-02-14-one.md": releasePost})
	if _, err := repo.Posts(context.Background()); err != nil {
		t.Fatalf("posts: %v", err)
	}

	extra := filepath.Join(repo.PostsDir(), "2023-03-01-two.md")
	if err := os.WriteFile(extra, []byte(releasePost), 0o644); err != nil {
		t.Fatalf("write extra: %v", err)
	}

	posts, err := repo.Posts(context.Background())
	if err != nil {
		t.Fatalf("posts: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("cached len = %d, want 1", len(posts))
	}

	repo.Invalidate()
	posts, err = repo.Posts(context.Background())
	if err != nil {
		t.Fatalf("posts after invalidate: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("reloaded len = %d, want 2", len(posts))
	}
}

func TestSafeJoinRejectsTraversal(t *testing.T) {
	t.Parallel()

	repo := newRepo(t, nil)
	if _, err := repo.SafeJoin("../../etc/passwd"); !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("err = %v, want ErrUnsafePath", err)
	}
	full, err := repo.SafeJoin("2023-02-14-x.md")
	if err != nil {
		t.Fatalf("safe join: %v", err)
	}
	if filepath.Dir(full) != repo.PostsDir() {
		t.Fatalf("full = %q not inside posts dir", full)
	}
}

func TestCreate(t *testing.T) {
	t.Parallel()

	repo := newRepo(t, nil)
	date := time.Date(2023, 2, 14, 0, 0, 0, 0, time.UTC)
	post, err := repo.Create("Release 0.0.11!", date, []string{"Release", "linux"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if post.Path != "2023-02-14-release-0-0-11.md" {
		t.Fatalf("path = %q", post.Path)
	}
	if post.Meta.Title != "Release 0.0.11!" {
		t.Fatalf("title = %q", post.Meta.Title)
	}
	if len(post.Meta.Categories) != 2 || post.Meta.Categories[0] != "release" {
		t.Fatalf("categories = %v", post.Meta.Categories)
	}

	if _, err := repo.Create("Release 0.0.11!", date, nil); !errors.Is(err, os.ErrExist) {
		t.Fatalf("second create err = %v, want os.ErrExist", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	repo := newRepo(t, map[string]string{"2023-02-14-good.md": releasePost})
	post, err := repo.Get("2023-02-14-good.md")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if problems := Validate(post); len(problems) != 0 {
		t.Fatalf("problems = %v, want none", problems)
	}
}

func TestValidateReportsEachCheck(t *testing.T) {
	t.Parallel()

	post := models.Post{
		Meta: models.Metadata{Layout: "post", Title: "x"},
		Body: "[broken](ftp://example.com/file)",
	}
	problems := Validate(post)

	kinds := map[string]int{}
	for _, p := range problems {
		kinds[p.Kind]++
	}
	if kinds[models.ProblemFrontMatter] == 0 {
		t.Fatalf("missing frontmatter problems: %v", problems)
	}
	if kinds[models.ProblemLink] != 1 {
		t.Fatalf("link problems = %d, want 1: %v", kinds[models.ProblemLink], problems)
	}
}

func TestValidateEmptyBody(t *testing.T) {
	t.Parallel()

	post := models.Post{
		Meta: models.Metadata{
			Layout:      "post",
			Title:       "t",
			Date:        time.Now(),
			Description: "d",
			Categories:  []string{"release"},
		},
	}
	problems := Validate(post)
	if len(problems) != 1 || problems[0].Kind != models.ProblemRender {
		t.Fatalf("problems = %v, want one render problem", problems)
	}
}

func TestValidateFixtureDocument(t *testing.T) {
	t.Parallel()

	const name = "2023-02-14-release-0.0.11.md"
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	repo := newRepo(t, map[string]string{name: string(raw)})
	post, err := repo.Get(name)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if post.Meta.Title != "Release 0.0.11" {
		t.Fatalf("title = %q", post.Meta.Title)
	}
	if len(post.Meta.Categories) != 4 {
		t.Fatalf("categories = %v", post.Meta.Categories)
	}
	if problems := Validate(post); len(problems) != 0 {
		t.Fatalf("problems = %v, want none", problems)
	}
}

func TestSplitFilename(t *testing.T) {
	t.Parallel()

	date, slug := SplitFilename("2023-02-14-release-0-0-11.md")
	if slug != "release-0-0-11" {
		t.Fatalf("slug = %q", slug)
	}
	if date.IsZero() {
		t.Fatal("date is zero")
	}

	date, slug = SplitFilename("notes.md")
	if !date.IsZero() || slug != "notes" {
		t.Fatalf("got %v %q, want zero time and notes", date, slug)
	}
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"Release 0.0.11", "release-0-0-11"},
		{"  Hello,   World!  ", "hello-world"},
		{"---", ""},
		{"MiXeD Case", "mixed-case"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Fatalf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
