package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "relnotes.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestBuildLifecycle(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()

	build, err := s.StartBuild(ctx)
	if err != nil {
		t.Fatalf("start build: %v", err)
	}
	if build.Status != BuildRunning {
		t.Fatalf("status = %q, want running", build.Status)
	}

	if err := s.FinishBuild(ctx, build.ID, BuildOK, 7, 3, "page index\n"); err != nil {
		t.Fatalf("finish build: %v", err)
	}

	got, err := s.GetBuild(ctx, build.ID)
	if err != nil {
		t.Fatalf("get build: %v", err)
	}
	if got.Status != BuildOK {
		t.Fatalf("status = %q, want ok", got.Status)
	}
	if got.Pages != 7 || got.Cards != 3 {
		t.Fatalf("pages/cards = %d/%d, want 7/3", got.Pages, got.Cards)
	}
	if got.FinishedAt.IsZero() {
		t.Fatal("finished_at is zero")
	}
}

func TestFinishBuildUnknownID(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	err := s.FinishBuild(context.Background(), "missing", BuildOK, 0, 0, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFinishBuildRejectsBadStatus(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	if err := s.FinishBuild(context.Background(), "x", "pending", 0, 0, ""); err == nil {
		t.Fatal("expected invalid status error")
	}
}

func TestGetBuildNotFound(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	if _, err := s.GetBuild(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListBuildsPaginates(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		build, err := s.StartBuild(ctx)
		if err != nil {
			t.Fatalf("start build: %v", err)
		}
		seen[build.ID] = false
	}

	page, err := s.ListBuilds(ctx, 2, "")
	if err != nil {
		t.Fatalf("list builds: %v", err)
	}
	if len(page.Builds) != 2 {
		t.Fatalf("len(page) = %d, want 2", len(page.Builds))
	}
	if page.NextPageToken == "" {
		t.Fatal("missing next page token")
	}
	for _, b := range page.Builds {
		seen[b.ID] = true
	}

	rest, err := s.ListBuilds(ctx, 2, page.NextPageToken)
	if err != nil {
		t.Fatalf("list builds page 2: %v", err)
	}
	if len(rest.Builds) != 1 {
		t.Fatalf("len(rest) = %d, want 1", len(rest.Builds))
	}
	if rest.NextPageToken != "" {
		t.Fatalf("unexpected token %q", rest.NextPageToken)
	}
	seen[rest.Builds[0].ID] = true

	for id, ok := range seen {
		if !ok {
			t.Fatalf("build %s missing from pages", id)
		}
	}
}

func TestListBuildsRejectsMalformedToken(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	if _, err := s.ListBuilds(context.Background(), 2, "not-a-token"); err == nil {
		t.Fatal("expected malformed token error")
	}
}

func TestUpsertGetPostRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()
	date := time.Date(2023, 2, 14, 11, 34, 0, 0, time.UTC)

	rec := PostRecord{
		Slug:        "release-0-0-11",
		Path:        "2023-02-14-release-0-0-11.md",
		Title:       "Release 0.0.11",
		Date:        date,
		Description: "Renderer cache and packaging fixes",
		Categories:  []string{"release", "windows", "macos", "linux"},
	}
	if err := s.UpsertPost(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetPost(ctx, "release-0-0-11")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != rec.Title {
		t.Fatalf("title = %q, want %q", got.Title, rec.Title)
	}
	if !got.Date.Equal(date) {
		t.Fatalf("date = %v, want %v", got.Date, date)
	}
	if len(got.Categories) != 4 || got.Categories[0] != "release" {
		t.Fatalf("categories = %v", got.Categories)
	}

	// Upsert replaces.
	rec.Title = "Release 0.0.11 (hotfix)"
	if err := s.UpsertPost(ctx, rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err = s.GetPost(ctx, "release-0-0-11")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if got.Title != "Release 0.0.11 (hotfix)" {
		t.Fatalf("title = %q", got.Title)
	}
}

func TestGetPostNotFound(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	if _, err := s.GetPost(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListPostsFiltersByCategory(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()

	recs := []PostRecord{
		{Slug: "a", Path: "a.md", Title: "A", Date: time.Now(), Categories: []string{"release", "linux"}},
		{Slug: "b", Path: "b.md", Title: "B", Date: time.Now(), Categories: []string{"release"}},
		{Slug: "c", Path: "c.md", Title: "C", Date: time.Now(), Categories: []string{"linux"}},
	}
	if err := s.ReplacePosts(ctx, recs); err != nil {
		t.Fatalf("replace: %v", err)
	}

	page, err := s.ListPosts(ctx, "linux", 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Posts) != 2 {
		t.Fatalf("len = %d, want 2: %v", len(page.Posts), page.Posts)
	}
	if page.Posts[0].Slug != "a" || page.Posts[1].Slug != "c" {
		t.Fatalf("slugs = %s %s", page.Posts[0].Slug, page.Posts[1].Slug)
	}

	// A category that is a substring of another tag must not match.
	page, err = s.ListPosts(ctx, "nux", 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Posts) != 0 {
		t.Fatalf("substring category matched: %v", page.Posts)
	}
}

func TestListPostsPaginates(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()

	recs := []PostRecord{
		{Slug: "a", Path: "a.md", Title: "A", Date: time.Now()},
		{Slug: "b", Path: "b.md", Title: "B", Date: time.Now()},
		{Slug: "c", Path: "c.md", Title: "C", Date: time.Now()},
	}
	if err := s.ReplacePosts(ctx, recs); err != nil {
		t.Fatalf("replace: %v", err)
	}

	page, err := s.ListPosts(ctx, "", 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Posts) != 2 || page.NextPageToken != "b" {
		t.Fatalf("page = %v token %q", page.Posts, page.NextPageToken)
	}

	rest, err := s.ListPosts(ctx, "", 2, page.NextPageToken)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(rest.Posts) != 1 || rest.Posts[0].Slug != "c" || rest.NextPageToken != "" {
		t.Fatalf("rest = %v token %q", rest.Posts, rest.NextPageToken)
	}
}

func TestDeletePost(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()

	if err := s.UpsertPost(ctx, PostRecord{Slug: "x", Path: "x.md", Title: "X", Date: time.Now()}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.DeletePost(ctx, "x"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeletePost(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestReplacePostsSwapsIndex(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()

	if err := s.ReplacePosts(ctx, []PostRecord{{Slug: "old", Path: "old.md", Title: "Old", Date: time.Now()}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := s.ReplacePosts(ctx, []PostRecord{{Slug: "new", Path: "new.md", Title: "New", Date: time.Now()}}); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	if _, err := s.GetPost(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old still present: %v", err)
	}
	if _, err := s.GetPost(ctx, "new"); err != nil {
		t.Fatalf("new missing: %v", err)
	}
}
