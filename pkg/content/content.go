// Package content loads and manages the release-notes documents under the
// site's posts directory.
package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"relnotes/pkg/frontmatter"
	"relnotes/pkg/markdown"
	"relnotes/pkg/models"
)

// ErrUnsafePath is returned when a relative path would escape the posts
// directory.
var ErrUnsafePath = errors.New("content: path escapes posts directory")

// filenameDate matches the Jekyll-style YYYY-MM-DD-slug.md convention.
var filenameDate = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-(.+)$`)

// Repository reads posts from disk and keeps a parsed in-memory cache until
// it is invalidated.
type Repository struct {
	siteDir     string
	postsDir    string
	concurrency int

	mu     sync.Mutex
	cache  []models.Post
	loaded bool
}

// New builds a repository over <siteDir>/<postsDir>. Concurrency bounds the
// number of files parsed in parallel during a load.
func New(siteDir, postsDir string, concurrency int) *Repository {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Repository{
		siteDir:     siteDir,
		postsDir:    filepath.Join(siteDir, postsDir),
		concurrency: concurrency,
	}
}

// PostsDir returns the absolute posts directory.
func (r *Repository) PostsDir() string {
	return r.postsDir
}

// Posts returns all posts, drafts included, sorted newest-first. The result
// is cached until Invalidate is called.
func (r *Repository) Posts(ctx context.Context) ([]models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return r.cache, nil
	}

	posts, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	r.cache = posts
	r.loaded = true
	return posts, nil
}

// Published returns the posts that should appear in a build: newest-first,
// drafts filtered out unless includeDrafts.
func (r *Repository) Published(ctx context.Context, includeDrafts bool) ([]models.Post, error) {
	posts, err := r.Posts(ctx)
	if err != nil {
		return nil, err
	}
	if includeDrafts {
		return posts, nil
	}
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if !p.Draft {
			out = append(out, p)
		}
	}
	return out, nil
}

// Invalidate drops the cache so the next Posts call re-reads the disk.
func (r *Repository) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.cache = nil
}

func (r *Repository) load(ctx context.Context) ([]models.Post, error) {
	entries, err := os.ReadDir(r.postsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("content: read posts dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		names = append(names, entry.Name())
	}

	dirty := r.gitDirtyFiles()

	posts := make([]models.Post, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			post, err := r.readPost(name)
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(r.siteDir, filepath.Join(r.postsDir, name))
			if err == nil {
				post.Dirty = dirty[filepath.ToSlash(rel)]
			}
			posts[i] = post
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].Meta.Date.Equal(posts[j].Meta.Date) {
			return posts[i].Meta.Date.After(posts[j].Meta.Date)
		}
		return posts[i].Slug < posts[j].Slug
	})
	return posts, nil
}

// Get parses one post by its path relative to the posts directory.
func (r *Repository) Get(rel string) (models.Post, error) {
	full, err := r.SafeJoin(rel)
	if err != nil {
		return models.Post{}, err
	}
	name, err := filepath.Rel(r.postsDir, full)
	if err != nil {
		return models.Post{}, ErrUnsafePath
	}
	return r.readPost(name)
}

func (r *Repository) readPost(name string) (models.Post, error) {
	raw, err := os.ReadFile(filepath.Join(r.postsDir, name))
	if err != nil {
		return models.Post{}, fmt.Errorf("content: read %s: %w", name, err)
	}

	fields, body, format, err := frontmatter.Parse(raw)
	if err != nil {
		return models.Post{}, fmt.Errorf("content: parse %s: %w", name, err)
	}

	meta, err := models.MetadataFromMap(fields)
	if err != nil {
		return models.Post{}, fmt.Errorf("content: %s: %w", name, err)
	}

	date, slug := SplitFilename(name)
	if meta.Date.IsZero() && !date.IsZero() {
		meta.Date = date
	}

	draft := false
	if v, ok := fields["draft"].(bool); ok {
		draft = v
	}

	return models.Post{
		Path:        name,
		Slug:        slug,
		Format:      string(format),
		FrontMatter: fields,
		Body:        body,
		Meta:        meta,
		Draft:       draft,
	}, nil
}

// Save writes a post assembled from fields, body and format, then drops the
// cache.
func (r *Repository) Save(rel string, fields map[string]any, body, format string) error {
	full, err := r.SafeJoin(rel)
	if err != nil {
		return err
	}
	out, err := frontmatter.Construct(fields, body, frontmatter.Format(format))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("content: save %s: %w", rel, err)
	}
	if err := os.WriteFile(full, out, 0o644); err != nil {
		return fmt.Errorf("content: save %s: %w", rel, err)
	}
	r.Invalidate()
	return nil
}

// SaveRaw writes a document verbatim, then drops the cache.
func (r *Repository) SaveRaw(rel string, raw []byte) error {
	full, err := r.SafeJoin(rel)
	if err != nil {
		return err
	}
	if err := os.WriteFile(full, raw, 0o644); err != nil {
		return fmt.Errorf("content: save %s: %w", rel, err)
	}
	r.Invalidate()
	return nil
}

// Create writes a new post file named after the date and slugified title.
// The file carries YAML front matter. os.ErrExist is returned when the
// target already exists.
func (r *Repository) Create(title string, date time.Time, categories []string) (models.Post, error) {
	if date.IsZero() {
		date = time.Now()
	}
	slug := Slugify(title)
	if slug == "" {
		return models.Post{}, errors.New("content: title produces an empty slug")
	}
	name := fmt.Sprintf("%s-%s.md", date.Format("2006-01-02"), slug)

	full, err := r.SafeJoin(name)
	if err != nil {
		return models.Post{}, err
	}
	if _, err := os.Stat(full); err == nil {
		return models.Post{}, fmt.Errorf("content: %s: %w", name, os.ErrExist)
	}

	meta := models.Metadata{
		Layout:     "post",
		Title:      title,
		Date:       date,
		Categories: models.ParseCategories(categories),
	}
	out, err := frontmatter.Construct(meta.Map(), "", frontmatter.FormatYAML)
	if err != nil {
		return models.Post{}, err
	}
	if err := os.MkdirAll(r.postsDir, 0o755); err != nil {
		return models.Post{}, fmt.Errorf("content: create %s: %w", name, err)
	}
	if err := os.WriteFile(full, out, 0o644); err != nil {
		return models.Post{}, fmt.Errorf("content: create %s: %w", name, err)
	}
	r.Invalidate()
	return r.readPost(name)
}

// Validate aggregates the document checks: required metadata present,
// every hyperlink syntactically valid, body rendering to non-empty HTML.
func Validate(post models.Post) []models.Problem {
	problems := post.Meta.Validate()
	problems = append(problems, markdown.CheckLinks([]byte(post.Body))...)
	if _, err := markdown.Render([]byte(post.Body)); err != nil {
		problems = append(problems, models.Problem{
			Kind:    models.ProblemRender,
			Message: err.Error(),
		})
	}
	return problems
}

// SafeJoin resolves rel inside the posts directory, rejecting absolute
// paths and traversal.
func (r *Repository) SafeJoin(rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}
	return filepath.Join(r.postsDir, clean), nil
}

// SplitFilename extracts the date prefix and slug from a post file name.
// Files without the date prefix return a zero time and their whole stem.
func SplitFilename(name string) (time.Time, string) {
	stem := strings.TrimSuffix(filepath.Base(name), ".md")
	m := filenameDate.FindStringSubmatch(stem)
	if m == nil {
		return time.Time{}, stem
	}
	date, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return time.Time{}, stem
	}
	return date, m[2]
}

// Slugify lowercases a title and replaces every non-alphanumeric run with a
// single hyphen.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// gitDirtyFiles maps site-relative paths to their modified state, read from
// git porcelain output. A site dir that is not a git work tree yields an
// empty map.
func (r *Repository) gitDirtyFiles() map[string]bool {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = r.siteDir
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	dirty := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		path = strings.Trim(path, "\"")
		dirty[path] = true
	}
	return dirty
}
