// Package store persists the build history and post index in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"relnotes/pkg/models"
	"relnotes/pkg/store/migrations"
)

// Sentinel errors shared by every operation.
var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Build statuses.
const (
	BuildRunning = "running"
	BuildOK      = "ok"
	BuildError   = "error"
)

// Build is one recorded site build.
type Build struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Status     string    `json:"status"`
	Pages      int       `json:"pages"`
	Cards      int       `json:"cards"`
	Log        string    `json:"log,omitempty"`
}

// BuildPage is one page of build history.
type BuildPage struct {
	Builds        []Build `json:"builds"`
	NextPageToken string  `json:"next_page_token,omitempty"`
}

// PostRecord is the indexed form of a post.
type PostRecord struct {
	Slug        string    `json:"slug"`
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Categories  []string  `json:"categories"`
	Draft       bool      `json:"draft"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PostPage is one page of the post index.
type PostPage struct {
	Posts         []PostRecord `json:"posts"`
	NextPageToken string       `json:"next_page_token,omitempty"`
}

// Index is the persistence surface the rest of the engine depends on.
type Index interface {
	StartBuild(ctx context.Context) (Build, error)
	FinishBuild(ctx context.Context, id, status string, pages, cards int, log string) error
	GetBuild(ctx context.Context, id string) (Build, error)
	ListBuilds(ctx context.Context, pageSize int, pageToken string) (BuildPage, error)

	UpsertPost(ctx context.Context, rec PostRecord) error
	GetPost(ctx context.Context, slug string) (PostRecord, error)
	ListPosts(ctx context.Context, category string, pageSize int, pageToken string) (PostPage, error)
	DeletePost(ctx context.Context, slug string) error
	ReplacePosts(ctx context.Context, recs []PostRecord) error
}

// Store is the SQLite implementation of Index.
type Store struct {
	sqlDB *sql.DB
}

var _ Index = (*Store)(nil)

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Open opens the SQLite index at path and applies embedded migrations. The
// parent directory is created when missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store: path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// StartBuild inserts a running build record and returns it.
func (s *Store) StartBuild(ctx context.Context) (Build, error) {
	if err := ctx.Err(); err != nil {
		return Build{}, err
	}
	if s == nil || s.sqlDB == nil {
		return Build{}, fmt.Errorf("store: not configured")
	}

	build := Build{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Status:    BuildRunning,
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO builds (id, started_at, status) VALUES (?, ?, ?)`,
		build.ID,
		toMillis(build.StartedAt),
		build.Status,
	)
	if err != nil {
		return Build{}, fmt.Errorf("store: start build: %w", err)
	}
	return build, nil
}

// FinishBuild records the outcome of a running build.
func (s *Store) FinishBuild(ctx context.Context, id, status string, pages, cards int, log string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("store: not configured")
	}
	if status != BuildOK && status != BuildError {
		return fmt.Errorf("store: invalid build status %q", status)
	}

	res, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE builds
		    SET finished_at = ?, status = ?, pages = ?, cards = ?, log = ?
		  WHERE id = ?`,
		toMillis(time.Now().UTC()),
		status,
		pages,
		cards,
		log,
		id,
	)
	if err != nil {
		return fmt.Errorf("store: finish build: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: finish build: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetBuild returns one build by ID.
func (s *Store) GetBuild(ctx context.Context, id string) (Build, error) {
	if err := ctx.Err(); err != nil {
		return Build{}, err
	}
	if s == nil || s.sqlDB == nil {
		return Build{}, fmt.Errorf("store: not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, started_at, finished_at, status, pages, cards, log
		   FROM builds WHERE id = ?`,
		id,
	)
	build, err := scanBuild(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Build{}, ErrNotFound
		}
		return Build{}, fmt.Errorf("store: get build: %w", err)
	}
	return build, nil
}

// ListBuilds returns one newest-first page of build history. The opaque
// page token encodes the last row seen as "millis|id".
func (s *Store) ListBuilds(ctx context.Context, pageSize int, pageToken string) (BuildPage, error) {
	if err := ctx.Err(); err != nil {
		return BuildPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return BuildPage{}, fmt.Errorf("store: not configured")
	}
	if pageSize <= 0 {
		return BuildPage{}, fmt.Errorf("store: page size must be greater than zero")
	}

	var (
		rows *sql.Rows
		err  error
	)
	if pageToken == "" {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT id, started_at, finished_at, status, pages, cards, log
			   FROM builds
			  ORDER BY started_at DESC, id DESC
			  LIMIT ?`,
			pageSize+1,
		)
	} else {
		millis, id, tokenErr := parseBuildToken(pageToken)
		if tokenErr != nil {
			return BuildPage{}, tokenErr
		}
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT id, started_at, finished_at, status, pages, cards, log
			   FROM builds
			  WHERE started_at < ? OR (started_at = ? AND id < ?)
			  ORDER BY started_at DESC, id DESC
			  LIMIT ?`,
			millis,
			millis,
			id,
			pageSize+1,
		)
	}
	if err != nil {
		return BuildPage{}, fmt.Errorf("store: list builds: %w", err)
	}
	defer rows.Close()

	page := BuildPage{Builds: make([]Build, 0, pageSize)}
	for rows.Next() {
		build, err := scanBuild(rows.Scan)
		if err != nil {
			return BuildPage{}, fmt.Errorf("store: list builds: %w", err)
		}
		page.Builds = append(page.Builds, build)
	}
	if err := rows.Err(); err != nil {
		return BuildPage{}, fmt.Errorf("store: list builds: %w", err)
	}
	if len(page.Builds) > pageSize {
		last := page.Builds[pageSize-1]
		page.NextPageToken = fmt.Sprintf("%d|%s", toMillis(last.StartedAt), last.ID)
		page.Builds = page.Builds[:pageSize]
	}
	return page, nil
}

func parseBuildToken(token string) (int64, string, error) {
	millisPart, id, ok := strings.Cut(token, "|")
	if !ok {
		return 0, "", fmt.Errorf("store: malformed page token")
	}
	millis, err := strconv.ParseInt(millisPart, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("store: malformed page token")
	}
	return millis, id, nil
}

func scanBuild(scan func(dest ...any) error) (Build, error) {
	var build Build
	var startedAt, finishedAt int64
	if err := scan(
		&build.ID,
		&startedAt,
		&finishedAt,
		&build.Status,
		&build.Pages,
		&build.Cards,
		&build.Log,
	); err != nil {
		return Build{}, err
	}
	build.StartedAt = fromMillis(startedAt)
	build.FinishedAt = fromMillis(finishedAt)
	return build, nil
}

// UpsertPost inserts or replaces one index record.
func (s *Store) UpsertPost(ctx context.Context, rec PostRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("store: not configured")
	}
	if strings.TrimSpace(rec.Slug) == "" {
		return fmt.Errorf("store: slug is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO posts (slug, path, title, date, description, categories, draft, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(slug) DO UPDATE SET
		   path = excluded.path,
		   title = excluded.title,
		   date = excluded.date,
		   description = excluded.description,
		   categories = excluded.categories,
		   draft = excluded.draft,
		   updated_at = excluded.updated_at`,
		rec.Slug,
		rec.Path,
		rec.Title,
		toMillis(rec.Date),
		rec.Description,
		strings.Join(rec.Categories, " "),
		boolToInt(rec.Draft),
		toMillis(orNow(rec.UpdatedAt)),
	)
	if err != nil {
		return fmt.Errorf("store: upsert post: %w", err)
	}
	return nil
}

// GetPost returns one index record by slug.
func (s *Store) GetPost(ctx context.Context, slug string) (PostRecord, error) {
	if err := ctx.Err(); err != nil {
		return PostRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return PostRecord{}, fmt.Errorf("store: not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT slug, path, title, date, description, categories, draft, updated_at
		   FROM posts WHERE slug = ?`,
		slug,
	)
	rec, err := scanPost(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PostRecord{}, ErrNotFound
		}
		return PostRecord{}, fmt.Errorf("store: get post: %w", err)
	}
	return rec, nil
}

// ListPosts returns one page of the index ordered by slug, optionally
// filtered to posts carrying a category. The page token is the last slug.
func (s *Store) ListPosts(ctx context.Context, category string, pageSize int, pageToken string) (PostPage, error) {
	if err := ctx.Err(); err != nil {
		return PostPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return PostPage{}, fmt.Errorf("store: not configured")
	}
	if pageSize <= 0 {
		return PostPage{}, fmt.Errorf("store: page size must be greater than zero")
	}

	// Categories are stored space-joined; pad both sides so a LIKE match
	// cannot hit a substring of another tag.
	query := `SELECT slug, path, title, date, description, categories, draft, updated_at
	   FROM posts WHERE slug > ?`
	args := []any{pageToken}
	if category != "" {
		query += ` AND ' ' || categories || ' ' LIKE ?`
		args = append(args, "% "+strings.ToLower(strings.TrimSpace(category))+" %")
	}
	query += ` ORDER BY slug ASC LIMIT ?`
	args = append(args, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return PostPage{}, fmt.Errorf("store: list posts: %w", err)
	}
	defer rows.Close()

	page := PostPage{Posts: make([]PostRecord, 0, pageSize)}
	for rows.Next() {
		rec, err := scanPost(rows.Scan)
		if err != nil {
			return PostPage{}, fmt.Errorf("store: list posts: %w", err)
		}
		page.Posts = append(page.Posts, rec)
	}
	if err := rows.Err(); err != nil {
		return PostPage{}, fmt.Errorf("store: list posts: %w", err)
	}
	if len(page.Posts) > pageSize {
		page.NextPageToken = page.Posts[pageSize-1].Slug
		page.Posts = page.Posts[:pageSize]
	}
	return page, nil
}

// DeletePost removes one index record.
func (s *Store) DeletePost(ctx context.Context, slug string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("store: not configured")
	}

	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM posts WHERE slug = ?`, slug)
	if err != nil {
		return fmt.Errorf("store: delete post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete post: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplacePosts swaps the whole index for the given records in one
// transaction.
func (s *Store) ReplacePosts(ctx context.Context, recs []PostRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("store: not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: replace posts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM posts`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: replace posts: %w", err)
	}
	for _, rec := range recs {
		if strings.TrimSpace(rec.Slug) == "" {
			_ = tx.Rollback()
			return fmt.Errorf("store: replace posts: slug is required")
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO posts (slug, path, title, date, description, categories, draft, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Slug,
			rec.Path,
			rec.Title,
			toMillis(rec.Date),
			rec.Description,
			strings.Join(rec.Categories, " "),
			boolToInt(rec.Draft),
			toMillis(orNow(rec.UpdatedAt)),
		); err != nil {
			_ = tx.Rollback()
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
				return ErrAlreadyExists
			}
			return fmt.Errorf("store: replace posts: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: replace posts: %w", err)
	}
	return nil
}

// RecordFromPost converts a parsed post into its index form.
func RecordFromPost(post models.Post) PostRecord {
	return PostRecord{
		Slug:        post.Slug,
		Path:        post.Path,
		Title:       post.Meta.Title,
		Date:        post.Meta.Date,
		Description: post.Meta.Description,
		Categories:  post.Meta.Categories,
		Draft:       post.Draft,
		UpdatedAt:   time.Now().UTC(),
	}
}

func scanPost(scan func(dest ...any) error) (PostRecord, error) {
	var rec PostRecord
	var date, updatedAt int64
	var categories string
	var draft int
	if err := scan(
		&rec.Slug,
		&rec.Path,
		&rec.Title,
		&date,
		&rec.Description,
		&categories,
		&draft,
		&updatedAt,
	); err != nil {
		return PostRecord{}, err
	}
	rec.Date = fromMillis(date)
	rec.UpdatedAt = fromMillis(updatedAt)
	rec.Draft = draft != 0
	if categories != "" {
		rec.Categories = strings.Fields(categories)
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
