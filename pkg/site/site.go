// Package site turns loaded posts into the static output tree: HTML pages,
// category listings, feeds, a sitemap and per-post share cards.
package site

import (
	"bytes"
	"context"
	"embed"
	"encoding/xml"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"relnotes/pkg/cards"
	"relnotes/pkg/markdown"
	"relnotes/pkg/models"
	"relnotes/pkg/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// feedLimit caps the number of entries in the RSS and Atom feeds.
const feedLimit = 20

// Builder renders the static site.
type Builder struct {
	Site      models.SiteConfig
	SiteDir   string
	PublicDir string
	// ThemeDir optionally overrides embedded templates by file name.
	ThemeDir string

	Cards *cards.Renderer
	Store store.Index

	tmpl *template.Template
}

// RenderedPost is a post with its body rendered, as the templates see it.
type RenderedPost struct {
	models.Post
	HTML      template.HTML
	Permalink string
}

type pageData struct {
	Site        models.SiteConfig
	Title       string
	Description string
	Card        string
	Category    string
	Post        *RenderedPost
	Posts       []RenderedPost
}

// Result summarizes one build.
type Result struct {
	BuildID string `json:"build_id,omitempty"`
	Pages   int    `json:"pages"`
	Cards   int    `json:"cards"`
	Log     string `json:"log"`
}

// New prepares a builder, parsing the embedded template set plus any theme
// overrides.
func New(siteCfg models.SiteConfig, siteDir, publicDir, themeDir string, cardRenderer *cards.Renderer, idx store.Index) (*Builder, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("site: parse templates: %w", err)
	}
	if themeDir != "" {
		if _, statErr := os.Stat(themeDir); statErr == nil {
			tmpl, err = tmpl.ParseGlob(filepath.Join(themeDir, "*.html"))
			if err != nil {
				return nil, fmt.Errorf("site: parse theme templates: %w", err)
			}
		}
	}
	return &Builder{
		Site:      siteCfg,
		SiteDir:   siteDir,
		PublicDir: publicDir,
		ThemeDir:  themeDir,
		Cards:     cardRenderer,
		Store:     idx,
		tmpl:      tmpl,
	}, nil
}

// Build renders posts into the public directory. The output is written to a
// temporary sibling directory first and swapped in only on success, so a
// failed build never leaves a half-written tree. The run is recorded to the
// store when one is configured.
func (b *Builder) Build(ctx context.Context, posts []models.Post) (Result, error) {
	var buildID string
	if b.Store != nil {
		build, err := b.Store.StartBuild(ctx)
		if err != nil {
			return Result{}, err
		}
		buildID = build.ID
	}

	res, err := b.build(ctx, posts)
	res.BuildID = buildID

	if b.Store != nil {
		status := store.BuildOK
		log := res.Log
		if err != nil {
			status = store.BuildError
			log = log + "error: " + err.Error() + "\n"
		}
		// Finish the record even when the request context is gone, or the
		// build row stays running forever.
		finishCtx := context.WithoutCancel(ctx)
		if finishErr := b.Store.FinishBuild(finishCtx, buildID, status, res.Pages, res.Cards, log); finishErr != nil {
			if err == nil {
				err = finishErr
			}
		}
		if err == nil {
			recs := make([]store.PostRecord, 0, len(posts))
			for _, p := range posts {
				recs = append(recs, store.RecordFromPost(p))
			}
			if idxErr := b.Store.ReplacePosts(ctx, recs); idxErr != nil {
				err = idxErr
			}
		}
	}
	return res, err
}

func (b *Builder) build(ctx context.Context, posts []models.Post) (res Result, err error) {
	var log strings.Builder
	defer func() { res.Log = log.String() }()

	parent := filepath.Dir(b.PublicDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return res, fmt.Errorf("site: prepare output: %w", err)
	}
	tmp, err := os.MkdirTemp(parent, ".build-*")
	if err != nil {
		return res, fmt.Errorf("site: temp output dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	rendered := make([]RenderedPost, 0, len(posts))
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		html, err := markdown.Render([]byte(post.Body))
		if err != nil {
			return res, fmt.Errorf("site: post %s: %w", post.Slug, err)
		}
		rendered = append(rendered, RenderedPost{
			Post:      post,
			HTML:      template.HTML(html),
			Permalink: b.Site.URL + "/posts/" + post.Slug + "/",
		})
	}

	// Per-post pages and cards.
	for i := range rendered {
		post := &rendered[i]
		data := pageData{
			Site:        b.Site,
			Title:       post.Meta.Title,
			Description: post.Meta.Description,
			Card:        b.Site.URL + "/cards/" + post.Slug + ".png",
			Post:        post,
		}
		page := filepath.Join(tmp, "posts", post.Slug, "index.html")
		if err := b.writeTemplate(page, "post", data); err != nil {
			return res, fmt.Errorf("site: post %s: %w", post.Slug, err)
		}
		res.Pages++
		log.WriteString("page posts/" + post.Slug + "/\n")

		if b.Cards != nil {
			png, err := b.Cards.Render(post.Post)
			if err != nil {
				return res, fmt.Errorf("site: card %s: %w", post.Slug, err)
			}
			cardPath := filepath.Join(tmp, "cards", post.Slug+".png")
			if err := writeFile(cardPath, png); err != nil {
				return res, err
			}
			res.Cards++
			log.WriteString("card cards/" + post.Slug + ".png\n")
		}
	}

	// Index.
	indexData := pageData{
		Site:        b.Site,
		Title:       b.Site.Title,
		Description: b.Site.Description,
		Posts:       rendered,
	}
	if err := b.writeTemplate(filepath.Join(tmp, "index.html"), "index", indexData); err != nil {
		return res, fmt.Errorf("site: index: %w", err)
	}
	res.Pages++
	log.WriteString("page index\n")

	// Category listings.
	for _, category := range categories(rendered) {
		var members []RenderedPost
		for _, post := range rendered {
			for _, c := range post.Meta.Categories {
				if c == category {
					members = append(members, post)
					break
				}
			}
		}
		data := pageData{
			Site:     b.Site,
			Title:    category,
			Category: category,
			Posts:    members,
		}
		page := filepath.Join(tmp, "categories", category, "index.html")
		if err := b.writeTemplate(page, "category", data); err != nil {
			return res, fmt.Errorf("site: category %s: %w", category, err)
		}
		res.Pages++
		log.WriteString("page categories/" + category + "/\n")
	}

	// Feeds and sitemap.
	rss, atom, err := b.feeds(rendered)
	if err != nil {
		return res, err
	}
	if err := writeFile(filepath.Join(tmp, "feed.xml"), []byte(rss)); err != nil {
		return res, err
	}
	if err := writeFile(filepath.Join(tmp, "atom.xml"), []byte(atom)); err != nil {
		return res, err
	}
	sitemap, err := b.sitemap(rendered)
	if err != nil {
		return res, err
	}
	if err := writeFile(filepath.Join(tmp, "sitemap.xml"), sitemap); err != nil {
		return res, err
	}
	log.WriteString("feed feed.xml atom.xml sitemap.xml\n")

	// Static assets travel verbatim.
	assetsDir := filepath.Join(b.SiteDir, b.Site.AssetsDir)
	if _, err := os.Stat(assetsDir); err == nil {
		target := filepath.Join(tmp, strings.Trim(b.Site.AssetsURL, "/"))
		if err := copyTree(assetsDir, target); err != nil {
			return res, fmt.Errorf("site: copy assets: %w", err)
		}
		log.WriteString("assets copied\n")
	}

	if err := b.swap(tmp); err != nil {
		return res, err
	}
	return res, nil
}

// swap moves the finished tree into place, keeping the old tree until the
// new one is in.
func (b *Builder) swap(tmp string) error {
	stale := b.PublicDir + ".old"
	_ = os.RemoveAll(stale)

	hadOld := false
	if _, err := os.Stat(b.PublicDir); err == nil {
		hadOld = true
		if err := os.Rename(b.PublicDir, stale); err != nil {
			return fmt.Errorf("site: stage old output: %w", err)
		}
	}
	if err := os.Rename(tmp, b.PublicDir); err != nil {
		if hadOld {
			_ = os.Rename(stale, b.PublicDir)
		}
		return fmt.Errorf("site: swap output: %w", err)
	}
	_ = os.RemoveAll(stale)
	return nil
}

func (b *Builder) writeTemplate(path, name string, data pageData) error {
	var buf bytes.Buffer
	if err := b.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	if len(bytes.TrimSpace(buf.Bytes())) == 0 {
		return fmt.Errorf("template %s produced empty output", name)
	}
	return writeFile(path, buf.Bytes())
}

func (b *Builder) feeds(posts []RenderedPost) (rss, atom string, err error) {
	feed := &feeds.Feed{
		Title:       b.Site.Title,
		Link:        &feeds.Link{Href: b.Site.URL + "/"},
		Description: b.Site.Description,
		Updated:     time.Now(),
	}
	if b.Site.Author != "" {
		feed.Author = &feeds.Author{Name: b.Site.Author}
	}
	for i, post := range posts {
		if i == feedLimit {
			break
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          post.Permalink,
			Title:       post.Meta.Title,
			Link:        &feeds.Link{Href: post.Permalink},
			Description: post.Meta.Description,
			Content:     string(post.HTML),
			Created:     post.Meta.Date,
		})
	}
	rss, err = feed.ToRss()
	if err != nil {
		return "", "", fmt.Errorf("site: rss: %w", err)
	}
	atom, err = feed.ToAtom()
	if err != nil {
		return "", "", fmt.Errorf("site: atom: %w", err)
	}
	return rss, atom, nil
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type sitemapSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

func (b *Builder) sitemap(posts []RenderedPost) ([]byte, error) {
	set := sitemapSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  []sitemapURL{{Loc: b.Site.URL + "/"}},
	}
	for _, post := range posts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     post.Permalink,
			LastMod: post.Meta.Date.Format("2006-01-02"),
		})
	}
	for _, category := range categories(posts) {
		set.URLs = append(set.URLs, sitemapURL{
			Loc: b.Site.URL + "/categories/" + category + "/",
		})
	}
	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("site: sitemap: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// categories returns the distinct category names across posts, sorted.
func categories(posts []RenderedPost) []string {
	seen := make(map[string]bool)
	for _, post := range posts {
		for _, c := range post.Meta.Categories {
			seen[c] = true
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("site: write %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("site: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}
