package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"relnotes/pkg/content"
	"relnotes/pkg/frontmatter"
	"relnotes/pkg/models"
)

// postPayload is the editor's view of a document: either structured front
// matter plus body, or raw content.
type postPayload struct {
	Path        string         `json:"path" binding:"required"`
	FrontMatter map[string]any `json:"frontmatter"`
	Body        string         `json:"body"`
	Format      string         `json:"format"`
	Content     string         `json:"content"`
}

func (p postPayload) bytes() ([]byte, error) {
	if p.FrontMatter == nil {
		return []byte(p.Content), nil
	}
	return frontmatter.Construct(p.FrontMatter, p.Body, frontmatter.Format(p.Format))
}

// ListPosts returns the cached post listing.
func (h *Handler) ListPosts(c *gin.Context) {
	posts, err := h.Repo.Posts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load posts"})
		return
	}

	type entry struct {
		Path  string    `json:"path"`
		Slug  string    `json:"slug"`
		Title string    `json:"title"`
		Date  time.Time `json:"date"`
		Draft bool      `json:"draft"`
		Dirty bool      `json:"is_dirty"`
	}
	out := make([]entry, 0, len(posts))
	for _, p := range posts {
		out = append(out, entry{
			Path:  p.Path,
			Slug:  p.Slug,
			Title: p.Meta.Title,
			Date:  p.Meta.Date,
			Draft: p.Draft,
			Dirty: p.Dirty,
		})
	}
	c.JSON(http.StatusOK, out)
}

// GetPost returns one parsed post by its path.
func (h *Handler) GetPost(c *gin.Context) {
	post, err := h.Repo.Get(c.Query("path"))
	if err != nil {
		if errors.Is(err, content.ErrUnsafePath) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	c.JSON(http.StatusOK, post)
}

// SavePost writes the editor state back to disk.
func (h *Handler) SavePost(c *gin.Context) {
	var req postPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	var err error
	if req.FrontMatter != nil {
		err = h.Repo.Save(req.Path, req.FrontMatter, req.Body, req.Format)
	} else {
		err = h.Repo.SaveRaw(req.Path, []byte(req.Content))
	}
	if err != nil {
		if errors.Is(err, content.ErrUnsafePath) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// CreatePost creates a new dated post file from a title.
func (h *Handler) CreatePost(c *gin.Context) {
	var req struct {
		Title      string   `json:"title" binding:"required"`
		Date       string   `json:"date"`
		Categories []string `json:"categories"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	var date time.Time
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	post, err := h.Repo.Create(req.Title, date, req.Categories)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			c.JSON(http.StatusConflict, gin.H{"error": "post already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "created", "post": post})
}

// ValidatePost runs the document checks over either a stored post or
// supplied content and reports every problem found.
func (h *Handler) ValidatePost(c *gin.Context) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	var post models.Post
	switch {
	case req.Content != "":
		fields, body, format, err := frontmatter.Parse([]byte(req.Content))
		if err != nil {
			c.JSON(http.StatusOK, gin.H{
				"valid":    false,
				"problems": []models.Problem{{Kind: models.ProblemFrontMatter, Message: err.Error()}},
			})
			return
		}
		meta, err := models.MetadataFromMap(fields)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{
				"valid":    false,
				"problems": []models.Problem{{Kind: models.ProblemFrontMatter, Message: err.Error()}},
			})
			return
		}
		post = models.Post{FrontMatter: fields, Body: body, Format: string(format), Meta: meta}
	case req.Path != "":
		var err error
		post, err = h.Repo.Get(req.Path)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "path or content is required"})
		return
	}

	problems := content.Validate(post)
	c.JSON(http.StatusOK, gin.H{"valid": len(problems) == 0, "problems": problems})
}

// DiffPost compares the editor state against the saved, normalized document.
func (h *Handler) DiffPost(c *gin.Context) {
	var req postPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	full, err := h.Repo.SafeJoin(req.Path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
		return
	}

	saved, err := os.ReadFile(full)
	if err != nil {
		saved = nil
	}
	saved = frontmatter.Normalize(saved)

	editor, err := req.bytes()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "construction failed: " + err.Error()})
		return
	}
	editor = frontmatter.Normalize(editor)

	diff, kind, err := h.Git.Diff(saved, editor, filepath.Join(h.Site.PostsDir, req.Path))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "diff failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"diff": diff, "type": kind})
}
