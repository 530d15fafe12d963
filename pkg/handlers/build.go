package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// RunBuild builds the static site from the published posts and records the
// run.
func (h *Handler) RunBuild(c *gin.Context) {
	posts, err := h.Repo.Published(c.Request.Context(), h.Cfg.IncludeDrafts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "log": err.Error()})
		return
	}

	res, err := h.Builder.Build(c.Request.Context(), posts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "log": res.Log + err.Error(), "build": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "build": res})
}

// ListBuilds pages through the recorded build history, newest-first.
func (h *Handler) ListBuilds(c *gin.Context) {
	pageSize := 20
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "page_size must be a positive integer"})
			return
		}
		pageSize = n
	}

	page, err := h.Store.ListBuilds(c.Request.Context(), pageSize, c.Query("page_token"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list builds"})
		return
	}
	c.JSON(http.StatusOK, page)
}

// Sync pulls the content branch and drops the post cache.
func (h *Handler) Sync(c *gin.Context) {
	log, err := h.Git.Sync(sessionToken(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "log": log})
		return
	}
	h.Repo.Invalidate()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "log": log})
}

// Publish commits and pushes the work tree with the session's token.
func (h *Handler) Publish(c *gin.Context) {
	log, err := h.Git.Publish(sessionToken(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "log": log})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "log": log})
}
