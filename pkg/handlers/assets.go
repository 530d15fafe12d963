package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Asset describes one file under the site's assets directory.
type Asset struct {
	Name string `json:"name"`
	// Path is the URL to reference the asset with from Markdown.
	Path string `json:"path"`
	Size int64  `json:"size"`
}

func (h *Handler) assetsDir() string {
	return filepath.Join(h.Cfg.SiteDir, h.Site.AssetsDir)
}

// assetJoin resolves a name inside the assets directory, rejecting
// traversal.
func (h *Handler) assetJoin(name string) (string, bool) {
	dir := h.assetsDir()
	clean := filepath.Clean("/" + name)
	full := filepath.Join(dir, clean)
	if full == dir || !strings.HasPrefix(full, dir+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

func (h *Handler) assetURL(name string) string {
	return strings.TrimSuffix(h.Site.AssetsURL, "/") + "/" + name
}

// ListAssets lists the files in the assets directory.
func (h *Handler) ListAssets(c *gin.Context) {
	dir := h.assetsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open assets dir"})
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list assets"})
		return
	}

	assets := make([]Asset, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		assets = append(assets, Asset{
			Name: entry.Name(),
			Path: h.assetURL(entry.Name()),
			Size: info.Size(),
		})
	}
	c.JSON(http.StatusOK, assets)
}

// UploadAsset stores one multipart file upload. The stored name carries a
// timestamp so re-uploads never clobber an older asset.
func (h *Handler) UploadAsset(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}

	filename := filepath.Base(header.Filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	ext := filepath.Ext(filename)
	filename = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(filename, ext), time.Now().Unix(), ext)

	full, ok := h.assetJoin(filename)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file"})
		return
	}
	if err := c.SaveUploadedFile(header, full); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file"})
		return
	}

	c.JSON(http.StatusOK, Asset{
		Name: filename,
		Path: h.assetURL(filename),
		Size: header.Size,
	})
}

// DeleteAsset removes one asset by name.
func (h *Handler) DeleteAsset(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	full, ok := h.assetJoin(req.Name)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete asset"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ServeAssetRaw streams one asset, for editor previews.
func (h *Handler) ServeAssetRaw(c *gin.Context) {
	name := c.Query("path")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	full, ok := h.assetJoin(name)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(full)
}
