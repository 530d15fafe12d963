// Package handlers exposes the CMS surface over gin: session auth, the post
// editing API, site builds and asset management.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"relnotes/pkg/config"
	"relnotes/pkg/content"
	"relnotes/pkg/gitops"
	"relnotes/pkg/models"
	"relnotes/pkg/site"
	"relnotes/pkg/store"
)

// Handler carries the engine parts the HTTP surface works against.
type Handler struct {
	Cfg     config.Config
	Site    models.SiteConfig
	Repo    *content.Repository
	Store   store.Index
	Builder *site.Builder
	Git     *gitops.Client
	OAuth   *oauth2.Config
}

// Register wires every route onto the engine.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/login", h.LoginPage)
	r.POST("/login", h.LocalLogin)
	r.GET("/login/github", h.GithubLogin)
	r.GET("/auth/callback", h.AuthCallback)
	r.GET("/logout", h.Logout)

	authorized := r.Group("/")
	authorized.Use(h.AuthRequired)
	{
		authorized.GET("/", func(c *gin.Context) {
			c.HTML(http.StatusOK, "index.html", gin.H{
				"site":    h.Site,
				"preview": h.Cfg.PreviewURL,
			})
		})

		api := authorized.Group("/api")
		{
			api.GET("/posts", h.ListPosts)
			api.GET("/post", h.GetPost)
			api.POST("/post", h.SavePost)
			api.POST("/posts/create", h.CreatePost)
			api.POST("/validate", h.ValidatePost)
			api.POST("/build", h.RunBuild)
			api.GET("/builds", h.ListBuilds)
			api.POST("/diff", h.DiffPost)
			api.POST("/sync", h.Sync)
			api.POST("/publish", h.Publish)
			api.GET("/assets", h.ListAssets)
			api.POST("/assets", h.UploadAsset)
			api.POST("/assets/delete", h.DeleteAsset)
			api.GET("/assets/raw", h.ServeAssetRaw)
		}
	}
}

// AuthRequired gates the app behind a session: either a GitHub access token
// or a local admin login. API calls get a JSON 401, pages a redirect.
func (h *Handler) AuthRequired(c *gin.Context) {
	session := sessions.Default(c)
	if session.Get("access_token") != nil || session.Get("user") != nil {
		c.Next()
		return
	}
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Redirect(http.StatusFound, "/login")
	c.Abort()
}

// sessionToken returns the GitHub token of the current session, if any.
func sessionToken(c *gin.Context) string {
	session := sessions.Default(c)
	token, _ := session.Get("access_token").(string)
	return token
}
