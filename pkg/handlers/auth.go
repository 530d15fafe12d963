package handlers

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

// LoginPage renders the login form. Which methods it offers follows the
// configuration: OAuth, local password, or both.
func (h *Handler) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{
		"github": h.OAuth != nil,
		"local":  h.Cfg.LocalLoginEnabled(),
	})
}

// LocalLogin checks the submitted password against the configured bcrypt
// hash and opens an admin session.
func (h *Handler) LocalLogin(c *gin.Context) {
	if !h.Cfg.LocalLoginEnabled() {
		c.HTML(http.StatusForbidden, "login.html", gin.H{"error": "local login is not configured"})
		return
	}
	password := c.PostForm("password")
	if err := bcrypt.CompareHashAndPassword([]byte(h.Cfg.AdminPasswordHash), []byte(password)); err != nil {
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{
			"error":  "wrong password",
			"github": h.OAuth != nil,
			"local":  true,
		})
		return
	}

	session := sessions.Default(c)
	session.Set("user", "admin")
	if err := session.Save(); err != nil {
		c.String(http.StatusInternalServerError, "session save failed")
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// GithubLogin redirects to the GitHub authorization page.
func (h *Handler) GithubLogin(c *gin.Context) {
	if h.OAuth == nil {
		c.String(http.StatusForbidden, "GitHub login is not configured")
		return
	}
	url := h.OAuth.AuthCodeURL("state", oauth2.AccessTypeOffline)
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// AuthCallback exchanges the OAuth code and stores the access token in the
// session, where the publish pipeline picks it up.
func (h *Handler) AuthCallback(c *gin.Context) {
	if h.OAuth == nil {
		c.String(http.StatusForbidden, "GitHub login is not configured")
		return
	}
	code := c.Query("code")
	token, err := h.OAuth.Exchange(context.Background(), code)
	if err != nil {
		c.String(http.StatusInternalServerError, "OAuth exchange failed")
		return
	}

	session := sessions.Default(c)
	session.Set("access_token", token.AccessToken)
	if err := session.Save(); err != nil {
		c.String(http.StatusInternalServerError, "session save failed")
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// Logout clears the session.
func (h *Handler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	c.Redirect(http.StatusFound, "/login")
}
