// Package config loads process configuration from the environment and the
// site-level configuration from site.yml.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"relnotes/pkg/models"
)

// SiteFileName is the site configuration file looked up inside SiteDir.
const SiteFileName = "site.yml"

// Config is the process configuration. Every field can be set through the
// environment; a .env file in the working directory is loaded first.
type Config struct {
	ListenAddr      string `env:"LISTEN_ADDR" envDefault:":8080"`
	AppURL          string `env:"APP_URL" envDefault:"http://localhost:8080"`
	SiteDir         string `env:"SITE_DIR" envDefault:"./site"`
	PublicDir       string `env:"PUBLIC_DIR"`
	PreviewURL      string `env:"PREVIEW_URL" envDefault:"/preview/"`
	LoadConcurrency int    `env:"LOAD_CONCURRENCY" envDefault:"20"`
	IncludeDrafts   bool   `env:"INCLUDE_DRAFTS" envDefault:"false"`

	SessionSecret     string `env:"SESSION_SECRET"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL  string `env:"GITHUB_REDIRECT_URL"`

	GitUserName  string `env:"GIT_USER_NAME" envDefault:"relnotes bot"`
	GitUserEmail string `env:"GIT_USER_EMAIL" envDefault:"bot@relnotes.local"`
	GitBranch    string `env:"GIT_BRANCH" envDefault:"main"`
	GitRemote    string `env:"GIT_REMOTE" envDefault:"origin"`

	StorePath string `env:"STORE_PATH"`
	CardFont  string `env:"CARD_FONT"`
	ThemeDir  string `env:"THEME_DIR"`
}

// Load reads .env if present and parses the environment into a Config.
// Derived fields (public dir, store path, redirect URL) are filled from
// their parents when unset.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	if cfg.PublicDir == "" {
		cfg.PublicDir = filepath.Join(cfg.SiteDir, "public")
	}
	if cfg.StorePath == "" {
		cfg.StorePath = filepath.Join(cfg.SiteDir, ".relnotes", "relnotes.db")
	}
	if cfg.GitHubRedirectURL == "" {
		cfg.GitHubRedirectURL = cfg.AppURL + "/auth/callback"
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "relnotes-dev-secret"
		log.Printf("config: SESSION_SECRET not set, using a development secret")
	}
	if cfg.LoadConcurrency <= 0 {
		cfg.LoadConcurrency = 1
	}
	return cfg, nil
}

// OAuth returns the GitHub OAuth configuration, or nil when no client id
// is configured.
func (c Config) OAuth() *oauth2.Config {
	if c.GitHubClientID == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     c.GitHubClientID,
		ClientSecret: c.GitHubClientSecret,
		Scopes:       []string{"repo"},
		Endpoint:     github.Endpoint,
		RedirectURL:  c.GitHubRedirectURL,
	}
}

// LocalLoginEnabled reports whether password login is configured.
func (c Config) LocalLoginEnabled() bool {
	return c.AdminPasswordHash != ""
}

// LoadSite reads site.yml from the site directory. A missing file yields
// the defaults, not an error.
func LoadSite(siteDir string) (models.SiteConfig, error) {
	path := filepath.Join(siteDir, SiteFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.DefaultSite(), nil
		}
		return models.SiteConfig{}, fmt.Errorf("config: read %s: %w", SiteFileName, err)
	}

	var site models.SiteConfig
	if err := yaml.Unmarshal(content, &site); err != nil {
		return models.SiteConfig{}, fmt.Errorf("config: parse %s: %w", SiteFileName, err)
	}
	return site.WithDefaults(), nil
}
