package models

import "strings"

// SiteConfig is the site-level configuration read from site.yml in the
// site directory.
type SiteConfig struct {
	Title       string            `yaml:"title" json:"title"`
	URL         string            `yaml:"url" json:"url"`
	Description string            `yaml:"description" json:"description"`
	Author      string            `yaml:"author" json:"author"`
	PostsDir    string            `yaml:"posts_dir" json:"posts_dir"`
	AssetsDir   string            `yaml:"assets_dir" json:"assets_dir"`
	AssetsURL   string            `yaml:"assets_url" json:"assets_url"`
	Accents     map[string]string `yaml:"accents" json:"accents,omitempty"`
}

// DefaultSite returns the configuration used when site.yml is absent.
func DefaultSite() SiteConfig {
	return SiteConfig{
		Title:     "Release Notes",
		URL:       "http://localhost:8080",
		PostsDir:  "posts",
		AssetsDir: "assets",
		AssetsURL: "/assets/",
	}
}

// WithDefaults fills any unset field from DefaultSite.
func (s SiteConfig) WithDefaults() SiteConfig {
	def := DefaultSite()
	if s.Title == "" {
		s.Title = def.Title
	}
	if s.URL == "" {
		s.URL = def.URL
	}
	// Permalinks append "/..." to the base URL; a trailing slash here would
	// double up.
	s.URL = strings.TrimRight(s.URL, "/")
	if s.PostsDir == "" {
		s.PostsDir = def.PostsDir
	}
	if s.AssetsDir == "" {
		s.AssetsDir = def.AssetsDir
	}
	if s.AssetsURL == "" {
		s.AssetsURL = def.AssetsURL
	}
	return s
}
