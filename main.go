package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"relnotes/pkg/cards"
	"relnotes/pkg/config"
	"relnotes/pkg/content"
	"relnotes/pkg/gitops"
	"relnotes/pkg/handlers"
	"relnotes/pkg/site"
	"relnotes/pkg/store"
)

func main() {
	buildOnly := flag.Bool("build", false, "build the site once and exit")
	flag.Parse()

	if err := run(*buildOnly); err != nil {
		log.Fatalf("relnotes: %v", err)
	}
}

func run(buildOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	siteCfg, err := config.LoadSite(cfg.SiteDir)
	if err != nil {
		return err
	}

	idx, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := idx.Close(); err != nil {
			log.Printf("relnotes: close store: %v", err)
		}
	}()

	repo := content.New(cfg.SiteDir, siteCfg.PostsDir, cfg.LoadConcurrency)

	cardRenderer, err := cards.New(siteCfg.Title, siteCfg.Accents, cfg.CardFont)
	if err != nil {
		return err
	}

	builder, err := site.New(siteCfg, cfg.SiteDir, cfg.PublicDir, cfg.ThemeDir, cardRenderer, idx)
	if err != nil {
		return err
	}

	if buildOnly {
		posts, err := repo.Published(context.Background(), cfg.IncludeDrafts)
		if err != nil {
			return err
		}
		res, err := builder.Build(context.Background(), posts)
		if err != nil {
			return err
		}
		log.Printf("relnotes: built %d pages, %d cards", res.Pages, res.Cards)
		return nil
	}

	git := &gitops.Client{
		Dir:       cfg.SiteDir,
		Remote:    cfg.GitRemote,
		Branch:    cfg.GitBranch,
		UserName:  cfg.GitUserName,
		UserEmail: cfg.GitUserEmail,
	}

	h := &handlers.Handler{
		Cfg:     cfg,
		Site:    siteCfg,
		Repo:    repo,
		Store:   idx,
		Builder: builder,
		Git:     git,
		OAuth:   cfg.OAuth(),
	}

	r := gin.Default()

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		// The gorilla default is Secure + SameSite=None, which browsers and
		// clients drop over plain HTTP.
		Secure: strings.HasPrefix(cfg.AppURL, "https://"),
	})
	r.Use(sessions.Sessions("relnotes_session", sessionStore))

	r.LoadHTMLGlob("templates/*")
	r.Static("/static", "./static")
	r.Static(cfg.PreviewURL, cfg.PublicDir)

	h.Register(r)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("relnotes: listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("relnotes: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
