package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"prioritylist/api/internal/app"
	"prioritylist/api/internal/authpw"
	"prioritylist/api/internal/export"
	"prioritylist/api/internal/linkpreview"
	"prioritylist/api/internal/search"
	"prioritylist/api/internal/session"
	"prioritylist/api/internal/tree"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the Meilisearch index from the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(cfg.MeiliURL) == "" {
			return errors.New("MEILI_URL is not configured")
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.DB().Close()

		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meili.Close()
		search.NewService(meili, search.NewSQL(st.DB(), st.Dialect()), log).ReindexAll(cmd.Context())
		return nil
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.DB().Close()

	trees := tree.New(st, log.With("component", "tree"), tree.Options{DefaultListLimit: cfg.ListDefaultLimit})

	var sessions session.Store = st
	var previewCache *linkpreview.RedisCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		sessions = redisStore
		previewCache = linkpreview.NewRedisCache(redisStore.Client(), cfg.PreviewCacheTTL)
		log.Info("using redis for sessions and preview cache")
	} else {
		log.Info("using database for sessions")
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log.With("component", "search"))
		defer meili.Close()
	}
	searchService := search.NewService(meili, search.NewSQL(st.DB(), st.Dialect()), log.With("component", "search"))
	if meili != nil {
		go searchService.ReindexAll(ctx)
	}

	exports := export.NewService(trees, newExportStorage(ctx), log.With("component", "export"))
	previews := linkpreview.NewService(
		linkpreview.NewFetcher(linkpreview.Options{Timeout: cfg.PreviewTimeout}),
		previewCache,
		log.With("component", "linkpreview"),
	)

	service := app.New(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, app.Deps{
		Users:     st,
		Sessions:  sessions,
		Passwords: authpw.NewService(st),
		Trees:     trees,
		Search:    searchService,
		Previews:  previews,
		Exports:   exports,
		Log:       log.With("component", "app"),
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin, log.With("component", "http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("priority list API listening", "addr", cfg.Addr, "driver", cfg.DatabaseDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", "error", err)
	}
	return nil
}

// newExportStorage returns nil when MinIO is not configured or unreachable;
// exports then work without the store option.
func newExportStorage(ctx context.Context) *export.Storage {
	if strings.TrimSpace(cfg.MinioEndpoint) == "" {
		return nil
	}
	storage, err := export.NewStorage(export.StorageConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Warn("export storage disabled", "error", err)
		return nil
	}

	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := storage.EnsureBucket(ensureCtx); err != nil {
		log.Warn("export storage disabled", "bucket", cfg.MinioBucket, "error", err)
		return nil
	}
	return storage
}
