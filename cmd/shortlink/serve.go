package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koopa0/shortlink/internal/config"
	"github.com/koopa0/shortlink/internal/handler"
	"github.com/koopa0/shortlink/internal/ratelimit"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.build(ctx); err != nil {
				a.logger.Error("startup failed", "error", err)
				return err
			}
			return a.serve(ctx)
		},
	}
}

// serve 運行 HTTP 服務直到 ctx 被取消，然後優雅關閉
func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	opts := handler.Options{
		CORSOrigin:     cfg.Server.CORSOrigin,
		CookieSecure:   cfg.Server.CookieSecure,
		RequestTimeout: cfg.Server.RequestTimeout,
		Checks: []handler.Check{
			{Name: "store", Ping: a.store.Ping},
			{Name: "cache", Ping: a.kv.Ping},
		},
	}

	if cfg.RateLimit.Enabled {
		keyFunc := ratelimit.ByIP(cfg.Server.TrustProxy)
		if cfg.RateLimit.KeyBy == config.KeyByVisitor {
			keyFunc = ratelimit.ByVisitor(keyFunc)
		}
		limiter := ratelimit.NewFixedWindow(a.kv, cfg.RateLimit.Prefix, a.logger)
		opts.RateLimit = ratelimit.Middleware(limiter, ratelimit.Policy{
			Window:  cfg.RateLimit.Window,
			Max:     cfg.RateLimit.Max,
			KeyFunc: keyFunc,
		})
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler.New(a.engine, opts, a.logger).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.logger.Info("starting server",
			"addr", srv.Addr,
			"store", cfg.Store.Driver,
			"cache", cfg.Cache.Driver,
			"base_url", cfg.Server.BaseURL)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server error", "error", err)
			return err
		}
		return nil

	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	}

	// 給予正在處理的請求時間完成
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("graceful shutdown failed", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			a.logger.Error("failed to force close server", "error", closeErr)
		}
		return err
	}

	a.logger.Info("server stopped")
	return nil
}
