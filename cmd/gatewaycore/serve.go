package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	gatewaycore "github.com/ferro-labs/gateway-core"
	"github.com/ferro-labs/gateway-core/internal/admin"
	"github.com/ferro-labs/gateway-core/internal/logging"
	"github.com/ferro-labs/gateway-core/internal/version"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduling core and its HTTP API",
		Long:  "Start polling every configured provider and serve /health, /metrics and the /admin API.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", ":"+envOr("PORT", "8080"), "listen address, defaults to :$PORT")
	cmd.Flags().StringSlice("cors-origin", splitNonEmpty(os.Getenv("CORS_ORIGINS")), "allowed CORS origins, defaults to $CORS_ORIGINS")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	log := logging.Logger

	core, err := gatewaycore.New(*cfg, gatewaycore.WithLogger(log))
	if err != nil {
		return fmt.Errorf("creating core: %w", err)
	}

	var tokens admin.TokenStore
	if len(cfg.Admin.Tokens) > 0 {
		tc := make([]admin.TokenConfig, 0, len(cfg.Admin.Tokens))
		for _, t := range cfg.Admin.Tokens {
			tc = append(tc, admin.TokenConfig{Name: t.Name, Token: t.Token, TokenEnv: t.TokenEnv, Scope: t.Scope})
		}
		st, err := admin.NewStaticTokens(tc)
		if err != nil {
			return err
		}
		tokens = st
	} else {
		log.Warn("admin API disabled: no admin tokens configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := core.Start(ctx); err != nil {
		return fmt.Errorf("starting core: %w", err)
	}

	addr, _ := cmd.Flags().GetString("addr")
	origins, _ := cmd.Flags().GetStringSlice("cors-origin")
	srv := &http.Server{
		Addr:         addr,
		Handler:      newRouter(core, tokens, origins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gatewaycore listening",
			"version", version.Short(),
			"addr", addr,
			"providers", len(core.Providers()),
			"sinks", len(core.Sinks()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			_ = core.Stop(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return errors.Join(srv.Shutdown(shutdownCtx), core.Stop(shutdownCtx))
}

// newRouter builds the HTTP router. A nil token store leaves /admin
// unmounted.
func newRouter(core *gatewaycore.Core, tokens admin.TokenStore, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(corsOrigins...))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		summary := core.HealthSummary()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":            "ok",
			"providers":         summary.TotalProviders,
			"healthy":           summary.HealthyProviders,
			"open_circuits":     summary.OpenCircuits,
			"scheduler_running": summary.SchedulerRunning,
			"version":           version.Get(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	if tokens != nil {
		handlers := &admin.Handlers{Core: core}
		r.Route("/admin", func(r chi.Router) {
			r.Use(admin.AuthMiddleware(tokens))
			r.Mount("/", handlers.Routes())
		})
	}
	return r
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
