package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"clv-dashboard/internal/config"
	"clv-dashboard/internal/middleware"
	"clv-dashboard/internal/observability"
	"clv-dashboard/internal/predictor"
	"clv-dashboard/internal/server"
	"clv-dashboard/internal/services"
	"clv-dashboard/internal/store"
	"clv-dashboard/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	cacheMaxAge   = "no-cache"
)

// dashboardHandler renders the page shell with the selectable customer ids.
func dashboardHandler(clv *services.CLV) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		ids := clv.CustomerIDs()
		props := templates.DashboardProps{CustomerIDs: ids}
		if selected := r.URL.Query().Get("customer"); selected != "" {
			props.Selected = selected
		} else if len(ids) > 0 {
			props.Selected = ids[0]
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", cacheMaxAge)
		if err := templates.Dashboard(props).Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"addr", cfg.Address(),
		"features_file", cfg.Data.FeaturesFile,
		"transactions_file", cfg.Data.TransactionsFile,
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Data.LoadTimeout)
	defer cancel()

	start := time.Now()
	dataStore, err := store.Load(ctx, cfg.Data, observability.Component(logger, "store"))
	if err != nil {
		logger.Error("failed to load data", "error", err)
		os.Exit(1)
	}

	registry, err := predictor.LoadRegistry(ctx, cfg.Models, observability.Component(logger, "predictor"))
	if registry == nil {
		logger.Error("failed to load models", "error", err)
		os.Exit(1)
	}
	if err != nil {
		logger.Warn("some models are unavailable, predictions will fail", "error", err)
	}
	logger.Info("startup artefacts loaded", "duration", time.Since(start))

	clv := services.NewCLV(dataStore, registry, observability.Component(logger, "clv"))

	templateHandlers := &server.TemplateHandlers{
		Dashboard: dashboardHandler(clv),
	}

	srv := server.NewServer(clv, logger, templateHandlers, server.Options{
		CurrencySymbol: cfg.Display.CurrencySymbol,
	})

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	handler := middlewareChain(srv)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook("clv", func(ctx context.Context) error {
		logger.Info("shutting down clv service", "stats", clv.Stats())
		return nil
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
