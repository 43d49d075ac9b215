package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"spendwise/internal/auth"
	"spendwise/internal/budgets"
	"spendwise/internal/config"
	"spendwise/internal/expenses"
	"spendwise/internal/handlers"
	"spendwise/internal/log"
	"spendwise/internal/metrics"
	"spendwise/internal/receipts"
	"spendwise/internal/report"
	"spendwise/internal/storage"
	"spendwise/web"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{Level: cfg.LogLevel, Component: log.ComponentApp, Output: os.Stdout})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", log.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(log.NewContext(context.Background(), logger), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server error", log.FieldError, err)
		stop()
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// run serves until ctx is cancelled or the listener fails. Everything it
// opens is released before it returns.
func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	db, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithComponent(log.ComponentStorage).Error("Failed to close database", log.FieldError, err)
		}
	}()
	logger.WithComponent(log.ComponentStorage).Info("Database ready", "dialect", db.Dialect())

	m := metrics.New()

	store, err := receipts.New(ctx, cfg, m)
	if err != nil {
		return fmt.Errorf("initialize receipt storage: %w", err)
	}

	var google *auth.GoogleProvider
	if cfg.GoogleEnabled() {
		google = auth.NewGoogleProvider(auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			DiscoveryURL: cfg.GoogleDiscoveryURL,
		})
	}
	authService := auth.NewService(db, google, m)

	h := handlers.NewHandlers(handlers.Deps{
		Auth:      authService,
		Expenses:  expenses.NewService(db, store, m),
		Budgets:   budgets.NewService(db),
		Reports:   report.NewGenerator(db, cfg.CurrencyPrefix),
		Receipts:  store.Local(),
		DB:        db,
		Templates: web.Templates(),
	}, handlers.Options{
		SecretKey:        []byte(cfg.SecretKey),
		SecureCookies:    cfg.SecureCookies,
		CurrencyPrefix:   cfg.CurrencyPrefix,
		OAuthRedirectURL: cfg.OAuthRedirectURL,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        setupRouter(h, m, web.Static(), logger),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16, // 64KB
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server",
			log.FieldOperation, log.OpStartup,
			"port", cfg.Port,
			"database", db.Dialect(),
			log.FieldBackend, store.Backend(),
			"google_login", authService.GoogleEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		cleanSessions(ctx, authService, cfg.SessionCleanupInterval)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func setupRouter(h *handlers.Handlers, m *metrics.Metrics, static fs.FS, logger *log.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	// Public routes
	mux.HandleFunc("GET /login", h.LoginPage)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /register", h.RegisterPage)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("GET /google_login", h.GoogleLogin)
	mux.HandleFunc("GET /google_login/callback", h.GoogleCallback)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.Handle("GET /metrics", m.Handler())

	// Protected routes
	protected := func(f http.HandlerFunc) http.Handler {
		return h.AuthMiddleware(f)
	}
	mux.Handle("GET /{$}", protected(h.Index))
	mux.Handle("GET /logout", protected(h.Logout))
	mux.Handle("GET /add_expense", protected(h.AddExpensePage))
	mux.Handle("POST /add_expense", protected(h.AddExpense))
	mux.Handle("POST /delete_expense", protected(h.DeleteExpense))
	mux.Handle("GET /budget", protected(h.Budget))
	mux.Handle("POST /add_budget", protected(h.AddBudget))
	mux.Handle("POST /delete_budget", protected(h.DeleteBudget))
	mux.Handle("GET /download_report", protected(h.DownloadReport))
	mux.Handle("GET /charts/categories.png", protected(h.CategoryChart))
	mux.Handle("GET /charts/monthly.png", protected(h.MonthlyChart))
	mux.Handle("GET /receipts/{name}", protected(h.Receipt))

	var handler http.Handler = m.Middleware(mux)
	handler = handlers.SecurityHeaders(handlers.DefaultHeadersConfig())(handler)
	handler = log.Middleware(logger)(handler)
	return handler
}

func cleanSessions(ctx context.Context, svc *auth.Service, every time.Duration) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAuth)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.CleanExpiredSessions(ctx)
			if err != nil {
				logger.Error("Failed to clean expired sessions", log.FieldError, err)
				continue
			}
			if n > 0 {
				logger.Info("Expired sessions removed", "count", n)
			}
		}
	}
}
