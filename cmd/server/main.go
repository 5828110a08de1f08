package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/civicpulse/backend/internal/app"
	"github.com/civicpulse/backend/internal/config"
	"github.com/civicpulse/backend/internal/handlers"
	appMiddleware "github.com/civicpulse/backend/internal/middleware"
	"github.com/civicpulse/backend/internal/services"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	images, err := app.NewImageStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize image store: %v", err)
	}
	screener := app.NewScreener(ctx, cfg)
	cancel()

	classifier, err := app.NewClassifier(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize classifier: %v", err)
	}

	// Initialize services
	governor := services.NewSubmissionGovernor(store, services.DefaultGovernorConfig(), cfg.Location)
	issueService := services.NewIssueService(services.IssueDeps{
		Store:      store,
		Governor:   governor,
		Classifier: classifier,
		Impact:     services.NewKeywordLocationImpact(),
		Images:     images,
		Screener:   screener,
	})
	authService := services.NewAuthService(store, app.NewVerifier(cfg))
	ledger := services.NewTrustLedger(store, app.NewBanNotifier(cfg))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, cfg.JWTSecret, cfg.JWTExpiration)
	issueHandler := handlers.NewIssueHandler(issueService, cfg.MaxUploadSizeMB)
	adminHandler := handlers.NewAdminHandler(issueService, ledger)

	r := newRouter(cfg, authHandler, issueHandler, adminHandler)

	server := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// signal.Notify requires the channel to be buffered
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	log.Printf("CivicPulse API server starting on %s (store=%s images=%s classifier=%s)",
		cfg.ServerAddress, cfg.Store, cfg.ImageStore, classifier.Name())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if err := store.Close(closeCtx); err != nil {
		log.Printf("Store close: %v", err)
	}
	if c, ok := images.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.Printf("Image store close: %v", err)
		}
	}
}

func newRouter(cfg *config.Config, authHandler *handlers.AuthHandler, issueHandler *handlers.IssueHandler, adminHandler *handlers.AdminHandler) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.JWTAuth(cfg.JWTSecret))

			r.Get("/user/me", authHandler.GetProfile)
			r.Get("/user/issues", issueHandler.ListMyIssues)

			r.Route("/issues", func(r chi.Router) {
				r.Get("/", issueHandler.ListIssues)
				r.Post("/", issueHandler.CreateIssue)
				r.Get("/{issueId}", issueHandler.GetIssue)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(appMiddleware.RequireAdmin)

				r.Get("/issues/priority", adminHandler.PriorityQueue)
				r.Get("/stats", adminHandler.Stats)
				r.Put("/issues/{issueId}/status", adminHandler.UpdateStatus)
				r.Post("/issues/{issueId}/fraud", adminHandler.FlagFraud)
			})
		})
	})

	// Serve uploaded files
	if cfg.ImageStore == "local" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	}

	return r
}
