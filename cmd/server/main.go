package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/proctor-cat/backend/internal/adaptive"
	"github.com/proctor-cat/backend/internal/calibration"
	"github.com/proctor-cat/backend/internal/config"
	"github.com/proctor-cat/backend/internal/database"
	"github.com/proctor-cat/backend/internal/logger"
	"github.com/proctor-cat/backend/internal/metrics"
	"github.com/proctor-cat/backend/internal/middleware"
	"github.com/proctor-cat/backend/internal/models"
	"github.com/proctor-cat/backend/internal/questions"
	"github.com/proctor-cat/backend/internal/worker"
	"github.com/rs/cors"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(logger.Options{
		Mode:    cfg.LogMode,
		Level:   cfg.LogLevel,
		Service: cfg.ServiceName,
	})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	for _, w := range cfg.Warnings {
		log.Warn("config", "warning", w)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	// Initialize database
	db, err := database.Connect(cfg.DB.DSN())
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	// Engines and background calibration
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	m := metrics.New()
	engine := adaptive.New(cfg.Adaptive, log)
	calibrator := calibration.New(cfg.Calibration, log)
	pool := worker.NewPool[models.CalibrationSummary](ctx, cfg.CalibrationWorkers, 8)

	svc := questions.NewService(questions.NewStore(db), engine, calibrator, pool, m, log)
	svc.SetMisfitThreshold(cfg.MisfitThreshold)
	go svc.WatchCalibrations()

	// Setup router
	auth := middleware.NewAuth(cfg.JWTSecret, log)
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	protected := api.PathPrefix("").Subrouter()
	protected.Use(auth.RequireAuth)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(auth.RequireAuth, auth.RequireAdmin)

	questions.NewHandler(svc).RegisterRoutes(protected, admin)

	r.Handle("/metrics", m.Handler()).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		log.Info("shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", "error", err)
		}
		stop()
	}()

	log.Info("server starting", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server failed", "error", err)
	}

	<-ctx.Done()
	pool.Close()
	log.Info("server stopped")
}
