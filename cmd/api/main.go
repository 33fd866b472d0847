package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"taskPlanner/internal/config"
	"taskPlanner/internal/handlers"
	"taskPlanner/internal/logger"
	"taskPlanner/internal/materialize"
	"taskPlanner/internal/middleware"
	"taskPlanner/internal/repository"
	"taskPlanner/internal/repository/inmemory"
	"taskPlanner/internal/repository/postgres"
	"taskPlanner/internal/service"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}

	if err := logger.Init(cfg.Logging.Development); err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Error("Main: storage init failed", err)
		os.Exit(1)
	}
	defer store.Close()

	windows, err := materialize.NewManager(materialize.Options{
		DefaultTimezone:      cfg.Materialization.DefaultTimezone,
		LookaheadDays:        cfg.Materialization.LookaheadDays,
		MinUpcomingInstances: cfg.Materialization.MinUpcomingInstances,
		MaxBatchSize:         cfg.Materialization.MaxBatchSize,
		EnableCatchup:        cfg.Materialization.EnableCatchup,
		GraceDays:            cfg.Materialization.GraceDays,
	})
	if err != nil {
		logger.Error("Main: bad materialization config", err)
		os.Exit(1)
	}

	taskService := service.NewTaskService(store, windows)
	taskHandler := handlers.NewTaskHandler(&taskService)
	seriesHandler := handlers.NewSeriesHandler(&taskService)
	projectHandler := handlers.NewProjectHandler(&taskService)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.RateLimit(100))

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", taskHandler.GetTasks)  // GET /tasks
		r.Post("/", taskHandler.PostTask) // POST /tasks

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", taskHandler.GetTaskByID)       // GET /tasks/{id}
			r.Put("/", taskHandler.UpdateTaskByID)    // PUT /tasks/{id}?scope=
			r.Delete("/", taskHandler.DeleteTaskByID) // DELETE /tasks/{id}

			r.Post("/complete", taskHandler.CompleteTask)      // POST /tasks/{id}/complete
			r.Post("/dependencies", taskHandler.PostDependency) // POST /tasks/{id}/dependencies
		})
	})

	r.Route("/series/{id}", func(r chi.Router) {
		r.Delete("/", seriesHandler.DeleteSeries) // DELETE /series/{id}

		r.Post("/exceptions", seriesHandler.PostExceptions)     // POST /series/{id}/exceptions
		r.Delete("/exceptions", seriesHandler.DeleteExceptions) // DELETE /series/{id}/exceptions
		r.Post("/override", seriesHandler.PostOverride)         // POST /series/{id}/override
		r.Post("/move", seriesHandler.PostMove)                 // POST /series/{id}/move
		r.Post("/duplicate", seriesHandler.PostDuplicate)       // POST /series/{id}/duplicate
		r.Post("/archive", seriesHandler.PostArchive)           // POST /series/{id}/archive
		r.Post("/reactivate", seriesHandler.PostReactivate)     // POST /series/{id}/reactivate
		r.Post("/refresh", seriesHandler.PostRefresh)           // POST /series/{id}/refresh

		r.Get("/statistics", seriesHandler.GetStatistics) // GET /series/{id}/statistics
		r.Get("/preview", seriesHandler.GetPreview)       // GET /series/{id}/preview
	})

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", projectHandler.GetProjects)           // GET /projects
		r.Post("/", projectHandler.PostProject)          // POST /projects
		r.Delete("/{id}", projectHandler.DeleteProject)  // DELETE /projects/{id}
	})

	r.Get("/health", taskHandler.HealthCheck)

	server := &http.Server{
		Addr:    cfg.GetServerAddr(),
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		logger.Info("Main: shutting down")
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Main: server stopped", err)
		os.Exit(1)
	}
}

func newStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Repository.Type {
	case "postgres":
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return nil, err
		}
		return postgres.New(ctx, cfg.Database.URL, postgres.Options{
			MaxConns:    cfg.Database.MaxConnections,
			MinConns:    cfg.Database.MinConnections,
			IdleTimeout: cfg.Database.IdleTimeout,
		})
	default:
		return inmemory.NewStore(), nil
	}
}
