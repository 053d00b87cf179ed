package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gandorini/S-T-Station/config"
	"github.com/Gandorini/S-T-Station/handler"
	"github.com/Gandorini/S-T-Station/middleware"
	"github.com/Gandorini/S-T-Station/service"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the HTTP API",
	Long:  `Runs the validation and catalog HTTP API until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded successfully")

	pipeline, closePipeline, err := buildPipeline(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize validation pipeline", "error", err)
		return err
	}
	defer closePipeline()

	store, err := service.NewSheetStore(ctx, &cfg.Store)
	if err != nil {
		slog.Error("failed to initialize sheet store", "driver", cfg.Store.Driver, "error", err)
		return err
	}
	defer store.Close()

	router := newRouter(cfg, pipeline, store)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 60 * time.Second,
		// Recognition can take minutes; the handler bounds it with its own timeout.
		WriteTimeout: time.Duration(cfg.Server.RequestTimeout+30) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("failed to start server", "error", err)
			return err
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		return err
	}

	slog.Info("server exited gracefully")
	return nil
}

func newRouter(cfg *config.Config, v handler.Validator, store service.SheetStore) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.CORS.AllowOrigins))
	router.Use(middleware.RateLimit(cfg.Server.RateLimit, time.Minute))
	router.Use(middleware.MaxBodySize(cfg.Server.MaxUploadMB << 20))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	validationHandler := handler.NewValidationHandler(v, time.Duration(cfg.Server.RequestTimeout)*time.Second)
	sheetHandler := handler.NewSheetHandler(store)
	authHandler := handler.NewAuthHandler()
	auth := middleware.AuthMiddleware(middleware.NewTokenVerifier(&cfg.Auth))

	api := router.Group("/api")
	{
		api.POST("/validate-sheet", validationHandler.ValidateSheet)
		api.POST("/validate-and-convert", validationHandler.ValidateAndConvert)
		api.POST("/validate-heuristic", validationHandler.ValidateHeuristic)
		api.POST("/validate-deep", validationHandler.ValidateDeep)

		api.GET("/music-sheets", sheetHandler.List)
		api.GET("/music-sheets/:id", sheetHandler.Get)
	}

	protected := api.Group("/")
	protected.Use(auth)
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/music-sheets", sheetHandler.Create)
		protected.GET("/music-sheets/me", sheetHandler.ListMine)
		protected.GET("/music-sheets/me/export", sheetHandler.ExportMine)
		protected.PUT("/music-sheets/:id", sheetHandler.Update)
		protected.DELETE("/music-sheets/:id", sheetHandler.Delete)
	}

	return router
}
