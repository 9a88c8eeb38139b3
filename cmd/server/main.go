// Package main is the entry point for the heat map image server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heatmapimage/server/internal/api"
	"github.com/heatmapimage/server/internal/cache"
	"github.com/heatmapimage/server/internal/config"
	"github.com/heatmapimage/server/internal/render"
	"github.com/heatmapimage/server/internal/service"
)

func main() {
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting heat map server on port %d", cfg.Server.Port)

	ctx := context.Background()

	// Shared across all datasets; keys carry the dataset ID.
	cacheManager, err := cache.NewManager(cache.Config{
		ImageCacheSizeMB: cfg.Cache.ImageSizeMB,
		ImageTTL:         cfg.Cache.ImageTTL(),
		Shards:           cfg.Cache.Shards,
		QueryCacheSize:   cfg.Cache.QueryCacheSize,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	rasterizer := render.NewRasterizer(render.Config{
		MaxPixels: cfg.Render.MaxPixels,
		FastPNG:   cfg.Render.FastPNG,
	})

	defaults, err := service.RenderDefaultsFromConfig(cfg.Render)
	if err != nil {
		log.Fatalf("Invalid render configuration: %v", err)
	}

	datasetIDs := cfg.Data.DatasetIDs()
	registry := api.NewDatasetRegistry(cfg.Data.DefaultDataset, nil)

	log.Printf("Initializing %d dataset(s), default: %s", len(datasetIDs), cfg.Data.DefaultDataset)

	for _, datasetID := range datasetIDs {
		ds := cfg.Data.Datasets[datasetID]
		svc, err := service.OpenDataset(datasetID, ds, defaults, cacheManager, rasterizer)
		if err != nil {
			log.Printf("  [%s] skipped: %v", datasetID, err)
			continue
		}
		registry.Register(datasetID, svc.Metadata().Title, svc)
		log.Printf("  [%s] Loaded from: %s", datasetID, ds.ZarrPath)
	}
	if len(registry.Datasets()) == 0 {
		log.Fatalf("No dataset could be loaded")
	}

	jobManager, err := api.NewJobManager(api.JobManagerConfig{
		Workers:       cfg.Jobs.Workers,
		QueueSize:     cfg.Jobs.QueueSize,
		SQLitePath:    cfg.Jobs.DBPath,
		Retention:     cfg.Jobs.Retention(),
		CleanupPeriod: 1 * time.Hour,
	})
	if err != nil {
		log.Fatalf("Failed to initialize job manager: %v", err)
	}
	log.Printf("Render job manager: workers=%d, queue=%d, retention=%s, sqlite=%s",
		cfg.Jobs.Workers, cfg.Jobs.QueueSize, cfg.Jobs.Retention(), cfg.Jobs.DBPath)

	jobManager.Executor = api.RenderExecutor(registry)
	jobManager.Start()
	defer jobManager.Stop()

	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		CORSOrigins: cfg.Server.CORSOrigins,
		JobManager:  jobManager,
		Defaults:    defaults,
		Rasterizer:  rasterizer,
		AsyncPixels: cfg.Render.AsyncPixels,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
