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

	"github.com/danielpatrickdp/boardgate/internal/audit"
	"github.com/danielpatrickdp/boardgate/internal/authz"
	"github.com/danielpatrickdp/boardgate/internal/config"
	"github.com/danielpatrickdp/boardgate/internal/directory"
	"github.com/danielpatrickdp/boardgate/internal/gallery"
	"github.com/danielpatrickdp/boardgate/internal/recognize"
	"github.com/danielpatrickdp/boardgate/internal/server"
	"github.com/danielpatrickdp/boardgate/internal/session"
	"github.com/danielpatrickdp/boardgate/internal/vision"
	"github.com/danielpatrickdp/boardgate/internal/watch"
)

// #region main
func main() {
	cfg, err := config.Load(envOr("BOARDGATE_CONFIG", ""))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.Database.Path = envOr("BOARDGATE_DB", cfg.Database.Path)
	cfg.Server.Addr = envOr("LISTEN_ADDR", cfg.Server.Addr)
	cfg.Vision.BaseURL = envOr("VISION_ADDR", cfg.Vision.BaseURL)
	cfg.Watch.PhotoDir = envOr("PHOTO_ROOT", cfg.Watch.PhotoDir)

	// Initialize enrollment store and audit log on the shared database
	store, err := directory.NewStore(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	sink, err := audit.NewSink(store.DB())
	if err != nil {
		log.Fatalf("open audit log: %v", err)
	}

	cache, err := gallery.NewCache(store.DB())
	if err != nil {
		log.Fatalf("open embedding cache: %v", err)
	}

	// Connect to the face detection sidecar
	visionClient := vision.NewClient(cfg.Vision.BaseURL, cfg.Vision.Model,
		time.Duration(cfg.Vision.TimeoutS)*time.Second)

	manager := gallery.NewManager(store, visionClient, cache, gallery.Config{
		FailureCeiling: cfg.Gallery.FailureCeiling,
		Backoff:        time.Duration(cfg.Gallery.BackoffS) * time.Second,
	})
	store.SetNotifier(manager)

	engine := recognize.NewEngine(manager, visionClient, recognize.Config{
		DistanceThreshold: cfg.Recognize.DistanceThreshold,
		MinConfidence:     cfg.Recognize.MinConfidence,
	})
	resolver := authz.NewResolver(store, store)

	coord := session.NewCoordinator(engine, resolver, store, sink, session.Config{
		FrameInterval:   time.Duration(cfg.Session.FrameIntervalMS) * time.Millisecond,
		FrameBuffer:     cfg.Session.FrameBuffer,
		IdleTimeout:     time.Duration(cfg.Session.IdleTimeoutS) * time.Second,
		DuplicateWindow: time.Duration(cfg.Session.DuplicateWindowMS) * time.Millisecond,
	})
	defer coord.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Warm the gallery; a failure here retries on the first frame.
	if _, err := manager.EnsureFresh(ctx); err != nil {
		log.Printf("[GALLERY] initial build failed: %v", err)
	}

	if cfg.Watch.PhotoDir != "" {
		watcher, err := watch.New(cfg.Watch.PhotoDir,
			time.Duration(cfg.Watch.DebounceMS)*time.Millisecond, store)
		if err != nil {
			log.Fatalf("start photo watcher: %v", err)
		}
		defer watcher.Close()
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Printf("[WATCH] watcher stopped: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(store, sink, manager, coord).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[SERVER] shutdown: %v", err)
		}
	}()

	log.Printf("[SERVER] listening on %s (db=%s vision=%s)",
		cfg.Server.Addr, cfg.Database.Path, cfg.Vision.BaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("serve: %v", err)
	}
	log.Printf("[SERVER] shut down")
}
// #endregion main

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
// #endregion helpers
