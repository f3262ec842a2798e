// Command spm-server serves the SPM run analysis API.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaynair0405/sub-spm/internal/analysis"
	"github.com/jaynair0405/sub-spm/internal/api"
	"github.com/jaynair0405/sub-spm/internal/config"
	"github.com/jaynair0405/sub-spm/internal/corridor"
	"github.com/jaynair0405/sub-spm/internal/db"
	"github.com/jaynair0405/sub-spm/internal/fsutil"
	"github.com/jaynair0405/sub-spm/internal/pgstore"
	"github.com/jaynair0405/sub-spm/internal/version"
)

var (
	envDir = flag.String("env", ".", "Directory holding .env and .env.local")
	listen = flag.String("listen", "", "Listen address (overrides SPM_LISTEN)")
)

func main() {
	flag.Parse()
	log.Print(version.String("spm-server"))

	cfg, err := config.LoadServerConfig(*envDir)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	analysisCfg, err := cfg.Analysis()
	if err != nil {
		log.Fatalf("failed to load analysis config: %v", err)
	}

	corridors := corridor.NewManager(cfg.DataDir)
	if err := corridors.LoadAll(); err != nil {
		log.Fatalf("failed to load reference data from %s: %v", cfg.DataDir, err)
	}
	log.Printf("loaded %d corridors from %s", len(corridors.Summaries()), cfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	var store db.RunStore
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to PostgreSQL: %v", err)
		}
		store = pg
		log.Print("storing runs in PostgreSQL")
	} else {
		sqlite, err := db.NewDB(cfg.DBPath)
		if err != nil {
			log.Fatalf("failed to open database %s: %v", cfg.DBPath, err)
		}
		if err := sqlite.AttachAdminRoutes(mux); err != nil {
			log.Printf("admin routes unavailable: %v", err)
		}
		store = sqlite
		log.Printf("storing runs in %s", cfg.DBPath)
	}
	defer store.Close()

	opts := []api.Option{api.WithCORSOrigins(cfg.CORSOrigins)}
	if cfg.UploadDir != "" {
		opts = append(opts, api.WithArchive(fsutil.NewArchive(fsutil.OSFileSystem{}, cfg.UploadDir)))
	}
	srv := api.NewServer(store, analysis.NewAnalyzer(corridors, analysisCfg), opts...)
	mux.Handle("/", srv.Router())

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("failed to start server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server stopped")
}
