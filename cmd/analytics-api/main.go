package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitepulse/analytics-api/internal/config"
	"github.com/sitepulse/analytics-api/internal/ingest"
	"github.com/sitepulse/analytics-api/internal/platform/logger"
	spg "github.com/sitepulse/analytics-api/internal/storage/postgres"
	transport "github.com/sitepulse/analytics-api/internal/transport/http"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("config loaded", "port", cfg.Port, "queue", cfg.QueueMaxSize, "batch", cfg.BatchMaxSize)

	if cfg.LogMode == "prod" || cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := spg.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", "err", err)
	}
	defer db.Close()
	log.Info("db connected")

	mig := filepath.Join("migrations", "0001_init.sql")
	if err := db.RunMigration(ctx, mig); err != nil {
		log.Fatal("migration", "err", err)
	}
	log.Info("migration applied", "file", mig)

	writer := spg.NewWriter(db)
	ingestor := ingest.NewIngestor(writer, log, cfg.QueueMaxSize, cfg.BatchMaxSize, cfg.BatchMaxWait)
	ingestor.Start(ctx)
	log.Info("ingest started", "queue", cfg.QueueMaxSize, "batch", cfg.BatchMaxSize, "wait", cfg.BatchMaxWait)

	deps := &transport.ServerDeps{
		Cfg:      cfg,
		Log:      log,
		Ingestor: ingestor,
		Store:    db,
		Now:      func() time.Time { return time.Now().UTC() },
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(shutdownCtx)
}
