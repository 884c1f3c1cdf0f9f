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

	"activity-analytics/internal/baseline"
	"activity-analytics/internal/config"
	"activity-analytics/internal/ingest"
	"activity-analytics/internal/ruledetect"
	"activity-analytics/internal/server"

	"github.com/joho/godotenv"
)

func init() {
	if os.Getenv("RUNNING_IN_DOCKER") == "" {
		err := godotenv.Load("../../.env")
		if err != nil {
			log.Println("No .env file found (this is fine in Docker)")
		}
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.SetupAPIConfig(ctx)
	if err != nil {
		log.Panic(err)
	}
	defer cfg.Close()

	engine := ruledetect.NewEngine(cfg.DB)
	scorer := baseline.NewScorer(cfg.DB, cfg.Redis)
	api := server.New(cfg.DB, engine, scorer, cfg.JWTSecret)

	go ingest.NewConsumer(cfg.Kafka, cfg.DB).Run(ctx)

	srv := &http.Server{Addr: cfg.Addr, Handler: api.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Analytics API listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Panic(err)
	}
}
