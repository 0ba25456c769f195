package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/quillsign/quillsign/internal/app/config"
	"github.com/quillsign/quillsign/internal/app/services"
	"github.com/quillsign/quillsign/internal/infrastructure/queue"
	"github.com/quillsign/quillsign/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log = logger.NewWithLevel(logger.ParseLevel(cfg.LogLevel))

	manager, err := services.NewManager(cfg, log)
	if err != nil {
		log.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer manager.Close()

	worker := queue.NewWorker(manager.Queue, log, cfg.Queue.Concurrency, cfg.Queue.TaskTimeout)
	manager.Tasks.RegisterAll(worker, cfg.Queue.MaxRetries)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("shutting down worker")
		cancel()
	}()

	log.Info("starting worker", "concurrency", cfg.Queue.Concurrency, "environment", cfg.Environment)
	worker.Run(ctx)
	log.Info("worker shutdown complete")
}
