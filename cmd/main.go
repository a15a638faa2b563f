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

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Mouaidnasab/dair-home/internal/api"
	"github.com/Mouaidnasab/dair-home/internal/config"
	"github.com/Mouaidnasab/dair-home/internal/logger"
	"github.com/Mouaidnasab/dair-home/internal/poller"
	"github.com/Mouaidnasab/dair-home/internal/server"
	"github.com/Mouaidnasab/dair-home/internal/service"
)

// Command dair-home serves the home energy dashboard API.
//
// It polls the vendor telemetry export for two inverters, aggregates
// the streams into a unified home view, and exposes the dashboard,
// trends, consumption, and grid-outage endpoints over HTTP JSON.
//
// Usage:
//
//	dair-home [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
func main() {
	// A .env file is optional; real deployments set the environment.
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.Logging)
	logg.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting server")

	client := api.NewClient(cfg.Vendor, logg)

	svc, err := service.New(client, cfg.Plants, cfg.PlantLabels(), cfg.Cache.DaySeriesSize, logg)
	if err != nil {
		logg.Fatalf("Failed to create service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval := time.Duration(cfg.Poll.IntervalSeconds) * time.Second
	p := poller.New(ctx, svc, interval, logg)

	handler := server.Setup(svc, cfg.Server, logg)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: handler,
	}

	errChan := make(chan error, 1)

	if cfg.Poll.Enabled {
		if err := p.Start(); err != nil {
			logg.Fatalf("Failed to start poller: %v", err)
		}
	}

	go func() {
		logg.WithFields(logrus.Fields{"addr": srv.Addr}).Info("Listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	go handleShutdown(ctx, srv, p, logg, errChan)

	if err := <-errChan; err != nil {
		logg.Fatalf("Service error: %v", err)
	}
	logg.Info("Server stopped")
}

// handleShutdown drains the poller and HTTP server on SIGINT/SIGTERM.
func handleShutdown(ctx context.Context, srv *http.Server, p *poller.Poller, logg *logrus.Logger, errChan chan<- error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logg.Info("Context canceled, initiating shutdown")
	case sig := <-sigChan:
		logg.WithFields(logrus.Fields{"signal": sig.String()}).Info("Received signal, initiating shutdown")
	}

	p.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errChan <- fmt.Errorf("shutdown error: %w", err)
		return
	}
	errChan <- nil
}
