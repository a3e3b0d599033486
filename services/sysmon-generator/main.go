package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fohlab/grapl/pkg/logger"
	"github.com/fohlab/grapl/pkg/sysmon"
	"github.com/fohlab/grapl/services/sysmon-generator/internal/config"
	"github.com/fohlab/grapl/services/sysmon-generator/internal/consumer"
	"github.com/fohlab/grapl/services/sysmon-generator/internal/generator"
	"github.com/fohlab/grapl/services/sysmon-generator/internal/retriever"
	"github.com/fohlab/grapl/services/sysmon-generator/internal/uploader"
)

const serviceName = "sysmon-generator"

func main() {
	cfg := config.Load()

	log := logger.New(&logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log = log.With("service", serviceName)

	ctx := context.Background()

	ret, err := retriever.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create retriever", "error", err)
		os.Exit(1)
	}

	up, err := uploader.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create uploader", "error", err)
		os.Exit(1)
	}

	gen := generator.New(sysmon.Parse, up.Upload, cfg.Workers, log)

	cons, err := consumer.New(cfg, ret, gen, log)
	if err != nil {
		log.Error("failed to create consumer", "error", err)
		os.Exit(1)
	}

	// Health and stats endpoints.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": serviceName})
	})
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"generator": gen.Stats(),
			"consumer":  cons.Stats(),
			"retriever": ret.Stats(),
			"uploader":  up.Stats(),
		})
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: ":" + cfg.MetricsPort, Handler: metricsMux}
		go func() {
			log.Info("starting metrics server", "port", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	cons.Start()

	go func() {
		log.Info("starting server", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cons.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server forced to shutdown", "error", err)
		}
	}

	log.Info("exited")
}
