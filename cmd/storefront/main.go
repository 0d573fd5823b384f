// Package main runs the storefront bridge: a websocket endpoint per host
// shell backed by the GraphQL catalog.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/miniapp_storefront/internal/bridge"
	"github.com/R3E-Network/miniapp_storefront/internal/catalog"
	"github.com/R3E-Network/miniapp_storefront/internal/config"
	"github.com/R3E-Network/miniapp_storefront/pkg/logger"
)

func main() {
	envFile := flag.String("env", "", "Optional .env file to load before reading the environment")
	addr := flag.String("addr", "", "Listen address (overrides STOREFRONT_ADDR)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.Bridge.Addr = *addr
	}

	root := logger.New(logger.Config{
		Component: "storefront",
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
	})

	catalogClient, _, err := catalog.NewFromConfig(cfg.Backend, root.Named("catalog"))
	if err != nil {
		log.Fatalf("Failed to create catalog client: %v", err)
	}

	srv := bridge.NewServer(bridge.Config{
		AllowedOrigins:   cfg.Bridge.Origins(),
		ConnectRate:      cfg.Bridge.ConnectRate,
		ConnectBurst:     cfg.Bridge.ConnectBurst,
		PingInterval:     cfg.Bridge.PingInterval,
		WriteTimeout:     cfg.Bridge.WriteTimeout,
		ReadLimit:        int64(cfg.Bridge.ReadLimit),
		NotificationTTL:  cfg.Session.NotificationTTL,
		BuyerEmailDomain: cfg.Session.BuyerEmailDomain,
		DefaultCurrency:  cfg.Session.DefaultCurrency,
		Messages:         cfg.Messages,
	}, catalogClient, root.Named("bridge"))

	// No write timeout: bridge connections are long-lived and manage their
	// own write deadlines.
	server := &http.Server{
		Addr:              cfg.Bridge.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		root.WithField("addr", cfg.Bridge.Addr).WithField("backend", cfg.Backend.Endpoint).Info("storefront listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	root.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		root.WithError(err).Warn("shutdown error")
	}
	root.Info("storefront stopped")
}
