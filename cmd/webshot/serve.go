package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"webshot/internal/capture"
	"webshot/internal/config"
	"webshot/internal/httpapi"
	"webshot/internal/observability"
)

func newServeCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the screenshot HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServer(cfg, debug)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "enable verbose request logging")
	return cmd
}

func runServer(cfg *config.Config, debug bool) error {
	log := observability.NewLogger(observability.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	log.Info("starting webshot", "addr", cfg.Addr(), "max_concurrent", cfg.MaxConcurrentRenders)

	svc := capture.NewService(capture.Options{
		BrowserPath:   cfg.BrowserPath,
		Timeout:       cfg.CaptureTimeout,
		MaxConcurrent: cfg.MaxConcurrentRenders,
	}, log, capture.NewMetrics())

	if !svc.Probe() {
		log.Warn("no browser executable found; captures will fail until one is installed")
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Addr:  cfg.Addr(),
		Debug: debug,
	}, svc, log)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
