package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vjranagit/sleepfilter/pkg/api"
	"github.com/vjranagit/sleepfilter/pkg/dashboard"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.ListenAddr = addr
			}
			return serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "listen address, overrides the configuration")
	return cmd
}

func serve(ctx context.Context) error {
	log.Info("Starting sleepfilter",
		zap.String("version", version),
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("dataset", cfg.Dataset.Path),
		zap.Bool("snapshots", cfg.Storage.EnableSnapshots),
	)

	store, err := openDataset(ctx, cfg, log, false)
	if err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	db, err := dashboard.New(store, dashboard.WithLocation(loc), dashboard.WithLogger(log))
	if err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		Addr:      cfg.Server.ListenAddr,
		Timeout:   cfg.Server.Timeout.Duration,
		ListSize:  cfg.Dataset.ListSize,
		CacheSize: cfg.Server.CacheSize,
	}, db, log)

	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-sigChan:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
		return err
	}

	log.Info("Server stopped")
	return nil
}
