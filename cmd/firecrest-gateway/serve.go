package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gravitational/trace"
	"github.com/spf13/cobra"

	"github.com/eth-cscs/firecrest-v2/internal/config"
	"github.com/eth-cscs/firecrest-v2/internal/gateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway HTTP server",
	RunE:  runServe,
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and normalize the YAML settings file, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.LoadFromEnv()
		if err != nil {
			return trace.Wrap(err)
		}
		log.WithField("clusters", len(settings.Clusters)).Info("configuration is valid")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8000", "address to listen on")
}

// runServe loads settings, wires the gateway, and serves until SIGINT/
// SIGTERM, using the same signal.NotifyContext-driven graceful shutdown
// idiom as cmd/streamer-agent.
func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	settings, err := config.LoadFromEnv()
	if err != nil {
		return trace.Wrap(err, "loading settings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, probers, pools, err := buildGateway(ctx, settings)
	if err != nil {
		return trace.Wrap(err, "wiring gateway")
	}

	for _, p := range probers {
		go p.Loop(ctx)
	}
	runPrunes(ctx, pools)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: gateway.NewRouter(server, settings.APIsRootPath),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- trace.Wrap(err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return trace.Wrap(err, "shutting down gateway")
	}
	return nil
}
