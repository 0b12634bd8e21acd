package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pipelinekiln/conductor/internal/config"
	"github.com/rs/zerolog/log"
)

var dashboardPort int

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Start the Read-Model Server (runs until killed)",
	Args:  cobra.NoArgs,
	RunE:  runDashboard,
}

func init() {
	dashboardCmd.Flags().IntVar(&dashboardPort, "port", 0, "port to bind (default: FRAMEWORK_PORT or 4173)")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("project") {
		projectRoot = config.Load().ProjectRoot
	}
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	port := dashboardPort
	if port == 0 {
		port = config.Load().Port
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go srv.RunEventLoop(ctx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", port),
		Handler:      srv.Handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams must not be cut off by a write deadline
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("🛑 shutting down dashboard")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	log.Info().Int("port", port).Msg("📊 dashboard listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
