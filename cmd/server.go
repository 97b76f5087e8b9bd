package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docintake/internal/app"
	"github.com/ziadkadry99/docintake/internal/classifier"
	"github.com/ziadkadry99/docintake/internal/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API",
	Long: `Starts the document intake HTTP API: POST /process-document analyzes
an upload without storing it, GET /records/{filename} and GET /search read
processed documents, and /metrics exposes Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		rt, err := openRuntime(ctx, app.Options{})
		if err != nil {
			return err
		}
		defer rt.Close()

		cfg := rt.Config
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		policy, err := classifier.ParsePolicy(cfg.Index.Policy)
		if err != nil {
			return err
		}

		srv := server.New(server.Config{
			Port:           port,
			AllowAll:       cfg.Server.AllowAllCORS,
			MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
			Policy:         policy,
		}, server.Deps{
			Analyzer: rt.Pipeline,
			Records:  rt.Records,
			Store:    rt.Store,
			Metrics:  rt.Metrics,
		}, rt.Logger)

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				rt.Logger.Error("server shutdown", "error", err)
			}
		}()

		fmt.Fprintf(os.Stderr, "docintake server %s starting on port %d\n", Version, port)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", rt.DB.Path())
		fmt.Fprintf(os.Stderr, "  Records stored: %d\n", rt.Store.Count())

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serverCmd.Flags().Int("port", 8000, "port to listen on (overrides config)")
	rootCmd.AddCommand(serverCmd)
}
