package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"intel-mcp/internal/kv"
	"intel-mcp/internal/logger"
	"intel-mcp/internal/server"
	"intel-mcp/internal/stdio"
)

var log = logger.ForComponent("main")

var (
	flagPort  string
	flagWatch bool
)

func init() {
	serveCmd.Flags().StringVar(&flagPort, "port", "", "Listen port (PORT, default 3000)")
	serveCmd.Flags().BoolVar(&flagWatch, "watch", false, "Re-import --kv-source whenever it changes")
	stdioCmd.Flags().BoolVar(&flagWatch, "watch", false, "Re-import --kv-source whenever it changes")
	rootCmd.AddCommand(serveCmd, stdioCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over HTTP",
	Long:  "Serve POST /mcp (JSON-RPC), GET /mcp/tools, POST /mcp/call, POST /mcp/scheduled and GET /health. TLS is enabled when TLS_CERT_FILE and TLS_KEY_FILE are set.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if flagPort != "" {
			cfg.Port = flagPort
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var opts []server.Option
		if cfg.KVSource != "" {
			if err := loadSource(ctx, a); err != nil {
				return err
			}
			opts = append(opts, server.WithReimport(func(ctx context.Context) (int, error) {
				return kv.Import(ctx, a.store, cfg.KVSource, sourceOptions())
			}))
		}
		if cfg.ROSTIAPIKey == "" {
			log.Info("ROSTI_API_KEY not set; rosti_* tools will report a missing credential")
		}

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           server.New(a.dispatcher, opts...).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			if cfg.TLS() {
				log.Info("starting MCP HTTPS server", "addr", srv.Addr)
				errCh <- srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
				return
			}
			log.Info("starting MCP HTTP server", "addr", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-ctx.Done():
		}
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve MCP over stdin/stdout",
	Long:  "Serve newline-delimited JSON-RPC on stdin/stdout for MCP clients that spawn the server. Logs go to stderr.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.KVSource != "" {
			if err := loadSource(ctx, a); err != nil {
				return err
			}
		}
		err = stdio.Serve(ctx, a.dispatcher, os.Stdin, os.Stdout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// loadSource imports the configured source and, with --watch, keeps it in
// sync for the lifetime of ctx.
func loadSource(ctx context.Context, a *app) error {
	n, err := kv.Import(ctx, a.store, cfg.KVSource, sourceOptions())
	if err != nil {
		return fmt.Errorf("import %s: %w", cfg.KVSource, err)
	}
	log.Info("imported key-value source", "path", cfg.KVSource, "records", n)
	if flagWatch {
		go func() {
			if err := kv.Watch(ctx, a.store, cfg.KVSource, sourceOptions(), 0); err != nil {
				log.Error("watch stopped", "path", cfg.KVSource, "error", err)
			}
		}()
	}
	return nil
}
