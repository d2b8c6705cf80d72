package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/designgen/internal/api"
	"github.com/kalambet/designgen/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the library and generation pipeline over HTTP (and MCP)",
	Long: `Serve the library and generation pipeline over HTTP on 127.0.0.1.

With --mcp the same tools are also offered over MCP on stdin/stdout, for
editors and agents that launch designgen as a subprocess.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		port, _ := cmd.Flags().GetInt("port")
		return runServer(withMCP, port)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
}

func runServer(withMCP bool, port int) error {
	fmt.Fprintf(os.Stderr, "designgen version %s\n", version)

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := pipeline.OptionsFromConfig(cfg)
	a, err := openApp(ctx, cfg, engineUsage{generation: true, review: opts.EnableVisualValidation})
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator(opts)
	if err != nil {
		return err
	}
	deps := api.Deps{
		Store:   a.store,
		Scorer:  a.scorer,
		Indexer: a.indexer,
		Runner:  orch,
		Token:   cfg.Server.APIToken,
	}
	if deps.Token == "" {
		printWarning("server.api_token is not set; the API accepts unauthenticated requests")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps, version))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "designgen listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
