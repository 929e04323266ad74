package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/mailmerge/internal/api"
	"github.com/dusk-indust/mailmerge/internal/mcptools"
	"github.com/dusk-indust/mailmerge/internal/retention"
)

func newServeCmd(c *cli) *cobra.Command {
	var withMCP bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job API",
		Long: `Serves the job API on server.addr. Jobs run in the background and
report progress over server-sent events. Old finished jobs are pruned on
retention.schedule. With --mcp the MCP tools are also served over
streamable HTTP on mcp.addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c, withMCP)
		},
	}
	cmd.Flags().BoolVar(&withMCP, "mcp", false, "also serve MCP tools on mcp.addr")
	return cmd
}

func serve(ctx context.Context, c *cli, withMCP bool) error {
	cfg := c.cfg
	a, err := newApp(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []api.ServerOption{api.WithLogger(c.logger), api.WithLineage(a.lineage)}
	if cfg.Source == "local" {
		opts = append(opts, api.WithDownloads(cfg.Local.OutputDir))
	}
	srv := api.NewServer(a.runner, a.events, opts...)
	addr, err := srv.Start(ctx, cfg.Server.Addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s listening on %s\n", headStyle.Render("mailmerge"), addrURL(addr))

	sweeper := retention.NewSweeper(a.store, cfg.Retention.MaxAge, c.logger)
	if cfg.Retention.Schedule != "" && cfg.Retention.MaxAge > 0 {
		if err := sweeper.Start(cfg.Retention.Schedule); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	mcpErr := make(chan error, 1)
	if withMCP {
		svc := newMergeService(a)
		go func() {
			mcpErr <- mcptools.RunMCPServer(ctx, svc, cfg.MCP.Addr)
		}()
		c.logger.Info("mcp listening", zap.String("addr", cfg.MCP.Addr))
	}

	select {
	case <-ctx.Done():
	case err = <-mcpErr:
		if err != nil {
			err = fmt.Errorf("mcp server: %w", err)
		}
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if stopErr := srv.Stop(shutdown); stopErr != nil && !errors.Is(stopErr, context.Canceled) {
		c.logger.Warn("api shutdown", zap.Error(stopErr))
	}
	c.logger.Info("shutting down")
	return err
}
