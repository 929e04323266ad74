package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/mailmerge/internal/mcptools"
)

func newMCPCmd(c *cli) *cobra.Command {
	var stdio bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the merge tools over MCP",
		Long: `Serves start_merge, get_job, cancel_job, list_jobs, list_fields and
template_lineage as MCP tools, over stdio or streamable HTTP on mcp.addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			svc := newMergeService(a)
			if stdio {
				return mcptools.RunMCPServerStdio(ctx, svc)
			}
			return mcptools.RunMCPServer(ctx, svc, c.cfg.MCP.Addr)
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve on stdin/stdout instead of HTTP")
	return cmd
}

func newMergeService(a *app) *mcptools.MergeService {
	return mcptools.NewMergeService(a.runner, a.lineage)
}
