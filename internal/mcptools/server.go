// Package mcptools exposes mail merge jobs as MCP tools.
package mcptools

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMergeMCPServer creates an MCP server with the merge tools registered.
func NewMergeMCPServer(svc *MergeService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "mailmerge",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_merge",
		Description: "Start a mail merge job: fill a template document once per data row and produce one document per row. Returns the job; set wait to block until it finishes.",
	}, svc.StartMerge)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_job",
		Description: "Get the status, progress, and produced documents of a merge job.",
	}, svc.GetJob)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel_job",
		Description: "Cancel a pending or running merge job. Documents already produced are kept.",
	}, svc.CancelJob)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_jobs",
		Description: "List merge jobs in creation order, optionally filtered by status or template.",
	}, svc.ListJobs)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_fields",
		Description: "Compare the {{field}} tokens in a template with the column headers of a data source, without producing anything.",
	}, svc.ListFields)

	if svc.lineage != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "template_lineage",
			Description: "List every finished job and produced document for a template.",
		}, svc.TemplateLineage)
	}

	return server
}

// RunMCPServer serves the tools over streamable HTTP until ctx is cancelled.
func RunMCPServer(ctx context.Context, svc *MergeService, addr string) error {
	server := NewMergeMCPServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunMCPServerStdio serves the tools on stdio, blocking until stdin is
// closed or ctx is cancelled.
func RunMCPServerStdio(ctx context.Context, svc *MergeService) error {
	return NewMergeMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
}
