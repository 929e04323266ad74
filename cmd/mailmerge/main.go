package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/mailmerge/internal/api"
	"github.com/dusk-indust/mailmerge/internal/config"
	"github.com/dusk-indust/mailmerge/internal/logging"
)

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries what the persistent flags and PersistentPreRunE produce.
type cli struct {
	out io.Writer

	dir     string
	verbose bool
	server  string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "mailmerge",
		Short: "Mail merge orchestration engine",
		Long: `mailmerge fills a document template once per row of a tabular data
source and produces one document per row.

Templates, data and output live on the local filesystem or in Google
Docs, Sheets and Drive, as selected by mailmerge.yml.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.dir)
			if err != nil {
				return err
			}
			cfg.ResolvePaths(c.dir)
			if c.verbose {
				cfg.Log.Level = "debug"
			}
			c.cfg = cfg

			c.logger, err = logging.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return err
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&c.dir, "dir", ".", "project directory holding mailmerge.yml and .env")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")
	flags.StringVar(&c.server, "server", "", "base URL of a running mailmerge server (default from server.addr)")

	root.AddCommand(
		newInitCmd(c),
		newServeCmd(c),
		newMCPCmd(c),
		newRunCmd(c),
		newFieldsCmd(c),
		newJobsCmd(c),
		newLineageCmd(c),
		newVersionCmd(c),
	)
	return root
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintln(c.out, version)
		},
	}
}

// client returns an API client for --server, or for the configured server
// address on the local host.
func (c *cli) client() *api.Client {
	return api.NewClient(c.serverURL())
}

func (c *cli) serverURL() string {
	if c.server != "" {
		return c.server
	}
	return addrURL(c.cfg.Server.Addr)
}

// addrURL turns a listen address into a URL a local client can reach.
func addrURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + strings.TrimPrefix(addr, "http://")
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
