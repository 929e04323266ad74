package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/mailmerge/internal/scaffold"
)

func newInitCmd(c *cli) *cobra.Command {
	var opts scaffold.Options
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter project and register the MCP server",
		Long: `Writes mailmerge.yml, a sample template, a sample CSV data source and
.env.example into dir (default: --dir), and adds a mailmerge entry to
dir/.mcp.json. Existing files are kept unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := c.dir
			if len(args) == 1 {
				dir = args[0]
			}
			actions, err := scaffold.Install(dir, opts)
			for _, a := range actions {
				line := "  " + a.String()
				if !a.Created && !a.Updated {
					line = dimStyle.Render(line)
				}
				fmt.Fprintln(c.out, line)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, okStyle.Render("\nSetup complete. Try: mailmerge fields welcome.txt people.csv"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite existing files and the .mcp.json entry")
	cmd.Flags().BoolVar(&opts.SkipMCP, "no-mcp", false, "leave .mcp.json untouched")
	return cmd
}
