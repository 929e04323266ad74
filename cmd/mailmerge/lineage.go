package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/mailmerge/internal/export"
	"github.com/dusk-indust/mailmerge/internal/lineage"
)

func newLineageCmd(c *cli) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "lineage [template]",
		Short: "Draw the template to job to document lineage as Mermaid",
		Long: `Prints a Mermaid flowchart of the jobs run from a template and the
documents they produced. Without --remote the configured lineage store is
read directly, which only holds history when lineage.driver is kuzu.
Without a template every recorded template is drawn.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var templateID string
			if len(args) == 1 {
				templateID = args[0]
			}

			if remote {
				if templateID == "" {
					return fmt.Errorf("--remote needs a template")
				}
				diagram, err := c.client().LineageMermaid(ctx, templateID)
				if err != nil {
					return err
				}
				fmt.Fprint(c.out, diagram)
				return nil
			}

			store, err := lineage.Open(c.cfg.Lineage.Driver, c.cfg.Lineage.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			diagram, err := export.LineageMermaid(ctx, store, templateID)
			if err != nil {
				return err
			}
			fmt.Fprint(c.out, diagram)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "read lineage from the server")
	return cmd
}
