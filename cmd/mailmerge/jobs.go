package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/mailmerge/internal/export"
	"github.com/dusk-indust/mailmerge/internal/jobs"
)

// newJobsCmd groups the commands that talk to a running server.
func newJobsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and control jobs on a running server",
	}
	cmd.AddCommand(
		newJobsListCmd(c),
		&cobra.Command{
			Use:   "get <job-id>",
			Short: "Show a job snapshot",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				job, err := c.client().Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printJob(c.out, job)
				return nil
			},
		},
		&cobra.Command{
			Use:   "cancel <job-id>",
			Short: "Cancel a pending or running job",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				job, err := c.client().Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "cancel requested for %s (%s)\n", job.ID, job.Status)
				return nil
			},
		},
		&cobra.Command{
			Use:   "watch <job-id>",
			Short: "Follow a job's progress until it finishes",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return watch(cmd.Context(), c, args[0])
			},
		},
		&cobra.Command{
			Use:   "manifest <job-id>",
			Short: "Print a job's artifact manifest as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := c.client().Manifest(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return export.WriteJSON(c.out, m)
			},
		},
	)
	return cmd
}

func newJobsListCmd(c *cli) *cobra.Command {
	var (
		f      jobs.ListFilter
		status string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if status != "" {
				f.Status = jobs.Status(status)
				if !f.Status.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
			}
			res, err := c.client().List(cmd.Context(), f)
			if err != nil {
				return err
			}
			printJobTable(c.out, res.Jobs)
			if res.NextPageToken != "" {
				fmt.Fprintln(c.out, dimStyle.Render(fmt.Sprintf("%d jobs, next page: --page-token %s", res.TotalSize, res.NextPageToken)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only jobs in this status (pending, processing, completed, failed)")
	cmd.Flags().StringVar(&f.TemplateID, "template", "", "only jobs for this template")
	cmd.Flags().IntVar(&f.PageSize, "page-size", 20, "jobs per page (0 for all)")
	cmd.Flags().StringVar(&f.PageToken, "page-token", "", "continue after this job")
	return cmd
}
