package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/mailmerge/internal/export"
	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/orchestrator"
)

func newRunCmd(c *cli) *cobra.Command {
	var (
		rng      string
		remote   bool
		manifest bool
	)
	cmd := &cobra.Command{
		Use:   "run <template> <data-source>",
		Short: "Merge a template with every row of a data source",
		Long: `Runs one merge job to completion and prints its progress and the
produced documents. By default the job runs in this process; with
--remote it is submitted to the server and followed over its event stream.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			req := orchestrator.Request{TemplateID: args[0], DataSourceID: args[1], Range: rng}
			var (
				job    *jobs.Job
				runErr error
			)
			if remote {
				job, runErr = runRemote(ctx, c, req)
			} else {
				job, runErr = runLocal(ctx, c, req)
			}
			if job == nil {
				return runErr
			}
			if manifest {
				return export.WriteJSON(c.out, export.ExportJob(*job, time.Now()))
			}
			fmt.Fprintln(c.out)
			printJob(c.out, job)
			return runErr
		},
	}
	cmd.Flags().StringVar(&rng, "range", "", "cell range to read, e.g. A1:D50 (default merge.defaultRange)")
	cmd.Flags().BoolVar(&remote, "remote", false, "submit to the server instead of running in-process")
	cmd.Flags().BoolVar(&manifest, "manifest", false, "print the job manifest as JSON instead of a summary")
	return cmd
}

// runLocal submits and runs the job in-process, printing events as they
// happen. The returned job is the terminal snapshot.
func runLocal(ctx context.Context, c *cli, req orchestrator.Request) (*jobs.Job, error) {
	printer := &eventPrinter{w: c.out}
	a, err := newApp(ctx, c.cfg, c.logger, orchestrator.WithObserver(printer))
	if err != nil {
		return nil, err
	}
	defer a.Close()

	job, err := a.runner.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	printer.follow(job.ID)

	final, runErr := a.runner.Run(ctx, job.ID, nil)
	if final == nil {
		// The run never started; report the stored snapshot.
		if snap, err := a.store.Get(context.WithoutCancel(ctx), job.ID); err == nil {
			final = snap
		}
	}
	return final, runErr
}

// runRemote submits the job to the server and follows its events.
func runRemote(ctx context.Context, c *cli, req orchestrator.Request) (*jobs.Job, error) {
	client := c.client()
	job, err := client.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := watch(ctx, c, job.ID); err != nil {
		return nil, err
	}
	final, err := client.Get(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return nil, err
	}
	if final.Status == jobs.StatusFailed {
		return final, fmt.Errorf("job %s failed: %s", final.ID, final.ErrorMessage)
	}
	return final, nil
}

// watch prints the job's server-sent events until the terminal one.
func watch(ctx context.Context, c *cli, jobID string) error {
	stream, err := c.client().Events(ctx, jobID)
	if err != nil {
		return err
	}
	for se := range stream {
		if se.Err != nil {
			c.logger.Debug("skipping malformed event")
			continue
		}
		fmt.Fprintln(c.out, styleEvent(se.Event))
	}
	return ctx.Err()
}

func newFieldsCmd(c *cli) *cobra.Command {
	var (
		rng    string
		remote bool
	)
	cmd := &cobra.Command{
		Use:   "fields <template> <data-source>",
		Short: "Compare template tokens with data source headers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req := orchestrator.Request{TemplateID: args[0], DataSourceID: args[1], Range: rng}

			var (
				rep *orchestrator.FieldReport
				err error
			)
			if remote {
				rep, err = c.client().Fields(ctx, req)
			} else {
				var a *app
				a, err = newApp(ctx, c.cfg, c.logger)
				if err != nil {
					return err
				}
				defer a.Close()
				rep, err = a.runner.Fields(ctx, req)
			}
			if err != nil {
				return err
			}
			printFields(c.out, rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&rng, "range", "", "cell range to read (default merge.defaultRange)")
	cmd.Flags().BoolVar(&remote, "remote", false, "ask the server instead of reading sources in-process")
	return cmd
}
