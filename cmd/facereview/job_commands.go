package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"facereview/internal/engine"
	"facereview/internal/jobprogress"
	"facereview/internal/services/backend"
)

func newFindMoreCommand(ctx *commandContext) *cobra.Command {
	var req backend.FindMoreRequest
	var follow bool

	cmd := &cobra.Command{
		Use:   "find-more <person-id>",
		Short: "Search the library for more faces of a person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				job, err := eng.FindMore(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() && !follow {
					return writeJSON(cmd, job)
				}
				if !ctx.jsonOutput() {
					out := cmd.OutOrStdout()
					fmt.Fprintln(out, renderStatusLine("Find more", statusInfo,
						fmt.Sprintf("job %s started, progress key %s", job.JobID, job.ProgressKey), shouldColorize(out)))
				}
				if !follow {
					return nil
				}
				return followJob(cmd, ctx, eng, job.ProgressKey)
			})
		},
	}
	cmd.Flags().IntVar(&req.PrototypeCount, "prototypes", 0, "Labeled faces to search from (default from config)")
	cmd.Flags().IntVar(&req.MaxSuggestions, "max", 0, "Maximum suggestions to create (default from config)")
	cmd.Flags().Float64Var(&req.MinConfidence, "min-confidence", 0, "Minimum match confidence (default from config)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Watch the job until it finishes")
	return cmd
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Background job utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "watch <progress-key>",
		Short: "Follow a job's progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				return followJob(cmd, ctx, eng, args[0])
			})
		},
	})
	return cmd
}

// followJob prints progress until the job ends. With --json each delivered
// event is written as one JSON document.
func followJob(cmd *cobra.Command, ctx *commandContext, eng *engine.Engine, progressKey string) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	emit := func(ev jobprogress.Event) {
		if ctx.jsonOutput() {
			_ = writeJSON(cmd, ev)
			return
		}
		fmt.Fprintln(out, progressLine(ev, colorize))
	}

	handle, err := eng.WatchJob(cmd.Context(), progressKey, jobprogress.Handlers{
		OnProgress: emit,
		OnComplete: func(ev jobprogress.Event) {
			emit(ev)
			if !ctx.jsonOutput() && ev.SuggestionsCreated != nil {
				fmt.Fprintln(out, renderStatusLine("Done", statusOK,
					fmt.Sprintf("%d new suggestions", *ev.SuggestionsCreated), colorize))
			}
		},
		OnError: func(err error, last *jobprogress.Event) {
			if ctx.jsonOutput() {
				return
			}
			if last != nil {
				fmt.Fprintln(out, renderStatusLine("Last", statusWarn, progressLine(*last, false), colorize))
			}
		},
	})
	if err != nil {
		return err
	}
	<-handle.Done()
	if err := handle.Err(); err != nil {
		return fmt.Errorf("job %s: %w", progressKey, err)
	}
	return cmd.Context().Err()
}
