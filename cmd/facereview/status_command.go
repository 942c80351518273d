package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"facereview/internal/engine"
	"facereview/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check API connectivity and local state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				results := preflight.RunAll(cmd.Context(), eng.Config(), eng.API, eng.State())
				if ctx.jsonOutput() {
					if err := writeJSON(cmd, results); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					colorize := shouldColorize(out)
					for _, r := range results {
						kind := statusOK
						if !r.Passed {
							kind = statusError
						}
						fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
					}
				}
				if failed := preflight.Failed(results); len(failed) > 0 {
					return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
				}
				return nil
			})
		},
	}
}
