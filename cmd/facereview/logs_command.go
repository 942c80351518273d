package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"facereview/internal/logs"
)

const logFileName = "facereview.log"

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var opts logs.TailOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the facereview log file",
		Long:  "Show the log file written when logging.file is enabled. Field filters apply to JSON formatted logs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Logging.File {
				fmt.Fprintln(cmd.ErrOrStderr(), "logging.file is disabled; only earlier runs may have written this file")
			}
			out := cmd.OutOrStdout()
			path := filepath.Join(cfg.Paths.LogDir, logFileName)
			n, err := logs.Tail(cmd.Context(), path, opts, func(line string) {
				fmt.Fprintln(out, line)
			})
			if err != nil {
				return err
			}
			if n == 0 && !opts.Follow {
				fmt.Fprintf(out, "No log lines in %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.Lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&opts.Filter.FaceID, "face", "", "Only lines for this face id")
	cmd.Flags().StringVar(&opts.Filter.SuggestionID, "suggestion", "", "Only lines for this suggestion id")
	cmd.Flags().StringVar(&opts.Filter.EventType, "event", "", "Only lines with this event_type")
	cmd.Flags().StringVar(&opts.Filter.Contains, "grep", "", "Only lines containing this text")
	return cmd
}
