package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"facereview/internal/engine"
)

func newRecentCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Recently assigned people",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recently assigned people, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				ids := eng.Recent.List(cmd.Context())
				if ctx.jsonOutput() {
					return writeJSON(cmd, ids)
				}
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					fmt.Fprintln(out, "No recent selections")
					return nil
				}
				rows := make([][]string, 0, len(ids))
				for i, id := range ids {
					rows = append(rows, []string{strconv.Itoa(i + 1), id})
				}
				fmt.Fprintln(out, renderTable([]string{"#", "Person"}, rows, []columnAlignment{alignRight, alignLeft}))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget recent selections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				if err := eng.Recent.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Recent selections cleared")
				return nil
			})
		},
	})
	return cmd
}
