package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"facereview/internal/bulk"
	"facereview/internal/engine"
	"facereview/internal/services/backend"
	"facereview/internal/suggestion"
)

func newSuggestionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "suggestions",
		Aliases: []string{"s"},
		Short:   "List and review face suggestions",
	}
	cmd.AddCommand(newSuggestionsListCommand(ctx))
	cmd.AddCommand(newSuggestionsShowCommand(ctx))
	cmd.AddCommand(newSuggestionsReviewCommand(ctx, backend.ActionAccept))
	cmd.AddCommand(newSuggestionsReviewCommand(ctx, backend.ActionReject))
	cmd.AddCommand(newSuggestionsBulkCommand(ctx))
	return cmd
}

func newSuggestionsListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag, personFlag string
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List suggestions",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := backend.ListQuery{PersonID: strings.TrimSpace(personFlag), Page: page, PageSize: pageSize}
			if strings.TrimSpace(statusFlag) != "" {
				status, ok := suggestion.ParseStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q (want pending, accepted, rejected or expired)", statusFlag)
				}
				q.Status = status
			}
			return ctx.withEngine(func(eng *engine.Engine) error {
				result, err := eng.ListSuggestions(cmd.Context(), q)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if len(result.Items) == 0 {
					fmt.Fprintln(out, "No suggestions")
					return nil
				}
				fmt.Fprintln(out, renderSuggestionTable(result.Items))
				fmt.Fprintf(out, "Page %d, %d of %d suggestions\n", result.Page, len(result.Items), result.Total)
				if result.HasMore() {
					fmt.Fprintf(out, "More available: --page %d\n", result.Page+1)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "pending", "Filter by status (empty for all)")
	cmd.Flags().StringVar(&personFlag, "person", "", "Filter by suggested person id")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Suggestions per page")
	return cmd
}

func newSuggestionsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <suggestion-id>",
		Short: "Show one suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				rec, err := eng.Suggestion(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, rec)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintf(out, "Suggestion %s\n", rec.ID)
				fmt.Fprintln(out, renderStatusLine("Status", suggestionStatusKind(rec.Status), string(rec.Status), colorize))
				fmt.Fprintf(out, "%-*s %s\n", statusLabelWidth, "Face:", rec.FaceInstanceID)
				fmt.Fprintf(out, "%-*s %s\n", statusLabelWidth, "Person:", personLabel(rec.SuggestedPersonID, rec.PersonName))
				fmt.Fprintf(out, "%-*s %.2f\n", statusLabelWidth, "Confidence:", rec.Confidence)
				if rec.SourceFaceID != "" {
					fmt.Fprintf(out, "%-*s %s\n", statusLabelWidth, "Source face:", rec.SourceFaceID)
				}
				if rec.ReviewedAt != nil {
					fmt.Fprintf(out, "%-*s %s\n", statusLabelWidth, "Reviewed:", rec.ReviewedAt.Local().Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func newSuggestionsReviewCommand(ctx *commandContext, action backend.Action) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <suggestion-id>",
		Short: strings.ToUpper(string(action[:1])) + string(action[1:]) + " a suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				review := eng.Assign.Accept
				if action == backend.ActionReject {
					review = eng.Assign.Reject
				}
				rec, err := review(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, rec)
				}
				out := cmd.OutOrStdout()
				msg := rec.ID
				if action == backend.ActionAccept {
					msg = fmt.Sprintf("%s: face %s is %s", rec.ID, rec.FaceInstanceID, personLabel(rec.SuggestedPersonID, rec.PersonName))
				}
				fmt.Fprintln(out, renderStatusLine(string(rec.Status), suggestionStatusKind(rec.Status), msg, shouldColorize(out)))
				return nil
			})
		},
	}
}

func newSuggestionsBulkCommand(ctx *commandContext) *cobra.Command {
	var autoFindMore bool
	var prototypes int

	cmd := &cobra.Command{
		Use:   "bulk <accept|reject> <suggestion-id>...",
		Short: "Accept or reject many suggestions in one request",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := backend.Action(strings.ToLower(strings.TrimSpace(args[0])))
			if !action.Valid() {
				return fmt.Errorf("unknown action %q (want accept or reject)", args[0])
			}
			return ctx.withEngine(func(eng *engine.Engine) error {
				req := bulk.Request{
					IDs:                    args[1:],
					Action:                 action,
					AutoFindMore:           eng.Config().Bulk.AutoFindMore,
					FindMorePrototypeCount: prototypes,
				}
				if cmd.Flags().Changed("auto-find-more") {
					req.AutoFindMore = autoFindMore
				}
				res, err := eng.BulkReview(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, res)
				}
				renderBulkResult(cmd, res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&autoFindMore, "auto-find-more", false, "Start find-more jobs for accepted persons (default from config)")
	cmd.Flags().IntVar(&prototypes, "prototypes", 0, "Prototype count for auto find-more jobs (default from config)")
	return cmd
}

func renderBulkResult(cmd *cobra.Command, res bulk.Result) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	kind := statusOK
	if len(res.Failed) > 0 {
		kind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Bulk "+string(res.Action), kind,
		fmt.Sprintf("%d succeeded, %d failed", len(res.Succeeded), len(res.Failed)), colorize))
	if len(res.Failed) > 0 {
		rows := make([][]string, 0, len(res.Failed))
		for _, item := range res.Failed {
			rows = append(rows, []string{item.SuggestionID, item.Reason})
		}
		fmt.Fprintln(out, renderTable([]string{"Suggestion", "Reason"}, rows, nil))
	}
	for _, job := range res.Jobs {
		fmt.Fprintln(out, renderStatusLine("Find more", statusInfo,
			fmt.Sprintf("person %s, progress key %s", job.PersonID, job.ProgressKey), colorize))
	}
}

func renderSuggestionTable(items []suggestion.Suggestion) string {
	rows := make([][]string, 0, len(items))
	for _, rec := range items {
		rows = append(rows, []string{
			rec.ID,
			rec.FaceInstanceID,
			personLabel(rec.SuggestedPersonID, rec.PersonName),
			strconv.FormatFloat(rec.Confidence, 'f', 2, 64),
			string(rec.Status),
		})
	}
	return renderTable(
		[]string{"ID", "Face", "Person", "Confidence", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func personLabel(id, name string) string {
	switch {
	case id == "":
		return "-"
	case name == "":
		return id
	default:
		return fmt.Sprintf("%s (%s)", name, id)
	}
}
