package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"facereview/internal/engine"
	"facereview/internal/faces"
)

func newFaceCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "face",
		Short: "Inspect and label individual faces",
	}
	cmd.AddCommand(newFaceSuggestionsCommand(ctx))
	cmd.AddCommand(newFaceAssignCommand(ctx))
	cmd.AddCommand(newFaceCreateAssignCommand(ctx))
	cmd.AddCommand(newFaceUnassignCommand(ctx))
	return cmd
}

func newFaceSuggestionsCommand(ctx *commandContext) *cobra.Command {
	var assetID string

	cmd := &cobra.Command{
		Use:   "suggestions <face-id>",
		Short: "Show the suggestions for one face",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				res, err := eng.Loader.Load(cmd.Context(), args[0], strings.TrimSpace(assetID))
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, res.Suggestions)
				}
				out := cmd.OutOrStdout()
				if len(res.Suggestions) == 0 {
					fmt.Fprintf(out, "No suggestions for face %s\n", res.FaceID)
					return nil
				}
				fmt.Fprintln(out, renderSuggestionTable(res.Suggestions))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&assetID, "asset", "", "Asset id the face belongs to")
	return cmd
}

func newFaceAssignCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <face-id> <person-id>",
		Short: "Assign a face to an existing person",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				face, err := eng.Assign.AssignToExisting(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return renderFace(cmd, ctx, face)
			})
		},
	}
}

func newFaceCreateAssignCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "create-assign <face-id> <name>",
		Short: "Create a person and assign the face to them",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args[1:], " ")
			return ctx.withEngine(func(eng *engine.Engine) error {
				face, _, err := eng.Assign.CreateAndAssign(cmd.Context(), args[0], name)
				if err != nil {
					return err
				}
				return renderFace(cmd, ctx, face)
			})
		},
	}
}

func newFaceUnassignCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <face-id>",
		Short: "Clear the person assigned to a face",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				if err := eng.Assign.Unassign(cmd.Context(), args[0]); err != nil {
					return err
				}
				face, _ := eng.Board.Face(args[0])
				face.ID = args[0]
				return renderFace(cmd, ctx, face)
			})
		},
	}
}

func renderFace(cmd *cobra.Command, ctx *commandContext, face faces.Face) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, face)
	}
	out := cmd.OutOrStdout()
	if !face.Assigned() {
		fmt.Fprintln(out, renderStatusLine("Face "+face.ID, statusWarn, "unassigned", shouldColorize(out)))
		return nil
	}
	id, name := face.Person()
	fmt.Fprintln(out, renderStatusLine("Face "+face.ID, statusOK, personLabel(id, name), shouldColorize(out)))
	return nil
}
