// Package cli implements the roomctl commands.
package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Ko-stant/room-layout-sync/internal/geometry"
)

// ShellCmd prints the wall segments generated for a room file.
func ShellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell ROOM.yaml",
		Short: "Generate the room shell for a room file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			noCeiling, _ := cmd.Flags().GetBool("no-ceiling")

			def, err := geometry.LoadRoomFromFile(args[0])
			if err != nil {
				return err
			}
			opts := geometry.DefaultOptions()
			opts.Ceiling = !noCeiling
			shell := geometry.BuildWithOptions(def.Room, def.Openings, opts)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(shell)
			}

			length, width, height := def.Room.Meters()
			fmt.Fprintf(out, "%s: %.2f x %.2f x %.2f m, %d openings\n",
				color.New(color.Bold).Sprint(def.Name), length, width, height, len(def.Openings))
			if shell.Ceiling == nil {
				fmt.Fprintln(out, "ceiling: omitted")
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WALL\tKIND\tSTART\tEND\tBOTTOM\tTOP\tVOLUME")
			for _, seg := range shell.Walls {
				fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3f\t%.3f\t%.3f\t%.4f\n",
					seg.Wall, seg.Kind, seg.Start, seg.End, seg.Bottom, seg.Top, seg.Volume())
			}
			return w.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "Print the shell description as JSON")
	cmd.Flags().Bool("no-ceiling", false, "Omit the ceiling panel")
	return cmd
}

// ValidateCmd checks a room file's openings.
func ValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate ROOM.yaml",
		Short: "Check that a room's openings fit their walls and do not overlap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := geometry.LoadRoomFromFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := geometry.ValidateOpenings(def.Room, def.Openings); err != nil {
				fmt.Fprintf(out, "%s %s\n", color.New(color.FgRed).Sprint("INVALID"), err)
				return err
			}
			fmt.Fprintf(out, "%s %s (%d openings)\n", color.New(color.FgGreen).Sprint("OK"), def.ID, len(def.Openings))
			return nil
		},
	}
}
