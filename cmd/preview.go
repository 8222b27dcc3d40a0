package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"scjingle/preview"
)

var previewOut string

func init() {
	addSelectionFlags(previewCmd)
	previewCmd.Flags().StringVar(&previewOut, "out", "", "output midi file (default: <score>.preview.mid)")
	rootCmd.AddCommand(previewCmd)
}

var previewCmd = &cobra.Command{
	Use:   "preview <score>",
	Short: "Renders the selection to a midi file",
	Long:  `Renders the selected range and channel reduction to a Standard MIDI File for audition.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comp, err := applySelection(args[0])
		if err != nil {
			return err
		}
		out := previewOut
		if out == "" {
			out = comp.Name() + ".preview.mid"
		}
		if err := preview.Write(comp, out); err != nil {
			return err
		}
		fmt.Printf("Wrote %v\n", out)
		return nil
	},
}
