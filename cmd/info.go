package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"scjingle/jingle"
	"scjingle/model"
)

func init() {
	addSelectionFlags(infoCmd)
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info <score>",
	Short: "Shows score facts",
	Long:  `Parses a score and shows its measures, voices, chord counts and memory usage.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comp, err := applySelection(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Name: %v\n", comp.Name())
		fmt.Printf("Measures: %v (selected %v..%v)\n",
			comp.NumMeasures(), comp.MeasStartIdx(), comp.MeasEndIdx())
		fmt.Printf("Bpm: %v  Octave adjust: %.2f\n", comp.Bpm(), comp.OctaveAdjust())

		fmt.Println("Voices:")
		for _, v := range comp.VoiceStrs() {
			numChords := comp.NumChords(v, comp.MeasStartIdx(), comp.MeasEndIdx())
			fmt.Printf("  %v (chords in range: %v)\n", v, numChords)
		}

		for ch := model.Channel(0); ch < model.NumChannels; ch++ {
			fmt.Printf("Channel %v: voice %q chord index %v, %v notes\n",
				ch, comp.Voice(ch), comp.ChordIdx(ch), len(comp.ResolveStream(ch)))
		}

		usage := comp.MemUsage()
		fmt.Printf("Memory: %v/%v bytes used\n", usage, uint32(jingle.MaxEEPROMBytes))
		return nil
	},
}
