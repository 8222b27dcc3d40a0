package cmd

import (
	"github.com/spf13/cobra"

	"scjingle/composition"
	"scjingle/model"
)

// Selection flags shared by the commands that shape a single composition.
var (
	flagMeasStart  int
	flagMeasEnd    int
	flagLeft       string
	flagRight      string
	flagLeftChord  int
	flagRightChord int
	flagBpm        int
	flagOctave     float64
)

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&flagMeasStart, "start", -1, "first measure index (default: 0)")
	cmd.Flags().IntVar(&flagMeasEnd, "end", -1, "last measure index (default: last)")
	cmd.Flags().StringVar(&flagLeft, "left", "", "voice for the left channel")
	cmd.Flags().StringVar(&flagRight, "right", "", "voice for the right channel")
	cmd.Flags().IntVar(&flagLeftChord, "left-chord", 0, "chord index for the left channel")
	cmd.Flags().IntVar(&flagRightChord, "right-chord", 0, "chord index for the right channel")
	cmd.Flags().IntVar(&flagBpm, "bpm", 0, "tempo override in beats per minute")
	cmd.Flags().Float64Var(&flagOctave, "octave", 0, "octave adjust factor (frequency multiplier)")
}

// applySelection parses the score and pushes the selection flags through
// the composition's validated setters.
func applySelection(path string) (*composition.Composition, error) {
	comp := composition.New(path)
	if err := comp.Parse(); err != nil {
		return nil, err
	}
	if flagMeasStart >= 0 {
		if err := comp.SetMeasStartIdx(flagMeasStart); err != nil {
			return nil, err
		}
	}
	if flagMeasEnd >= 0 {
		if err := comp.SetMeasEndIdx(flagMeasEnd); err != nil {
			return nil, err
		}
	}
	voices := [model.NumChannels]string{flagLeft, flagRight}
	chords := [model.NumChannels]int{flagLeftChord, flagRightChord}
	for ch := model.Channel(0); ch < model.NumChannels; ch++ {
		if voices[ch] == "" {
			continue
		}
		if err := comp.SetVoice(ch, voices[ch]); err != nil {
			return nil, err
		}
		if err := comp.SetChordIdx(ch, chords[ch]); err != nil {
			return nil, err
		}
	}
	if flagBpm > 0 {
		if err := comp.SetBpm(flagBpm); err != nil {
			return nil, err
		}
	}
	if flagOctave != 0 {
		if err := comp.SetOctaveAdjust(flagOctave); err != nil {
			return nil, err
		}
	}
	return comp, nil
}
