package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scjingle",
	Short: "Converts musical scores into controller jingles",
	Long: `Converts musical scores (MusicXML or Standard MIDI Files) into the
controller's jingle format and downloads them over a serial link.`,
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
