package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"scjingle/device"
	"scjingle/jingle"
)

var playPort string

func init() {
	addSelectionFlags(playCmd)
	playCmd.Flags().StringVar(&playPort, "port", "", "serial port of the controller")
	playCmd.MarkFlagRequired("port")
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play <score>",
	Short: "Downloads a jingle and plays it",
	Long: `Converts a score with the given selection, clears the device's jingle
memory, downloads the encoded jingle and starts playback.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comp, err := applySelection(args[0])
		if err != nil {
			return err
		}

		// refuse before touching the device
		if usage := comp.MemUsage(); usage > jingle.MaxEEPROMBytes {
			return errors.Errorf(
				"jingle is too large (%v/%v bytes); use selection options to reduce size",
				usage, uint32(jingle.MaxEEPROMBytes))
		}

		var link device.Link
		if err := link.Open(playPort); err != nil {
			return errors.Wrapf(err, "cannot open %v", playPort)
		}
		defer link.Close()

		if err := link.Clear(); err != nil {
			return errors.Wrap(err, "failed to clear jingle data")
		}
		if err := comp.Download(&link, 0); err != nil {
			return errors.Wrapf(err, "cannot download to %v", playPort)
		}
		// memory was just cleared, so the jingle is always in slot 0
		if err := link.Play(0); err != nil {
			return errors.Wrap(err, "failed to send play command")
		}

		fmt.Printf("Playing %v (%v bytes)\n", comp.Name(), comp.MemUsage())
		return nil
	},
}
