package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"scjingle/device"
)

func init() {
	rootCmd.AddCommand(portsCmd)
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Lists serial ports",
	Long:  `Lists the serial ports available on this host.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := device.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}
