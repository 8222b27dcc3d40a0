package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"scjingle/device"
	"scjingle/jingle"
	"scjingle/model"
	"scjingle/project"
)

var (
	projectFile     string
	projectPort     string
	projectPlaySlot int
)

func init() {
	projectCmd.PersistentFlags().StringVar(&projectFile, "file", "scjingle.yaml", "project file")
	projectDownloadCmd.Flags().StringVar(&projectPort, "port", "", "serial port of the controller")
	projectDownloadCmd.Flags().IntVar(&projectPlaySlot, "play", -1, "slot to play after downloading")
	projectDownloadCmd.MarkFlagRequired("port")

	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectLsCmd)
	projectCmd.AddCommand(projectRmCmd)
	projectCmd.AddCommand(projectMvCmd)
	projectCmd.AddCommand(projectDownloadCmd)
	rootCmd.AddCommand(projectCmd)
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manages a multi-jingle project",
	Long: `Manages a project file holding several compositions and their selections,
up to the device's jingle capacity.`,
}

// loadOrNewProject tolerates a missing file so `project add` can start one.
func loadOrNewProject() (*project.Project, error) {
	if _, err := os.Stat(projectFile); os.IsNotExist(err) {
		return &project.Project{}, nil
	}
	return project.Load(projectFile)
}

var projectAddCmd = &cobra.Command{
	Use:   "add <score>",
	Short: "Adds a composition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadOrNewProject()
		if err != nil {
			return err
		}
		entry, err := p.Add(args[0])
		if err != nil {
			return err
		}
		if err := p.Save(projectFile); err != nil {
			return err
		}
		fmt.Printf("Added %v (%v)\n", entry.Comp.Name(), entry.ID)
		return nil
	},
}

var projectLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Lists compositions",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := project.Load(projectFile)
		if err != nil {
			return err
		}
		for slot, e := range p.Entries {
			c := e.Comp
			fmt.Printf("%v  %v  %v  measures %v..%v  L=%q R=%q  %v bytes\n",
				slot, e.ID, c.Name(), c.MeasStartIdx(), c.MeasEndIdx(),
				c.Voice(model.Left), c.Voice(model.Right),
				jingle.NoteNumBytes*c.BuildJingle().NumRecords())
		}
		fmt.Printf("Total: %v/%v bytes used\n", p.MemUsage(), uint32(jingle.MaxEEPROMBytes))
		return nil
	},
}

var projectRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Removes a composition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := project.Load(projectFile)
		if err != nil {
			return err
		}
		if err := p.Remove(args[0]); err != nil {
			return err
		}
		return p.Save(projectFile)
	},
}

var projectMvCmd = &cobra.Command{
	Use:   "mv <id> <delta>",
	Short: "Moves a composition up or down the slot order",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		delta, err := strconv.Atoi(args[1])
		if err != nil {
			return errors.Wrap(err, "delta must be an integer")
		}
		p, err := project.Load(projectFile)
		if err != nil {
			return err
		}
		if err := p.Move(args[0], delta); err != nil {
			return err
		}
		return p.Save(projectFile)
	},
}

var projectDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Downloads the whole project to the device",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := project.Load(projectFile)
		if err != nil {
			return err
		}
		if usage := p.MemUsage(); usage > jingle.MaxEEPROMBytes {
			return errors.Errorf(
				"project is too large (%v/%v bytes); trim selections or remove compositions",
				usage, uint32(jingle.MaxEEPROMBytes))
		}

		var link device.Link
		if err := link.Open(projectPort); err != nil {
			return errors.Wrapf(err, "cannot open %v", projectPort)
		}
		defer link.Close()

		if err := link.Clear(); err != nil {
			return errors.Wrap(err, "failed to clear jingle data")
		}
		if err := p.Download(&link); err != nil {
			return errors.Wrapf(err, "cannot download to %v", projectPort)
		}
		fmt.Printf("Downloaded %v compositions (%v bytes)\n", len(p.Entries), p.MemUsage())

		if projectPlaySlot >= 0 {
			if err := link.Play(projectPlaySlot); err != nil {
				return errors.Wrap(err, "failed to send play command")
			}
		}
		return nil
	},
}
